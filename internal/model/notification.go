package model

import (
	"time"
)

type NotificationType string

const (
	NotificationInfo        NotificationType = "info"
	NotificationAchievement NotificationType = "achievement"
	NotificationReminder    NotificationType = "reminder"
)

type Notification struct {
	ID              uint                 `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientUserID uint                 `gorm:"index;not null" json:"recipientUserId"`
	Title           string               `gorm:"size:200;not null" json:"title"`
	Message         string               `gorm:"type:text" json:"message"`
	Type            NotificationType     `gorm:"size:20;index" json:"type"`
	Read            bool                 `gorm:"default:false;index" json:"read"`
	Payload         *NotificationPayload `gorm:"serializer:json;type:text" json:"payload,omitempty"`
	CreatedAt       time.Time            `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

func (Notification) TableName() string {
	return "notifications"
}

// NotificationPayload 按 Kind 区分的结构化负载
type NotificationPayload struct {
	Kind     string                       `json:"kind"`
	Activity *ActivityNotificationPayload `json:"activity,omitempty"`
	Reminder *ReminderPayload             `json:"reminder,omitempty"`
}

const (
	PayloadActivityCompleted = "activity_completed"
	PayloadInactivity        = "inactivity_reminder"
)

type ActivityNotificationPayload struct {
	StudentID    uint       `json:"studentId"`
	StudentName  string     `json:"studentName"`
	ModuleType   ModuleType `json:"moduleType"`
	ModuleName   string     `json:"moduleName"`
	ActivityID   string     `json:"activityId"`
	ActivityName string     `json:"activityName"`
	Percentage   int        `json:"percentage"`
}

type ReminderPayload struct {
	InactiveDays int    `json:"inactiveDays"`
	Day          string `json:"day"`
}
