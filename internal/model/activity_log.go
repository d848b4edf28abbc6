package model

import (
	"time"
)

// ActivityLog 每次完成追加一条，不可修改，用于分析与审计
type ActivityLog struct {
	ID              uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          uint            `gorm:"index;not null" json:"userId"`
	ModuleType      ModuleType      `gorm:"size:20;index" json:"moduleType"`
	ActivityID      string          `gorm:"size:64" json:"activityId"`
	Score           int             `json:"score"`
	MaxScore        int             `json:"maxScore"`
	Percentage      int             `json:"percentage"`
	DurationSeconds int             `json:"durationSeconds"`
	Accuracy        int             `json:"accuracy"`
	Completed       bool            `json:"completed"`
	PointsAwarded   int             `json:"pointsAwarded"`
	Details         *AttemptDetails `gorm:"serializer:json;type:text" json:"details,omitempty"`
	CreatedAt       time.Time       `gorm:"index" json:"createdAt"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
