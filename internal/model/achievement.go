package model

import (
	"fmt"
	"time"
)

type AchievementType string

const (
	Milestone   AchievementType = "milestone"
	Performance AchievementType = "performance"
	Mastery     AchievementType = "mastery"
)

const AchievementFirstActivity = "first_activity"

// Achievement 每个 (user, achievementId) 至多一条，由唯一索引保证
type Achievement struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint            `gorm:"uniqueIndex:idx_user_achievement;not null" json:"userId"`
	AchievementID string          `gorm:"size:64;uniqueIndex:idx_user_achievement;not null" json:"achievementId"`
	Type          AchievementType `gorm:"size:20" json:"type"`
	Title         string          `gorm:"size:100;not null" json:"title"`
	Description   string          `gorm:"size:255" json:"description"`
	Icon          string          `gorm:"size:32" json:"icon"`
	XPReward      int             `gorm:"default:0" json:"xpReward"`
	UnlockedAt    time.Time       `json:"unlockedAt"`
}

func (Achievement) TableName() string {
	return "achievements"
}

func PerfectAchievementID(m ModuleType) string { return "perfect_" + string(m) }
func MasteryAchievementID(m ModuleType) string { return "mastery_" + string(m) }

// NewFirstActivityAchievement 等构造函数只填展示字段，XP 与时间由评估器决定
func NewFirstActivityAchievement(userID uint) Achievement {
	return Achievement{
		UserID:        userID,
		AchievementID: AchievementFirstActivity,
		Type:          Milestone,
		Title:         "First Steps",
		Description:   "Completed your very first activity",
		Icon:          "🌱",
	}
}

func NewPerfectAchievement(userID uint, m ModuleType) Achievement {
	return Achievement{
		UserID:        userID,
		AchievementID: PerfectAchievementID(m),
		Type:          Performance,
		Title:         fmt.Sprintf("Perfect %s", ModuleName(m)),
		Description:   fmt.Sprintf("Scored 100%% on a %s activity", ModuleName(m)),
		Icon:          "⭐",
	}
}

func NewMasteryAchievement(userID uint, m ModuleType) Achievement {
	return Achievement{
		UserID:        userID,
		AchievementID: MasteryAchievementID(m),
		Type:          Mastery,
		Title:         fmt.Sprintf("%s Master", ModuleName(m)),
		Description:   fmt.Sprintf("Completed every %s activity", ModuleName(m)),
		Icon:          "🏆",
	}
}
