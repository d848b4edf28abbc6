package model

import (
	"time"

	"gorm.io/gorm"
)

// swagger:model
type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// AllModels 自动迁移列表，数据库初始化与测试共用
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&ActivityAttempt{},
		&ActivityLog{},
		&Achievement{},
		&Notification{},
		&DoctorPatientLink{},
	}
}
