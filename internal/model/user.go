package model

import (
	"time"
)

type UserRole string

const (
	Child  UserRole = "child"
	Parent UserRole = "parent"
	Doctor UserRole = "doctor"
	Admin  UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case Child, Parent, Doctor, Admin:
		return true
	}
	return false
}

// swagger:model User
type User struct {
	BaseModel
	Name     string    `gorm:"size:100;not null" json:"name"`
	Email    string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password string    `gorm:"size:100;not null" json:"-"`
	Role     UserRole  `gorm:"size:20;default:'child';index" json:"role"`
	ParentID *uint     `gorm:"index" json:"parentId,omitempty"` // 仅 child 使用
	Points   int       `gorm:"default:0" json:"points"`         // 活动积分累计
	XP       int       `gorm:"default:0" json:"xp"`             // 成就经验
	Language string    `gorm:"size:10;default:'en'" json:"language"`
	Disabled bool      `gorm:"default:false" json:"disabled"`
	LastSeen time.Time `json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
