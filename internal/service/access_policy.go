package service

import (
	"context"
	"errors"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/repository"

	"gorm.io/gorm"
)

// AccessPolicy 判断调用者能否查看某个用户的数据：
// 管理员任意；本人；医生查看已关联患者；家长查看自己的孩子
type AccessPolicy struct {
	UserRepo   *repository.UserRepository
	DoctorRepo *repository.DoctorPatientRepository
}

func NewAccessPolicy(userRepo *repository.UserRepository, doctorRepo *repository.DoctorPatientRepository) *AccessPolicy {
	return &AccessPolicy{UserRepo: userRepo, DoctorRepo: doctorRepo}
}

func (p *AccessPolicy) CanView(ctx context.Context, session *Session, targetUserID uint) (bool, error) {
	if session == nil {
		return false, nil
	}
	return p.CanWatch(ctx, session.UserID, string(session.Role), targetUserID)
}

// CanWatch 供实时订阅鉴权使用
func (p *AccessPolicy) CanWatch(ctx context.Context, userID uint, role string, targetUserID uint) (bool, error) {
	if model.UserRole(role) == model.Admin || userID == targetUserID {
		return true, nil
	}

	switch model.UserRole(role) {
	case model.Doctor:
		return p.DoctorRepo.IsLinked(ctx, userID, targetUserID)
	case model.Parent:
		target, err := p.UserRepo.FindByID(ctx, targetUserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return target.ParentID != nil && *target.ParentID == userID, nil
	}
	return false, nil
}
