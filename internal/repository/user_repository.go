package repository

import (
	"context"
	"learnbridge_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if user.LastSeen.IsZero() {
		user.LastSeen = time.Now()
	}
	return r.DB.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.User, error) {
	var users []model.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Order("name").Find(&users).Error
	return users, err
}

func (r *UserRepository) FindChildren(ctx context.Context, parentID uint) ([]model.User, error) {
	var users []model.User
	err := r.DB.WithContext(ctx).
		Where("parent_id = ? AND role = ?", parentID, model.Child).
		Order("name").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) AddPoints(ctx context.Context, userID uint, points int) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("points", gorm.Expr("points + ?", points)).
		Error
}

func (r *UserRepository) AddXP(ctx context.Context, userID uint, xp int) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("xp", gorm.Expr("xp + ?", xp)).
		Error
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_seen", time.Now()).
		Error
}

func (r *UserRepository) FindTopByPoints(ctx context.Context, limit int) ([]model.User, error) {
	var users []model.User
	err := r.DB.WithContext(ctx).
		Where("role = ?", model.Child).
		Order("points DESC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (r *UserRepository) CountByRole(ctx context.Context) ([]model.RoleCount, error) {
	var counts []model.RoleCount
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&counts).Error
	return counts, err
}

// FindInactiveChildren 自 since 起没有任何活动记录的儿童账号
func (r *UserRepository) FindInactiveChildren(ctx context.Context, since time.Time) ([]model.User, error) {
	var users []model.User
	active := r.DB.Model(&model.ActivityLog{}).
		Select("user_id").
		Where("created_at >= ?", since)
	err := r.DB.WithContext(ctx).
		Where("role = ? AND disabled = ?", model.Child, false).
		Where("id NOT IN (?)", active).
		Find(&users).Error
	return users, err
}
