package repository

import (
	"context"
	"learnbridge_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	DB *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{DB: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.DB.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) FindByID(ctx context.Context, id uint) (*model.Notification, error) {
	var n model.Notification
	if err := r.DB.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// ListByRecipient 按创建时间倒序
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID uint, unreadOnly bool, limit int) ([]model.Notification, error) {
	var list []model.Notification
	q := r.DB.WithContext(ctx).Where("recipient_user_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("`read` = ?", false)
	}
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&list).Error
	return list, err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_user_id = ? AND `read` = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// Save 整行保存，便于变更订阅拿到完整记录
func (r *NotificationRepository) Save(ctx context.Context, n *model.Notification) error {
	return r.DB.WithContext(ctx).Save(n).Error
}

// MarkAllRead 逐行更新而非批量 UPDATE，保证每条变更都能推送到实时订阅
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID uint) (int, error) {
	updated := 0
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var unread []model.Notification
		if err := tx.Where("recipient_user_id = ? AND `read` = ?", recipientID, false).Find(&unread).Error; err != nil {
			return err
		}
		for i := range unread {
			unread[i].Read = true
			if err := tx.Save(&unread[i]).Error; err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	return updated, err
}

func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.DB.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.Notification{})
	return result.RowsAffected, result.Error
}

// HasSince 判断是否已发送过同类通知，用于定时任务去重
func (r *NotificationRepository) HasSince(ctx context.Context, recipientID uint, typ model.NotificationType, since time.Time) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_user_id = ? AND type = ? AND created_at >= ?", recipientID, typ, since).
		Count(&count).Error
	return count > 0, err
}

func (r *NotificationRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Notification{}).Count(&count).Error
	return count, err
}
