package repository

import (
	"context"
	"errors"
	"learnbridge_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var attemptKeyColumns = []clause.Column{{Name: "student_id"}, {Name: "module_type"}, {Name: "activity_id"}}

type ActivityRepository struct {
	DB *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{DB: db}
}

// UpsertAttempt 按 (student, module, activity) 写入，已有记录时按 policy 合并
func (r *ActivityRepository) UpsertAttempt(ctx context.Context, attempt *model.ActivityAttempt, policy model.ScoreMergePolicy) (*model.ActivityAttempt, error) {
	var saved model.ActivityAttempt
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.ActivityAttempt
		err := tx.Where("student_id = ? AND module_type = ? AND activity_id = ?",
			attempt.StudentID, attempt.ModuleType, attempt.ActivityID).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			saved, err = insertFirstAttempt(tx, attempt)
			return err
		}
		if err != nil {
			return err
		}

		merged := policy.Merge(existing, *attempt)
		if err := tx.Save(&merged).Error; err != nil {
			return err
		}
		saved = merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// insertFirstAttempt 并发首写冲突时后写覆盖分数，attempt_count 累加
func insertFirstAttempt(tx *gorm.DB, attempt *model.ActivityAttempt) (model.ActivityAttempt, error) {
	fresh := *attempt
	fresh.AttemptCount = 1
	updates := clause.AssignmentColumns([]string{
		"score", "max_score", "percentage", "duration_seconds", "accuracy", "completed", "updated_at",
	})
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "attempt_count"},
		Value:  gorm.Expr("attempt_count + 1"),
	})
	err := tx.Clauses(clause.OnConflict{
		Columns:   attemptKeyColumns,
		DoUpdates: updates,
	}).Create(&fresh).Error
	if err != nil {
		return model.ActivityAttempt{}, err
	}

	var saved model.ActivityAttempt
	err = tx.Where("student_id = ? AND module_type = ? AND activity_id = ?",
		attempt.StudentID, attempt.ModuleType, attempt.ActivityID).
		First(&saved).Error
	return saved, err
}

func (r *ActivityRepository) AppendLog(ctx context.Context, log *model.ActivityLog) error {
	return r.DB.WithContext(ctx).Create(log).Error
}

func (r *ActivityRepository) CountAttempts(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ActivityAttempt{}).
		Where("student_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *ActivityRepository) CompletedActivityIDs(ctx context.Context, userID uint, module model.ModuleType) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&model.ActivityAttempt{}).
		Where("student_id = ? AND module_type = ? AND completed = ?", userID, module, true).
		Pluck("activity_id", &ids).Error
	return ids, err
}

func (r *ActivityRepository) ListAttempts(ctx context.Context, userID uint, module model.ModuleType) ([]model.ActivityAttempt, error) {
	var attempts []model.ActivityAttempt
	q := r.DB.WithContext(ctx).Where("student_id = ?", userID)
	if module != "" {
		q = q.Where("module_type = ?", module)
	}
	err := q.Order("updated_at DESC").Find(&attempts).Error
	return attempts, err
}

func (r *ActivityRepository) ListLogs(ctx context.Context, userID uint, page, limit int) ([]model.ActivityLog, int64, error) {
	var logs []model.ActivityLog
	var total int64
	q := r.DB.WithContext(ctx).Model(&model.ActivityLog{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error
	return logs, total, err
}

// ActivityTimesSince 用于计算连续天数
func (r *ActivityRepository) ActivityTimesSince(ctx context.Context, userID uint, since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := r.DB.WithContext(ctx).Model(&model.ActivityLog{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Pluck("created_at", &times).Error
	return times, err
}

func (r *ActivityRepository) ModuleStats(ctx context.Context, userID uint) ([]model.ModuleStat, error) {
	var stats []model.ModuleStat
	err := r.DB.WithContext(ctx).Model(&model.ActivityAttempt{}).
		Select("module_type, COUNT(*) AS attempts, " +
			"SUM(CASE WHEN completed THEN 1 ELSE 0 END) AS completed, " +
			"AVG(percentage) AS average_percentage").
		Where("student_id = ?", userID).
		Group("module_type").
		Scan(&stats).Error
	return stats, err
}

func (r *ActivityRepository) CountLogs(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ActivityLog{}).Count(&count).Error
	return count, err
}
