package service

import (
	"context"
	"fmt"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/repository"
	"learnbridge_backend/internal/util"
	"learnbridge_backend/pkg/logger"
	"learnbridge_backend/pkg/monitoring"
	"learnbridge_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AttemptStore 活动记录持久化
type AttemptStore interface {
	UpsertAttempt(ctx context.Context, attempt *model.ActivityAttempt, policy model.ScoreMergePolicy) (*model.ActivityAttempt, error)
	AppendLog(ctx context.Context, log *model.ActivityLog) error
}

type PointsStore interface {
	AddPoints(ctx context.Context, userID uint, points int) error
}

type AchievementEvaluator interface {
	Evaluate(ctx context.Context, userID uint, module model.ModuleType, percentage int) ([]model.Achievement, error)
}

type SupervisorNotifier interface {
	NotifySupervisor(ctx context.Context, studentID uint, summary ActivitySummary)
}

type ActivityService struct {
	Attempts     AttemptStore
	Points       PointsStore
	Achievements AchievementEvaluator
	Notifier     SupervisorNotifier
	Settings     *ProgressSettings
	ActivityRepo *repository.ActivityRepository
}

func NewActivityService(
	activityRepo *repository.ActivityRepository,
	userRepo *repository.UserRepository,
	achievements AchievementEvaluator,
	notifier SupervisorNotifier,
	settings *ProgressSettings,
) *ActivityService {
	return &ActivityService{
		Attempts:     activityRepo,
		Points:       userRepo,
		Achievements: achievements,
		Notifier:     notifier,
		Settings:     settings,
		ActivityRepo: activityRepo,
	}
}

// RecordAttemptRequest maxScore 为 0 时取目录默认值；accuracy 为空时等于百分比
type RecordAttemptRequest struct {
	ModuleType      model.ModuleType      `json:"moduleType" binding:"required"`
	ActivityID      string                `json:"activityId" binding:"required"`
	Score           int                   `json:"score"`
	MaxScore        int                   `json:"maxScore"`
	DurationSeconds int                   `json:"durationSeconds"`
	Accuracy        *int                  `json:"accuracy"`
	Details         *model.AttemptDetails `json:"details"`
}

type RecordResult struct {
	Success              bool                `json:"success"`
	Guest                bool                `json:"guest"`
	Percentage           int                 `json:"percentage"`
	Completed            bool                `json:"completed"`
	PointsAwarded        int                 `json:"pointsAwarded"`
	UnlockedAchievements []model.Achievement `json:"unlockedAchievements"`
	Message              string              `json:"message"`
	Error                string              `json:"error,omitempty"`
}

func (r RecordAttemptRequest) validate() error {
	if !r.ModuleType.Valid() {
		return util.ErrInvalidModule
	}
	if r.ActivityID == "" {
		return util.ErrInvalidActivity
	}
	if r.Score < 0 || r.MaxScore < 0 || r.DurationSeconds < 0 {
		return util.ErrInvalidScore
	}
	if r.Accuracy != nil && (*r.Accuracy < 0 || *r.Accuracy > 100) {
		return util.ErrInvalidScore
	}
	if err := r.Details.Validate(r.ModuleType); err != nil {
		return util.ErrInvalidDetails
	}
	return nil
}

// RecordAttempt 记录一次活动完成。
// 访客不做任何持久化；持久化失败时仍返回本地计算结果，Success 为 false，
// 同时返回包装了 ErrPersistence 的错误
func (s *ActivityService) RecordAttempt(ctx context.Context, session *Session, req RecordAttemptRequest) (*RecordResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "ActivityService.RecordAttempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("module", string(req.ModuleType)),
		attribute.String("activity", req.ActivityID),
	)

	if err := req.validate(); err != nil {
		return nil, err
	}

	t := s.thresholds()
	maxScore := model.ResolveMaxScore(req.ModuleType, req.ActivityID, req.MaxScore)
	percentage := CalculatePercentage(req.Score, maxScore)
	completed := t.IsCompleted(percentage)
	points := t.Points(percentage, req.DurationSeconds)
	accuracy := percentage
	if req.Accuracy != nil {
		accuracy = *req.Accuracy
	}

	result := &RecordResult{
		Success:       true,
		Percentage:    percentage,
		Completed:     completed,
		PointsAwarded: points,
		Message:       feedbackMessage(percentage, completed, t),
	}

	if session.IsGuest() {
		result.Guest = true
		result.Message += " Sign in to save your progress."
		monitoring.ActivityAttempts.WithLabelValues(string(req.ModuleType), "guest").Inc()
		return result, nil
	}
	span.SetAttributes(attribute.Int("user_id", int(session.UserID)))

	attempt := &model.ActivityAttempt{
		StudentID:       session.UserID,
		ModuleType:      req.ModuleType,
		ActivityID:      req.ActivityID,
		Score:           req.Score,
		MaxScore:        maxScore,
		Percentage:      percentage,
		DurationSeconds: req.DurationSeconds,
		Accuracy:        accuracy,
		Completed:       completed,
	}
	if _, err := s.Attempts.UpsertAttempt(ctx, attempt, s.policy()); err != nil {
		return s.persistenceFailure(ctx, session, req, result, fmt.Errorf("upsert attempt: %w", err))
	}

	log := &model.ActivityLog{
		UserID:          session.UserID,
		ModuleType:      req.ModuleType,
		ActivityID:      req.ActivityID,
		Score:           req.Score,
		MaxScore:        maxScore,
		Percentage:      percentage,
		DurationSeconds: req.DurationSeconds,
		Accuracy:        accuracy,
		Completed:       completed,
		PointsAwarded:   points,
		Details:         req.Details,
	}
	if err := s.Attempts.AppendLog(ctx, log); err != nil {
		return s.persistenceFailure(ctx, session, req, result, fmt.Errorf("append log: %w", err))
	}

	if s.Achievements != nil {
		unlocked, err := s.Achievements.Evaluate(ctx, session.UserID, req.ModuleType, percentage)
		if err != nil {
			logger.Log.Warn("Achievement evaluation incomplete", zap.Uint("userId", session.UserID), zap.Error(err))
		}
		result.UnlockedAchievements = unlocked
	}

	if t.ShouldNotifyDoctor(percentage) && s.Notifier != nil {
		s.Notifier.NotifySupervisor(ctx, session.UserID, ActivitySummary{
			StudentName: session.Name,
			ModuleType:  req.ModuleType,
			ActivityID:  req.ActivityID,
			Percentage:  percentage,
			Token:       session.Token,
		})
	}

	if err := s.Points.AddPoints(ctx, session.UserID, points); err != nil {
		return s.persistenceFailure(ctx, session, req, result, fmt.Errorf("add points: %w", err))
	}

	outcome := "incomplete"
	if completed {
		outcome = "completed"
	}
	monitoring.ActivityAttempts.WithLabelValues(string(req.ModuleType), outcome).Inc()
	return result, nil
}

func (s *ActivityService) persistenceFailure(ctx context.Context, session *Session, req RecordAttemptRequest, result *RecordResult, err error) (*RecordResult, error) {
	logger.Log.Error("Failed to record activity attempt",
		zap.Uint("userId", session.UserID),
		zap.String("module", string(req.ModuleType)),
		zap.String("activityId", req.ActivityID),
		zap.Error(err))
	monitoring.ActivityAttempts.WithLabelValues(string(req.ModuleType), "failed").Inc()
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, "persistence failure")

	result.Success = false
	result.Error = util.ErrPersistence.Error()
	return result, fmt.Errorf("%w: %v", util.ErrPersistence, err)
}

func feedbackMessage(percentage int, completed bool, t Thresholds) string {
	switch {
	case percentage == 100:
		return "Perfect score! Amazing work!"
	case t.IsCelebration(percentage):
		return fmt.Sprintf("Fantastic! You scored %d%%.", percentage)
	case completed:
		return fmt.Sprintf("Well done! You scored %d%%.", percentage)
	default:
		return fmt.Sprintf("You scored %d%%. Keep practising!", percentage)
	}
}

func (s *ActivityService) thresholds() Thresholds {
	if s.Settings == nil {
		return DefaultThresholds()
	}
	return s.Settings.Thresholds()
}

func (s *ActivityService) policy() model.ScoreMergePolicy {
	if s.Settings == nil {
		return model.MergeKeepMax
	}
	return s.Settings.Policy()
}

func (s *ActivityService) ListAttempts(ctx context.Context, session *Session, module model.ModuleType) ([]model.ActivityAttempt, error) {
	if session == nil {
		return nil, util.ErrPermissionDenied
	}
	if module != "" && !module.Valid() {
		return nil, util.ErrInvalidModule
	}
	return s.ActivityRepo.ListAttempts(ctx, session.UserID, module)
}

func (s *ActivityService) ListHistory(ctx context.Context, session *Session, page, limit int) ([]model.ActivityLog, int64, error) {
	if session == nil {
		return nil, 0, util.ErrPermissionDenied
	}
	return s.ActivityRepo.ListLogs(ctx, session.UserID, page, limit)
}
