package service

import (
	"context"
	"errors"
	"fmt"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/repository"
	"learnbridge_backend/pkg/logger"
	"learnbridge_backend/pkg/monitoring"
	"time"

	"go.uber.org/zap"
)

type AchievementService struct {
	AchievementRepo *repository.AchievementRepository
	ActivityRepo    *repository.ActivityRepository
	UserRepo        *repository.UserRepository
	Settings        *ProgressSettings
}

func NewAchievementService(
	achievementRepo *repository.AchievementRepository,
	activityRepo *repository.ActivityRepository,
	userRepo *repository.UserRepository,
	settings *ProgressSettings,
) *AchievementService {
	return &AchievementService{
		AchievementRepo: achievementRepo,
		ActivityRepo:    activityRepo,
		UserRepo:        userRepo,
		Settings:        settings,
	}
}

type UserAchievements struct {
	TotalXP      int                 `json:"totalXp"`
	Points       int                 `json:"points"`
	CurrentLevel int                 `json:"currentLevel"`
	NextLevelXP  int                 `json:"nextLevelXp"`
	Badges       []model.Achievement `json:"badges"`
	Leaderboard  []LeaderboardEntry  `json:"leaderboard"`
}

type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID uint   `json:"userId"`
	User   string `json:"user"`
	Points int    `json:"points"`
	XP     int    `json:"xp"`
}

// Evaluate 检查 first_activity / perfect_<module> / mastery_<module> 三类成就，
// 只返回本次新解锁的记录。单项检查失败不影响其余检查
func (s *AchievementService) Evaluate(ctx context.Context, userID uint, module model.ModuleType, percentage int) ([]model.Achievement, error) {
	var candidates []model.Achievement
	var errs []error

	count, err := s.ActivityRepo.CountAttempts(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("count attempts: %w", err))
	} else if count >= 1 {
		// 首条记录可能在 Evaluate 之前失败，重复插入由唯一索引去重
		candidates = append(candidates, model.NewFirstActivityAchievement(userID))
	}

	if percentage == 100 {
		candidates = append(candidates, model.NewPerfectAchievement(userID, module))
	}

	mastered, err := s.hasMastered(ctx, userID, module)
	if err != nil {
		errs = append(errs, fmt.Errorf("check mastery: %w", err))
	} else if mastered {
		candidates = append(candidates, model.NewMasteryAchievement(userID, module))
	}

	xp := s.thresholds().XPReward(percentage)
	now := time.Now()
	var unlocked []model.Achievement
	for i := range candidates {
		a := candidates[i]
		a.XPReward = xp
		a.UnlockedAt = now

		inserted, err := s.AchievementRepo.Award(ctx, &a)
		if err != nil {
			errs = append(errs, fmt.Errorf("award %s: %w", a.AchievementID, err))
			continue
		}
		if !inserted {
			continue
		}

		unlocked = append(unlocked, a)
		monitoring.AchievementsUnlocked.WithLabelValues(a.AchievementID).Inc()
		if err := s.UserRepo.AddXP(ctx, userID, a.XPReward); err != nil {
			logger.Log.Warn("Failed to add achievement XP",
				zap.Uint("userId", userID),
				zap.String("achievementId", a.AchievementID),
				zap.Error(err))
		}
	}

	return unlocked, errors.Join(errs...)
}

// hasMastered 目录内全部活动 ID 均有 completed 记录
func (s *AchievementService) hasMastered(ctx context.Context, userID uint, module model.ModuleType) (bool, error) {
	catalogIDs := model.ActivityIDs(module)
	if len(catalogIDs) == 0 {
		return false, nil
	}

	completed, err := s.ActivityRepo.CompletedActivityIDs(ctx, userID, module)
	if err != nil {
		return false, err
	}
	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	for _, id := range catalogIDs {
		if !done[id] {
			return false, nil
		}
	}
	return true, nil
}

func (s *AchievementService) thresholds() Thresholds {
	if s.Settings == nil {
		return DefaultThresholds()
	}
	return s.Settings.Thresholds()
}

func (s *AchievementService) GetUserAchievements(ctx context.Context, userID uint) (*UserAchievements, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	achievements, err := s.AchievementRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	leaderboard, err := s.GetLeaderboard(ctx, 10)
	if err != nil {
		return nil, err
	}

	level, nextLevelXP := calculateLevel(user.XP)

	return &UserAchievements{
		TotalXP:      user.XP,
		Points:       user.Points,
		CurrentLevel: level,
		NextLevelXP:  nextLevelXP,
		Badges:       achievements,
		Leaderboard:  leaderboard,
	}, nil
}

func (s *AchievementService) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	users, err := s.UserRepo.FindTopByPoints(ctx, limit)
	if err != nil {
		return nil, err
	}

	leaderboard := make([]LeaderboardEntry, len(users))
	for i, user := range users {
		leaderboard[i] = LeaderboardEntry{
			Rank:   i + 1,
			UserID: user.ID,
			User:   user.Name,
			Points: user.Points,
			XP:     user.XP,
		}
	}

	return leaderboard, nil
}
