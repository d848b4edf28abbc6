package service

import (
	"context"
	"learnbridge_backend/internal/apiclient"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/repository"
	"learnbridge_backend/internal/util"
	"learnbridge_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	streakWindowDays = 60
	recentHistory    = 10
	summaryFanout    = 8
)

// StatsSource 处理后端的统计接口
type StatsSource interface {
	AdminStats(ctx context.Context, token string) (*apiclient.AdminStats, error)
}

// PresenceSource 实时模块的在线状态
type PresenceSource interface {
	UserOnline(ctx context.Context, userID uint) bool
}

type DashboardService struct {
	UserRepo         *repository.UserRepository
	ActivityRepo     *repository.ActivityRepository
	AchievementRepo  *repository.AchievementRepository
	NotificationRepo *repository.NotificationRepository
	DoctorRepo       *repository.DoctorPatientRepository
	Stats            StatsSource
	Presence         PresenceSource
}

func NewDashboardService(
	userRepo *repository.UserRepository,
	activityRepo *repository.ActivityRepository,
	achievementRepo *repository.AchievementRepository,
	notificationRepo *repository.NotificationRepository,
	doctorRepo *repository.DoctorPatientRepository,
	stats StatsSource,
) *DashboardService {
	return &DashboardService{
		UserRepo:         userRepo,
		ActivityRepo:     activityRepo,
		AchievementRepo:  achievementRepo,
		NotificationRepo: notificationRepo,
		DoctorRepo:       doctorRepo,
		Stats:            stats,
	}
}

type StudentSummary struct {
	Student      model.User          `json:"student"`
	Points       int                 `json:"points"`
	XP           int                 `json:"xp"`
	Level        int                 `json:"level"`
	NextLevelXP  int                 `json:"nextLevelXp"`
	Streak       int                 `json:"streak"`
	Modules      []model.ModuleStat  `json:"modules"`
	Recent       []model.ActivityLog `json:"recent"`
	Achievements []model.Achievement `json:"achievements"`
	Online       bool                `json:"online"`
}

type AdminStats struct {
	Users         []model.RoleCount     `json:"users"`
	ActivityLogs  int64                 `json:"activityLogs"`
	Achievements  int64                 `json:"achievements"`
	Notifications int64                 `json:"notifications"`
	Processing    *apiclient.AdminStats `json:"processing,omitempty"`
}

func (s *DashboardService) StudentDashboard(ctx context.Context, session *Session) (*StudentSummary, error) {
	if session == nil {
		return nil, util.ErrPermissionDenied
	}
	user, err := s.UserRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, *user)
}

// summarize 汇总单个学生的积分、等级、连续天数与各模块统计
func (s *DashboardService) summarize(ctx context.Context, student model.User) (*StudentSummary, error) {
	now := time.Now()
	times, err := s.ActivityRepo.ActivityTimesSince(ctx, student.ID, now.AddDate(0, 0, -streakWindowDays))
	if err != nil {
		return nil, err
	}

	stats, err := s.ActivityRepo.ModuleStats(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	byModule := make(map[model.ModuleType]model.ModuleStat, len(stats))
	for _, st := range stats {
		byModule[st.ModuleType] = st
	}
	modules := make([]model.ModuleStat, 0, len(model.Catalog()))
	for _, m := range model.Catalog() {
		st, ok := byModule[m.Type]
		if !ok {
			st = model.ModuleStat{ModuleType: m.Type}
		}
		st.CatalogSize = len(m.Activities)
		modules = append(modules, st)
	}

	recent, _, err := s.ActivityRepo.ListLogs(ctx, student.ID, 1, recentHistory)
	if err != nil {
		return nil, err
	}

	achievements, err := s.AchievementRepo.FindByUserID(ctx, student.ID)
	if err != nil {
		return nil, err
	}

	level, next := calculateLevel(student.XP)
	return &StudentSummary{
		Student:      student,
		Points:       student.Points,
		XP:           student.XP,
		Level:        level,
		NextLevelXP:  next,
		Streak:       CalculateStreak(times, now),
		Modules:      modules,
		Recent:       recent,
		Achievements: achievements,
	}, nil
}

// summarizeAll 并发汇总，结果顺序与输入一致
func (s *DashboardService) summarizeAll(ctx context.Context, students []model.User) ([]*StudentSummary, error) {
	summaries := make([]*StudentSummary, len(students))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryFanout)
	for i := range students {
		i := i
		g.Go(func() error {
			summary, err := s.summarize(gctx, students[i])
			if err != nil {
				return err
			}
			if s.Presence != nil {
				summary.Online = s.Presence.UserOnline(gctx, students[i].ID)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *DashboardService) ParentDashboard(ctx context.Context, session *Session) ([]*StudentSummary, error) {
	if session == nil || (session.Role != model.Parent && session.Role != model.Admin) {
		return nil, util.ErrPermissionDenied
	}
	children, err := s.UserRepo.FindChildren(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return s.summarizeAll(ctx, children)
}

func (s *DashboardService) DoctorDashboard(ctx context.Context, session *Session) ([]*StudentSummary, error) {
	if session == nil || (session.Role != model.Doctor && session.Role != model.Admin) {
		return nil, util.ErrPermissionDenied
	}
	links, err := s.DoctorRepo.ListActiveByDoctor(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.PatientID)
	}
	patients, err := s.UserRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.summarizeAll(ctx, patients)
}

// AdminStats 本地计数并发查询；处理后端统计尽力获取
func (s *DashboardService) AdminStats(ctx context.Context, session *Session) (*AdminStats, error) {
	if !session.IsAdmin() {
		return nil, util.ErrPermissionDenied
	}

	var stats AdminStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.Users, err = s.UserRepo.CountByRole(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.ActivityLogs, err = s.ActivityRepo.CountLogs(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Achievements, err = s.AchievementRepo.CountAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Notifications, err = s.NotificationRepo.CountAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.Stats != nil {
		processing, err := s.Stats.AdminStats(ctx, session.Token)
		if err != nil {
			logger.Log.Warn("Processing backend stats unavailable", zap.Error(err))
		} else {
			stats.Processing = processing
		}
	}
	return &stats, nil
}
