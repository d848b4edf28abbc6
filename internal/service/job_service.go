package service

import (
	"context"
	"learnbridge_backend/internal/config"
	"learnbridge_backend/pkg/logger"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// JobService 定时清理过期通知、发送不活跃提醒
type JobService struct {
	NotificationService *NotificationService
	Cfg                 config.JobsConfig
	cron                *cron.Cron
}

func NewJobService(notificationService *NotificationService, cfg config.JobsConfig) *JobService {
	return &JobService{
		NotificationService: notificationService,
		Cfg:                 cfg,
		// 任务 panic 时记录日志，不影响后续调度
		cron: cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(logger.Log))))),
	}
}

func (s *JobService) Start() error {
	if _, err := s.cron.AddFunc(s.Cfg.PruneSpec, s.PruneNotifications); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.Cfg.ReminderSpec, s.RemindInactive); err != nil {
		return err
	}
	s.cron.Start()
	logger.Log.Info("Background jobs started",
		zap.String("prune", s.Cfg.PruneSpec),
		zap.String("reminder", s.Cfg.ReminderSpec))
	return nil
}

// Stop 等待正在执行的任务结束
func (s *JobService) Stop() {
	<-s.cron.Stop().Done()
}

func (s *JobService) PruneNotifications() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	retention := time.Duration(s.Cfg.NotificationTTLDay) * 24 * time.Hour
	deleted, err := s.NotificationService.PruneOlderThan(ctx, retention)
	if err != nil {
		logger.Log.Error("PruneNotifications failed", zap.Error(err))
		return
	}
	logger.Log.Info("Pruned notifications", zap.Int64("deleted", deleted))
}

func (s *JobService) RemindInactive() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	sent, err := s.NotificationService.SendInactivityReminders(ctx, s.Cfg.InactiveDays, time.Now())
	if err != nil {
		logger.Log.Error("RemindInactive failed", zap.Int("sent", sent), zap.Error(err))
		return
	}
	logger.Log.Info("Sent inactivity reminders", zap.Int("sent", sent))
}
