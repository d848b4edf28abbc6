package service

import (
	"context"
	"errors"
	"fmt"
	"learnbridge_backend/internal/apiclient"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/repository"
	"learnbridge_backend/internal/util"
	"learnbridge_backend/pkg/logger"
	"learnbridge_backend/pkg/monitoring"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const emailTimeout = 30 * time.Second

// EmailSender 由处理后端的邮件接口实现
type EmailSender interface {
	SendEmail(ctx context.Context, token string, req apiclient.EmailRequest) error
}

type NotificationService struct {
	NotificationRepo *repository.NotificationRepository
	DoctorRepo       *repository.DoctorPatientRepository
	UserRepo         *repository.UserRepository
	Settings         *ProgressSettings
	Email            EmailSender // 为 nil 时不发送邮件
}

func NewNotificationService(
	notificationRepo *repository.NotificationRepository,
	doctorRepo *repository.DoctorPatientRepository,
	userRepo *repository.UserRepository,
	settings *ProgressSettings,
	email EmailSender,
) *NotificationService {
	return &NotificationService{
		NotificationRepo: notificationRepo,
		DoctorRepo:       doctorRepo,
		UserRepo:         userRepo,
		Settings:         settings,
		Email:            email,
	}
}

// ActivitySummary 通知模板所需的活动摘要
type ActivitySummary struct {
	StudentName string
	ModuleType  model.ModuleType
	ActivityID  string
	Percentage  int
	Token       string // 学生会话令牌，用于调用邮件接口
}

// NotifySupervisor 为学生当前的主治医生写入一条通知。
// 尽力而为：任何失败只记录日志，不返回给调用方
func (s *NotificationService) NotifySupervisor(ctx context.Context, studentID uint, summary ActivitySummary) {
	link, err := s.DoctorRepo.FindActiveByPatient(ctx, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	if err != nil {
		logger.Log.Warn("Failed to resolve supervising doctor", zap.Uint("studentId", studentID), zap.Error(err))
		return
	}

	n := s.buildActivityNotification(link.DoctorID, studentID, summary)
	if err := s.NotificationRepo.Create(ctx, n); err != nil {
		logger.Log.Warn("Failed to create supervisor notification",
			zap.Uint("studentId", studentID),
			zap.Uint("doctorId", link.DoctorID),
			zap.Error(err))
		return
	}
	monitoring.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	if s.Email != nil {
		go s.emailSupervisor(link.DoctorID, n, summary.Token)
	}
}

func (s *NotificationService) buildActivityNotification(doctorID, studentID uint, summary ActivitySummary) *model.Notification {
	studentName := summary.StudentName
	if studentName == "" {
		studentName = fmt.Sprintf("Student #%d", studentID)
	}
	activityName := model.ActivityName(summary.ModuleType, summary.ActivityID)
	moduleName := model.ModuleName(summary.ModuleType)

	typ := model.NotificationInfo
	title := fmt.Sprintf("%s completed %s", studentName, activityName)
	if s.thresholds().IsCelebration(summary.Percentage) {
		typ = model.NotificationAchievement
		title = fmt.Sprintf("🎉 %s excelled at %s", studentName, activityName)
	}

	return &model.Notification{
		RecipientUserID: doctorID,
		Title:           title,
		Message: fmt.Sprintf("%s scored %d%% on %s in %s.",
			studentName, summary.Percentage, activityName, moduleName),
		Type: typ,
		Payload: &model.NotificationPayload{
			Kind: model.PayloadActivityCompleted,
			Activity: &model.ActivityNotificationPayload{
				StudentID:    studentID,
				StudentName:  studentName,
				ModuleType:   summary.ModuleType,
				ModuleName:   moduleName,
				ActivityID:   summary.ActivityID,
				ActivityName: activityName,
				Percentage:   summary.Percentage,
			},
		},
	}
}

func (s *NotificationService) emailSupervisor(doctorID uint, n *model.Notification, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), emailTimeout)
	defer cancel()

	doctor, err := s.UserRepo.FindByID(ctx, doctorID)
	if err != nil {
		logger.Log.Warn("Failed to load doctor for email", zap.Uint("doctorId", doctorID), zap.Error(err))
		return
	}
	err = s.Email.SendEmail(ctx, token, apiclient.EmailRequest{
		To:      doctor.Email,
		Subject: n.Title,
		Body:    n.Message,
	})
	if err != nil {
		logger.Log.Warn("Failed to send supervisor email", zap.Uint("doctorId", doctorID), zap.Error(err))
	}
}

func (s *NotificationService) thresholds() Thresholds {
	if s.Settings == nil {
		return DefaultThresholds()
	}
	return s.Settings.Thresholds()
}

func (s *NotificationService) List(ctx context.Context, session *Session, unreadOnly bool, limit int) ([]model.Notification, error) {
	if session == nil {
		return nil, util.ErrPermissionDenied
	}
	return s.NotificationRepo.ListByRecipient(ctx, session.UserID, unreadOnly, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, session *Session) (int64, error) {
	if session == nil {
		return 0, util.ErrPermissionDenied
	}
	return s.NotificationRepo.CountUnread(ctx, session.UserID)
}

// MarkRead 只有接收人可以标记已读
func (s *NotificationService) MarkRead(ctx context.Context, session *Session, id uint) (*model.Notification, error) {
	if session == nil {
		return nil, util.ErrPermissionDenied
	}
	n, err := s.NotificationRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	if n.RecipientUserID != session.UserID {
		return nil, util.ErrPermissionDenied
	}
	if n.Read {
		return n, nil
	}
	n.Read = true
	if err := s.NotificationRepo.Save(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, session *Session) (int, error) {
	if session == nil {
		return 0, util.ErrPermissionDenied
	}
	return s.NotificationRepo.MarkAllRead(ctx, session.UserID)
}

// PruneOlderThan 删除保留期之前的通知
func (s *NotificationService) PruneOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	return s.NotificationRepo.DeleteOlderThan(ctx, time.Now().Add(-retention))
}

// SendInactivityReminders 给 inactiveDays 天内无活动的儿童及其家长各发一条提醒，同一天内不重复
func (s *NotificationService) SendInactivityReminders(ctx context.Context, inactiveDays int, now time.Time) (int, error) {
	children, err := s.UserRepo.FindInactiveChildren(ctx, now.AddDate(0, 0, -inactiveDays))
	if err != nil {
		return 0, err
	}

	today := startOfDay(now)
	sent := 0
	for _, child := range children {
		recipients := []uint{child.ID}
		if child.ParentID != nil {
			recipients = append(recipients, *child.ParentID)
		}
		for _, recipientID := range recipients {
			exists, err := s.NotificationRepo.HasSince(ctx, recipientID, model.NotificationReminder, today)
			if err != nil {
				return sent, err
			}
			if exists {
				continue
			}
			n := reminderNotification(recipientID, child, inactiveDays, today)
			if err := s.NotificationRepo.Create(ctx, n); err != nil {
				return sent, err
			}
			monitoring.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
			sent++
		}
	}
	return sent, nil
}

func reminderNotification(recipientID uint, child model.User, inactiveDays int, day time.Time) *model.Notification {
	message := fmt.Sprintf("We miss you! No activities for %d days. A short game keeps the streak alive.", inactiveDays)
	if recipientID != child.ID {
		message = fmt.Sprintf("%s has not practised for %d days.", child.Name, inactiveDays)
	}
	return &model.Notification{
		RecipientUserID: recipientID,
		Title:           "Time to practise",
		Message:         message,
		Type:            model.NotificationReminder,
		Payload: &model.NotificationPayload{
			Kind: model.PayloadInactivity,
			Reminder: &model.ReminderPayload{
				InactiveDays: inactiveDays,
				Day:          day.Format(util.DateFormat),
			},
		},
	}
}
