package service

import (
	"context"
	"fmt"
	"learnbridge_backend/internal/config"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/repository"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

type testEnv struct {
	db            *gorm.DB
	users         *repository.UserRepository
	activities    *repository.ActivityRepository
	achievements  *repository.AchievementRepository
	notifications *repository.NotificationRepository
	doctors       *repository.DoctorPatientRepository
	settings      *ProgressSettings
}

func newTestEnv(t *testing.T) *testEnv {
	db := newTestDB(t)
	return &testEnv{
		db:            db,
		users:         repository.NewUserRepository(db),
		activities:    repository.NewActivityRepository(db),
		achievements:  repository.NewAchievementRepository(db),
		notifications: repository.NewNotificationRepository(db),
		doctors:       repository.NewDoctorPatientRepository(db),
		settings:      DefaultProgressSettings(),
	}
}

func (e *testEnv) activityService() *ActivityService {
	achievements := NewAchievementService(e.achievements, e.activities, e.users, e.settings)
	notifications := NewNotificationService(e.notifications, e.doctors, e.users, e.settings, nil)
	return NewActivityService(e.activities, e.users, achievements, notifications, e.settings)
}

func (e *testEnv) createUser(t *testing.T, name string, role model.UserRole, parentID *uint) *model.User {
	t.Helper()
	u := &model.User{
		Name:     name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: "x",
		Role:     role,
		ParentID: parentID,
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) link(t *testing.T, doctorID, patientID uint) {
	t.Helper()
	require.NoError(t, e.doctors.Create(context.Background(), &model.DoctorPatientLink{
		DoctorID:   doctorID,
		PatientID:  patientID,
		Status:     model.LinkActive,
		AssignedAt: time.Now(),
	}))
}

func sessionFor(u *model.User) *Session {
	return &Session{UserID: u.ID, Role: u.Role, Name: u.Name, Token: "token-" + u.Name}
}

func configWithPolicy(policy string) config.ProgressConfig {
	return config.ProgressConfig{
		CompletionThreshold:   DefaultCompletionThreshold,
		NotifyDoctorThreshold: DefaultNotifyDoctorThreshold,
		CelebrationThreshold:  DefaultCelebrationThreshold,
		QuickDurationSeconds:  DefaultQuickDurationSeconds,
		ScoreMergePolicy:      policy,
	}
}
