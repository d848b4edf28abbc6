package service

import (
	"context"
	"errors"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableStore 访客路径不允许触达任何持久化
type unreachableStore struct{ t *testing.T }

func (s unreachableStore) UpsertAttempt(context.Context, *model.ActivityAttempt, model.ScoreMergePolicy) (*model.ActivityAttempt, error) {
	s.t.Fatal("UpsertAttempt called for guest")
	return nil, nil
}

func (s unreachableStore) AppendLog(context.Context, *model.ActivityLog) error {
	s.t.Fatal("AppendLog called for guest")
	return nil
}

func (s unreachableStore) AddPoints(context.Context, uint, int) error {
	s.t.Fatal("AddPoints called for guest")
	return nil
}

func (s unreachableStore) Evaluate(context.Context, uint, model.ModuleType, int) ([]model.Achievement, error) {
	s.t.Fatal("Evaluate called for guest")
	return nil, nil
}

func (s unreachableStore) NotifySupervisor(context.Context, uint, ActivitySummary) {
	s.t.Fatal("NotifySupervisor called for guest")
}

type brokenStore struct{}

func (brokenStore) UpsertAttempt(context.Context, *model.ActivityAttempt, model.ScoreMergePolicy) (*model.ActivityAttempt, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) AppendLog(context.Context, *model.ActivityLog) error {
	return errors.New("connection refused")
}

func letterMatch(score int) RecordAttemptRequest {
	return RecordAttemptRequest{
		ModuleType:      model.Dyslexia,
		ActivityID:      "letter-match",
		Score:           score,
		MaxScore:        100,
		DurationSeconds: 90,
	}
}

func achievementIDs(list []model.Achievement) []string {
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.AchievementID)
	}
	return ids
}

func TestRecordAttemptGuest(t *testing.T) {
	store := unreachableStore{t: t}
	svc := &ActivityService{
		Attempts:     store,
		Points:       store,
		Achievements: store,
		Notifier:     store,
		Settings:     DefaultProgressSettings(),
	}

	result, err := svc.RecordAttempt(context.Background(), nil, letterMatch(100))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Guest)
	assert.Equal(t, 100, result.Percentage)
	assert.Equal(t, 135, result.PointsAwarded)
	assert.Contains(t, result.Message, "Sign in")
	assert.Empty(t, result.UnlockedAchievements)
}

func TestRecordAttemptValidation(t *testing.T) {
	svc := &ActivityService{Settings: DefaultProgressSettings()}
	ctx := context.Background()

	_, err := svc.RecordAttempt(ctx, nil, RecordAttemptRequest{ModuleType: "astronomy", ActivityID: "x"})
	assert.ErrorIs(t, err, util.ErrInvalidModule)

	_, err = svc.RecordAttempt(ctx, nil, RecordAttemptRequest{ModuleType: model.Dyslexia})
	assert.ErrorIs(t, err, util.ErrInvalidActivity)

	_, err = svc.RecordAttempt(ctx, nil, RecordAttemptRequest{ModuleType: model.Dyslexia, ActivityID: "letter-match", Score: -1})
	assert.ErrorIs(t, err, util.ErrInvalidScore)

	accuracy := 101
	req := letterMatch(10)
	req.Accuracy = &accuracy
	_, err = svc.RecordAttempt(ctx, nil, req)
	assert.ErrorIs(t, err, util.ErrInvalidScore)

	req = letterMatch(10)
	req.Details = &model.AttemptDetails{Kind: model.Dyscalculia}
	_, err = svc.RecordAttempt(ctx, nil, req)
	assert.ErrorIs(t, err, util.ErrInvalidDetails)
}

func TestRecordAttemptPersistenceFailure(t *testing.T) {
	svc := &ActivityService{
		Attempts: brokenStore{},
		Settings: DefaultProgressSettings(),
	}

	result, err := svc.RecordAttempt(context.Background(), &Session{UserID: 7, Role: model.Child}, letterMatch(80))
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrPersistence)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, util.ErrPersistence.Error(), result.Error)
	assert.Equal(t, 80, result.Percentage)
	assert.Equal(t, 90, result.PointsAwarded)
}

func TestRecordAttemptLetterMatchEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	child := env.createUser(t, "Ada", model.Child, nil)
	doctor := env.createUser(t, "Grace", model.Doctor, nil)
	env.link(t, doctor.ID, child.ID)

	svc := env.activityService()
	result, err := svc.RecordAttempt(ctx, sessionFor(child), letterMatch(100))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.Guest)
	assert.Equal(t, 100, result.Percentage)
	assert.True(t, result.Completed)
	assert.Equal(t, 135, result.PointsAwarded)
	assert.ElementsMatch(t, []string{model.AchievementFirstActivity, "perfect_dyslexia"}, achievementIDs(result.UnlockedAchievements))

	notes, err := env.notifications.ListByRecipient(ctx, doctor.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationAchievement, notes[0].Type)
	assert.Contains(t, notes[0].Title, "Ada")
	require.NotNil(t, notes[0].Payload)
	require.NotNil(t, notes[0].Payload.Activity)
	assert.Equal(t, 100, notes[0].Payload.Activity.Percentage)
	assert.Equal(t, "letter-match", notes[0].Payload.Activity.ActivityID)

	saved, err := env.users.FindByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, 135, saved.Points)
	assert.Equal(t, 100, saved.XP)

	attempts, err := env.activities.ListAttempts(ctx, child.ID, model.Dyslexia)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 1, attempts[0].AttemptCount)
	assert.Equal(t, 100, attempts[0].Percentage)

	// 再次完成且分数更低：keep_max 保留最高分，成就不重复解锁
	second, err := svc.RecordAttempt(ctx, sessionFor(child), letterMatch(40))
	require.NoError(t, err)
	assert.False(t, second.Completed)
	assert.Empty(t, second.UnlockedAchievements)

	attempts, err = env.activities.ListAttempts(ctx, child.ID, model.Dyslexia)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 2, attempts[0].AttemptCount)
	assert.Equal(t, 100, attempts[0].Percentage)
	assert.True(t, attempts[0].Completed)

	logs, total, err := env.activities.ListLogs(ctx, child.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, logs, 2)

	count, err := env.notifications.CountUnread(ctx, doctor.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRecordAttemptDoctorThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	child := env.createUser(t, "Ben", model.Child, nil)
	doctor := env.createUser(t, "House", model.Doctor, nil)
	env.link(t, doctor.ID, child.ID)
	svc := env.activityService()

	_, err := svc.RecordAttempt(ctx, sessionFor(child), RecordAttemptRequest{
		ModuleType: model.Dyscalculia, ActivityID: "number-line", Score: 79, MaxScore: 100, DurationSeconds: 200,
	})
	require.NoError(t, err)
	count, err := env.notifications.CountUnread(ctx, doctor.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	_, err = svc.RecordAttempt(ctx, sessionFor(child), RecordAttemptRequest{
		ModuleType: model.Dyscalculia, ActivityID: "math-facts", Score: 80, MaxScore: 100, DurationSeconds: 200,
	})
	require.NoError(t, err)
	notes, err := env.notifications.ListByRecipient(ctx, doctor.ID, true, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationInfo, notes[0].Type)
}

func TestRecordAttemptWithoutDoctorLink(t *testing.T) {
	env := newTestEnv(t)
	child := env.createUser(t, "Cleo", model.Child, nil)

	result, err := env.activityService().RecordAttempt(context.Background(), sessionFor(child), letterMatch(95))
	require.NoError(t, err)
	assert.True(t, result.Success)

	total, err := env.notifications.CountAll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestRecordAttemptMastery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	child := env.createUser(t, "Dora", model.Child, nil)
	svc := env.activityService()

	ids := model.ActivityIDs(model.Dysgraphia)
	var last *RecordResult
	for _, id := range ids {
		res, err := svc.RecordAttempt(ctx, sessionFor(child), RecordAttemptRequest{
			ModuleType: model.Dysgraphia, ActivityID: id, Score: 60, MaxScore: 100, DurationSeconds: 300,
		})
		require.NoError(t, err)
		last = res
	}

	assert.Contains(t, achievementIDs(last.UnlockedAchievements), "mastery_dysgraphia")

	all, err := env.achievements.FindByUserID(ctx, child.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{model.AchievementFirstActivity, "mastery_dysgraphia"}, achievementIDs(all))
}

func TestOverwritePolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.settings.Apply(configWithPolicy("overwrite"))
	child := env.createUser(t, "Eli", model.Child, nil)
	svc := env.activityService()

	_, err := svc.RecordAttempt(ctx, sessionFor(child), letterMatch(90))
	require.NoError(t, err)
	_, err = svc.RecordAttempt(ctx, sessionFor(child), letterMatch(30))
	require.NoError(t, err)

	attempts, err := env.activities.ListAttempts(ctx, child.ID, model.Dyslexia)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 30, attempts[0].Percentage)
	assert.False(t, attempts[0].Completed)
	assert.Equal(t, 2, attempts[0].AttemptCount)
}

// flakyLogStore 第一次写日志失败，其余调用透传给真实仓库
type flakyLogStore struct {
	AttemptStore
	failed bool
}

func (s *flakyLogStore) AppendLog(ctx context.Context, log *model.ActivityLog) error {
	if !s.failed {
		s.failed = true
		return errors.New("disk full")
	}
	return s.AttemptStore.AppendLog(ctx, log)
}

func TestFirstActivityAfterInterruptedAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	child := env.createUser(t, "Finn", model.Child, nil)
	svc := env.activityService()
	svc.Attempts = &flakyLogStore{AttemptStore: env.activities}

	_, err := svc.RecordAttempt(ctx, sessionFor(child), letterMatch(60))
	require.ErrorIs(t, err, util.ErrPersistence)

	result, err := svc.RecordAttempt(ctx, sessionFor(child), RecordAttemptRequest{
		ModuleType: model.Dyscalculia, ActivityID: "number-line", Score: 60, MaxScore: 100, DurationSeconds: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{model.AchievementFirstActivity}, achievementIDs(result.UnlockedAchievements))

	// 之后的记录不会重复解锁
	again, err := svc.RecordAttempt(ctx, sessionFor(child), letterMatch(70))
	require.NoError(t, err)
	assert.Empty(t, again.UnlockedAchievements)

	all, err := env.achievements.FindByUserID(ctx, child.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
