package service

import (
	"context"
	"learnbridge_backend/internal/apiclient"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStats struct{}

func (staticStats) AdminStats(context.Context, string) (*apiclient.AdminStats, error) {
	return &apiclient.AdminStats{ReportsGenerated: 4}, nil
}

type onlineUsers map[uint]bool

func (o onlineUsers) UserOnline(_ context.Context, userID uint) bool {
	return o[userID]
}

func TestDoctorDashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := env.createUser(t, "Nash", model.Doctor, nil)
	first := env.createUser(t, "Pia", model.Child, nil)
	second := env.createUser(t, "Rex", model.Child, nil)
	env.link(t, doctor.ID, first.ID)
	env.link(t, doctor.ID, second.ID)

	activities := env.activityService()
	_, err := activities.RecordAttempt(ctx, sessionFor(first), letterMatch(100))
	require.NoError(t, err)

	svc := NewDashboardService(env.users, env.activities, env.achievements, env.notifications, env.doctors, staticStats{})
	svc.Presence = onlineUsers{first.ID: true}
	summaries, err := svc.DoctorDashboard(ctx, sessionFor(doctor))
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byName := map[string]*StudentSummary{}
	for _, s := range summaries {
		byName[s.Student.Name] = s
	}
	pia := byName["Pia"]
	require.NotNil(t, pia)
	assert.Equal(t, 135, pia.Points)
	assert.True(t, pia.Online)
	assert.Len(t, pia.Recent, 1)
	assert.Len(t, pia.Achievements, 2)
	require.Len(t, pia.Modules, len(model.Catalog()))
	assert.Equal(t, model.Dyslexia, pia.Modules[0].ModuleType)
	assert.EqualValues(t, 1, pia.Modules[0].Attempts)
	assert.EqualValues(t, 1, pia.Modules[0].Completed)
	assert.Equal(t, len(model.ActivityIDs(model.Dyslexia)), pia.Modules[0].CatalogSize)

	rex := byName["Rex"]
	require.NotNil(t, rex)
	assert.Equal(t, 0, rex.Points)
	assert.False(t, rex.Online)
	assert.Empty(t, rex.Recent)

	_, err = svc.DoctorDashboard(ctx, sessionFor(first))
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "Sam", model.Admin, nil)
	env.createUser(t, "Tia", model.Child, nil)
	svc := NewDashboardService(env.users, env.activities, env.achievements, env.notifications, env.doctors, staticStats{})

	_, err := svc.AdminStats(ctx, nil)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	stats, err := svc.AdminStats(ctx, sessionFor(admin))
	require.NoError(t, err)
	assert.Len(t, stats.Users, 2)
	require.NotNil(t, stats.Processing)
	assert.EqualValues(t, 4, stats.Processing.ReportsGenerated)
}
