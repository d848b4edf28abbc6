package service

import (
	"context"
	"learnbridge_backend/internal/config"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour}}
	svc := NewAuthService(env.users, cfg)

	parent, err := svc.Register(ctx, RegisterInput{Name: "Nora", Email: "Nora@Example.com", Password: "password1", Role: model.Parent})
	require.NoError(t, err)
	assert.Equal(t, "nora@example.com", parent.Email)

	child, err := svc.Register(ctx, RegisterInput{Name: "Otto", Email: "otto@example.com", Password: "password2", ParentEmail: "nora@example.com"})
	require.NoError(t, err)
	assert.Equal(t, model.Child, child.Role)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)

	_, err = svc.Register(ctx, RegisterInput{Name: "Dup", Email: "otto@example.com", Password: "password3"})
	assert.ErrorIs(t, err, util.ErrEmailRegistered)

	_, err = svc.Register(ctx, RegisterInput{Name: "Root", Email: "root@example.com", Password: "password4", Role: model.Admin})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = svc.Login(ctx, "otto@example.com", "wrong")
	assert.ErrorIs(t, err, util.ErrInvalidCredential)

	result, err := svc.Login(ctx, "OTTO@example.com", "password2")
	require.NoError(t, err)
	claims, err := util.ParseJWT(result.Token, cfg.JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, child.ID, claims.UserID)
	assert.Equal(t, model.Child, claims.Role)
}
