package middleware

import (
	"learnbridge_backend/internal/config"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-test-secret"

type lastSeenRecorder struct {
	mu  sync.Mutex
	ids []uint
}

func (r *lastSeenRecorder) UpdateLastSeen(userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, userID)
	return nil
}

func (r *lastSeenRecorder) seen() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.ids...)
}

func tokenFor(t *testing.T, id uint, role model.UserRole) string {
	t.Helper()
	token, err := util.GenerateJWT(&model.User{BaseModel: model.BaseModel{ID: id}, Role: role}, secret, time.Hour)
	require.NoError(t, err)
	return token
}

func newRouter(recorder *lastSeenRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: secret}}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("config", cfg)
		c.Next()
	})

	whoami := func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims == nil {
			c.String(http.StatusOK, "guest")
			return
		}
		c.String(http.StatusOK, string(claims.Role))
	}
	r.GET("/optional", TryAuthMiddleware(), whoami)

	auth := r.Group("/", AuthMiddleware(), ActivityMiddleware(recorder))
	auth.GET("/me", whoami)
	auth.GET("/doctor", RoleMiddleware(model.Doctor), whoami)
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	recorder := &lastSeenRecorder{}
	r := newRouter(recorder)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "garbage").Code)

	expired, err := util.GenerateJWT(&model.User{BaseModel: model.BaseModel{ID: 1}, Role: model.Child}, secret, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", expired).Code)

	w := get(r, "/me", tokenFor(t, 4, model.Parent))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "parent", w.Body.String())
	require.Eventually(t, func() bool {
		return len(recorder.seen()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint{4}, recorder.seen())

	// 查询参数携带令牌（WebSocket 握手）
	w = get(r, "/me?token="+tokenFor(t, 5, model.Child), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTryAuthMiddleware(t *testing.T) {
	r := newRouter(&lastSeenRecorder{})

	w := get(r, "/optional", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "guest", w.Body.String())

	w = get(r, "/optional", tokenFor(t, 2, model.Child))
	assert.Equal(t, "child", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/optional", "garbage").Code)
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter(&lastSeenRecorder{})

	assert.Equal(t, http.StatusOK, get(r, "/doctor", tokenFor(t, 1, model.Doctor)).Code)
	assert.Equal(t, http.StatusOK, get(r, "/doctor", tokenFor(t, 2, model.Admin)).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/doctor", tokenFor(t, 3, model.Parent)).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/doctor", tokenFor(t, 4, model.Child)).Code)
}
