package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"learnbridge_backend/internal/config"
	"learnbridge_backend/internal/middleware"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/repository"
	"learnbridge_backend/internal/service"
	"learnbridge_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testSecret = "controller-test-secret"

type failingStore struct{}

func (failingStore) UpsertAttempt(context.Context, *model.ActivityAttempt, model.ScoreMergePolicy) (*model.ActivityAttempt, error) {
	return nil, errors.New("database is locked")
}

func (failingStore) AppendLog(context.Context, *model.ActivityLog) error {
	return errors.New("database is locked")
}

func (failingStore) AddPoints(context.Context, uint, int) error {
	return errors.New("database is locked")
}

type recordResponse struct {
	Code    int                  `json:"code"`
	Message string               `json:"message"`
	Data    service.RecordResult `json:"data"`
}

func newActivityRouter(svc *service.ActivityService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret, ExpireTime: time.Hour}}

	ctrl := NewActivityController(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("config", cfg)
		c.Next()
	})
	r.GET("/api/catalog", ctrl.Catalog)
	r.POST("/api/activities/attempts", middleware.TryAuthMiddleware(), ctrl.RecordAttempt)
	r.GET("/api/activities/history", middleware.TryAuthMiddleware(), ctrl.ListHistory)
	return r
}

func postAttempt(t *testing.T, r http.Handler, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/activities/attempts", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRecordAttemptAsGuest(t *testing.T) {
	r := newActivityRouter(&service.ActivityService{Settings: service.DefaultProgressSettings()})

	w := postAttempt(t, r, "", service.RecordAttemptRequest{
		ModuleType:      model.Dyslexia,
		ActivityID:      "letter-match",
		Score:           100,
		MaxScore:        100,
		DurationSeconds: 90,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp recordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Success)
	assert.True(t, resp.Data.Guest)
	assert.Equal(t, 100, resp.Data.Percentage)
	assert.Equal(t, 135, resp.Data.PointsAwarded)
	assert.Contains(t, resp.Data.Message, "Sign in to save your progress.")
}

func TestRecordAttemptRejectsBadInput(t *testing.T) {
	r := newActivityRouter(&service.ActivityService{Settings: service.DefaultProgressSettings()})

	w := postAttempt(t, r, "", map[string]interface{}{"moduleType": "astronomy", "activityId": "stars"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postAttempt(t, r, "", map[string]interface{}{"moduleType": "dyslexia"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postAttempt(t, r, "not-a-jwt", service.RecordAttemptRequest{ModuleType: model.Dyslexia, ActivityID: "letter-match"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecordAttemptPersistenceFailure(t *testing.T) {
	store := failingStore{}
	r := newActivityRouter(&service.ActivityService{
		Attempts: store,
		Points:   store,
		Settings: service.DefaultProgressSettings(),
	})

	token, err := util.GenerateJWT(&model.User{BaseModel: model.BaseModel{ID: 3}, Name: "Sam", Role: model.Child}, testSecret, time.Hour)
	require.NoError(t, err)

	w := postAttempt(t, r, token, service.RecordAttemptRequest{
		ModuleType: model.Dyslexia,
		ActivityID: "letter-match",
		Score:      80,
		MaxScore:   100,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp recordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Success)
	assert.False(t, resp.Data.Guest)
	assert.Equal(t, 80, resp.Data.Percentage)
	assert.Equal(t, util.ErrPersistence.Error(), resp.Data.Error)
}

func TestCatalogAndHistoryAuth(t *testing.T) {
	r := newActivityRouter(&service.ActivityService{Settings: service.DefaultProgressSettings()})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []model.CatalogModule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, len(model.Catalog()))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/activities/history", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListHistoryCapsPage(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:history_page?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.AllModels()...))

	repo := repository.NewActivityRepository(db)
	require.NoError(t, repo.AppendLog(context.Background(), &model.ActivityLog{
		UserID: 4, ModuleType: model.Dyslexia, ActivityID: "letter-match", Percentage: 70,
	}))

	r := newActivityRouter(&service.ActivityService{ActivityRepo: repo, Settings: service.DefaultProgressSettings()})
	token, err := util.GenerateJWT(&model.User{BaseModel: model.BaseModel{ID: 4}, Name: "Ivy", Role: model.Child}, testSecret, time.Hour)
	require.NoError(t, err)

	get := func(query string) (int, []model.ActivityLog) {
		req := httptest.NewRequest(http.MethodGet, "/api/activities/history?"+query, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Data struct {
				List []model.ActivityLog `json:"list"`
				Page int                 `json:"page"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.Data.Page, resp.Data.List
	}

	page, list := get("page=1")
	assert.Equal(t, 1, page)
	assert.Len(t, list, 1)

	page, list = get("page=922337203685477580&limit=100")
	assert.Equal(t, maxHistoryPage, page)
	assert.Empty(t, list)
}
