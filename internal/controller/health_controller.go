package controller

import (
	"context"
	"learnbridge_backend/internal/realtime"
	"learnbridge_backend/internal/util"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB    *gorm.DB
	Redis *redis.Client
	Hub   *realtime.Hub
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, hub *realtime.Hub) *HealthController {
	return &HealthController{DB: db, Redis: rdb, Hub: hub}
}

// @Summary 健康检查
// @Description 检查数据库、Redis 与实时服务状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}

	if err := sqlDB.Ping(); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	components := gin.H{"database": "up", "redis": "disabled", "realtime": "disabled"}
	if c.Redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := c.Redis.Ping(pingCtx).Err(); err != nil {
			components["redis"] = "down"
		} else {
			components["redis"] = "up"
		}
	}
	if c.Hub != nil {
		components["realtime"] = gin.H{"status": "up", "openChannels": c.Hub.Len()}
	}

	util.Success(ctx, gin.H{
		"status":     "ok",
		"components": components,
	})
}
