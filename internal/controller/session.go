package controller

import (
	"learnbridge_backend/internal/service"
	"learnbridge_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// currentSession 未登录时返回 nil（访客）
func currentSession(ctx *gin.Context) *service.Session {
	return service.SessionFromClaims(util.GetUserFromContext(ctx), ctx.GetString("token"))
}

// requireSession 需要登录的接口使用，未登录时已写入 401
func requireSession(ctx *gin.Context) *service.Session {
	session := currentSession(ctx)
	if session == nil {
		util.Unauthorized(ctx)
	}
	return session
}
