package controller

import (
	"learnbridge_backend/internal/realtime"
	"learnbridge_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

type RealtimeController struct {
	Hub  *realtime.Hub
	Auth realtime.Authorizer
}

func NewRealtimeController(hub *realtime.Hub, auth realtime.Authorizer) *RealtimeController {
	return &RealtimeController{Hub: hub, Auth: auth}
}

// @Summary 实时订阅
// @Description WebSocket 连接，支持表变更、在线状态与广播订阅
// @Tags 实时
// @Param token query string true "JWT令牌"
// @Router /api/realtime/ws [get]
func (c *RealtimeController) Serve(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	if c.Hub == nil {
		util.Error(ctx, http.StatusServiceUnavailable, util.ErrRealtimeDisabled.Error())
		return
	}

	realtime.ServeWs(c.Hub, c.Auth, ctx.Writer, ctx.Request, realtime.Identity{
		UserID: claims.UserID,
		Role:   string(claims.Role),
	})
}
