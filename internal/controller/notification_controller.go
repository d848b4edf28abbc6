package controller

import (
	"learnbridge_backend/internal/service"
	"learnbridge_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	NotificationService *service.NotificationService
}

func NewNotificationController(notificationService *service.NotificationService) *NotificationController {
	return &NotificationController{NotificationService: notificationService}
}

// @Summary 通知列表
// @Description 按时间倒序返回当前用户的通知
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "仅未读"
// @Param limit query int false "数量" default(50)
// @Success 200 {object} util.Response{data=[]model.Notification}
// @Router /api/notifications [get]
func (c *NotificationController) List(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	unreadOnly := ctx.Query("unread") == "true"
	limit := util.QueryInt(ctx.Query("limit"), 50, 200)

	list, err := c.NotificationService.List(ctx.Request.Context(), session, unreadOnly, limit)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// @Summary 未读通知数
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/notifications/unread-count [get]
func (c *NotificationController) UnreadCount(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	count, err := c.NotificationService.UnreadCount(ctx.Request.Context(), session)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"count": count})
}

// @Summary 标记已读
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Param id path int true "通知ID"
// @Success 200 {object} util.Response{data=model.Notification}
// @Failure 403 {object} util.Response "不是接收者"
// @Failure 404 {object} util.Response "通知不存在"
// @Router /api/notifications/{id}/read [patch]
func (c *NotificationController) MarkRead(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	id := util.MustParseUint(ctx.Param("id"))
	if id == 0 {
		util.BadRequest(ctx, "Invalid notification id")
		return
	}

	n, err := c.NotificationService.MarkRead(ctx.Request.Context(), session, id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, n)
}

// @Summary 全部标记已读
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/notifications/read-all [patch]
func (c *NotificationController) MarkAllRead(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	updated, err := c.NotificationService.MarkAllRead(ctx.Request.Context(), session)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"updated": updated})
}
