package controller

import (
	"errors"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/service"
	"learnbridge_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// 超出上限的页码按最后可寻址页处理，避免 offset 溢出
const maxHistoryPage = 10000

type ActivityController struct {
	ActivityService *service.ActivityService
}

func NewActivityController(activityService *service.ActivityService) *ActivityController {
	return &ActivityController{ActivityService: activityService}
}

// RecordAttempt godoc
// @Summary 记录活动完成
// @Description 计算百分比与积分；登录用户写入进度、历史、成就并通知医生，访客只返回计算结果
// @Tags 活动
// @Accept json
// @Produce json
// @Param body body service.RecordAttemptRequest true "活动结果"
// @Success 200 {object} util.Response{data=service.RecordResult}
// @Failure 400 {object} util.Response "参数错误"
// @Router /api/activities/attempts [post]
func (c *ActivityController) RecordAttempt(ctx *gin.Context) {
	var req service.RecordAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.ActivityService.RecordAttempt(ctx.Request.Context(), currentSession(ctx), req)
	// 持久化失败仍返回本地计算结果，由客户端提示
	if err != nil && (result == nil || !errors.Is(err, util.ErrPersistence)) {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 我的活动进度
// @Tags 活动
// @Produce json
// @Security BearerAuth
// @Param moduleType query string false "模块类型"
// @Success 200 {object} util.Response{data=[]model.ActivityAttempt}
// @Router /api/activities/attempts [get]
func (c *ActivityController) ListAttempts(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	module := model.ModuleType(ctx.Query("moduleType"))
	if module != "" && !module.Valid() {
		util.BadRequest(ctx, util.ErrInvalidModule.Error())
		return
	}

	attempts, err := c.ActivityService.ListAttempts(ctx.Request.Context(), session, module)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// @Summary 我的活动历史
// @Tags 活动
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/activities/history [get]
func (c *ActivityController) ListHistory(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	page := util.QueryInt(ctx.Query("page"), 1, maxHistoryPage)
	limit := util.QueryInt(ctx.Query("limit"), 20, 100)

	logs, total, err := c.ActivityService.ListHistory(ctx.Request.Context(), session, page, limit)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: logs, Total: total, Page: page, Limit: limit})
}

// @Summary 活动目录
// @Tags 活动
// @Produce json
// @Success 200 {object} util.Response{data=[]model.CatalogModule}
// @Router /api/catalog [get]
func (c *ActivityController) Catalog(ctx *gin.Context) {
	util.Success(ctx, model.Catalog())
}
