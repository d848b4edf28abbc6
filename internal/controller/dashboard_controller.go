package controller

import (
	"learnbridge_backend/internal/service"
	"learnbridge_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DashboardController struct {
	DashboardService *service.DashboardService
}

func NewDashboardController(dashboardService *service.DashboardService) *DashboardController {
	return &DashboardController{DashboardService: dashboardService}
}

// @Summary 学生仪表盘
// @Description 积分、等级、连续天数、各模块统计、最近记录与成就
// @Tags 仪表盘
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.StudentSummary}
// @Router /api/dashboard/student [get]
func (c *DashboardController) Student(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	summary, err := c.DashboardService.StudentDashboard(ctx.Request.Context(), session)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// @Summary 家长仪表盘
// @Tags 仪表盘
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.StudentSummary}
// @Router /api/dashboard/parent [get]
func (c *DashboardController) Parent(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	summaries, err := c.DashboardService.ParentDashboard(ctx.Request.Context(), session)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, summaries)
}

// @Summary 医生仪表盘
// @Tags 仪表盘
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.StudentSummary}
// @Router /api/dashboard/doctor [get]
func (c *DashboardController) Doctor(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	summaries, err := c.DashboardService.DoctorDashboard(ctx.Request.Context(), session)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, summaries)
}

// @Summary 平台统计
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.AdminStats}
// @Router /api/admin/stats [get]
func (c *DashboardController) AdminStats(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	stats, err := c.DashboardService.AdminStats(ctx.Request.Context(), session)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}
