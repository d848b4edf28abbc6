package controller

import (
	"learnbridge_backend/internal/service"
	"learnbridge_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AchievementController struct {
	AchievementService *service.AchievementService
}

func NewAchievementController(achievementService *service.AchievementService) *AchievementController {
	return &AchievementController{AchievementService: achievementService}
}

// @Summary 我的成就
// @Description 返回已解锁成就与经验等级
// @Tags 成就
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.UserAchievements}
// @Router /api/achievements [get]
func (c *AchievementController) GetUserAchievements(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	result, err := c.AchievementService.GetUserAchievements(ctx.Request.Context(), session.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 积分排行榜
// @Tags 成就
// @Produce json
// @Security BearerAuth
// @Param limit query int false "数量" default(10)
// @Success 200 {object} util.Response{data=[]service.LeaderboardEntry}
// @Router /api/leaderboard [get]
func (c *AchievementController) GetLeaderboard(ctx *gin.Context) {
	limit := util.QueryInt(ctx.Query("limit"), 10, 100)

	entries, err := c.AchievementService.GetLeaderboard(ctx.Request.Context(), limit)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, entries)
}
