package controller

import (
	"errors"
	"fmt"
	"learnbridge_backend/internal/apiclient"
	"learnbridge_backend/internal/service"
	"learnbridge_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AssistController struct {
	AssistService *service.AssistService
}

func NewAssistController(assistService *service.AssistService) *AssistController {
	return &AssistController{AssistService: assistService}
}

// handleProcessingError 处理后端错误：超时 504，后端拒绝 502，其余按领域错误处理
func handleProcessingError(ctx *gin.Context, err error) {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, apiclient.ErrTimeout):
		util.Error(ctx, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &apiErr):
		util.Error(ctx, http.StatusBadGateway, apiErr.Error())
	case errors.Is(err, util.ErrUnsupportedUpload):
		util.BadRequest(ctx, err.Error())
	default:
		util.HandleServiceError(ctx, err)
	}
}

// @Summary 文本简化
// @Tags 辅助工具
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body apiclient.SimplifyTextRequest true "原文"
// @Success 200 {object} util.Response{data=apiclient.SimplifyTextResponse}
// @Router /api/assist/simplify-text [post]
func (c *AssistController) SimplifyText(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	var req apiclient.SimplifyTextRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Text == "" {
		util.BadRequest(ctx, "text is required")
		return
	}

	result, err := c.AssistService.SimplifyText(ctx.Request.Context(), session, req)
	if err != nil {
		handleProcessingError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 手写分析
// @Tags 辅助工具
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param image formData file true "手写图片"
// @Success 200 {object} util.Response{data=service.HandwritingResult}
// @Router /api/assist/handwriting [post]
func (c *AssistController) AnalyzeHandwriting(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	fh, err := ctx.FormFile("image")
	if err != nil {
		util.BadRequest(ctx, "image is required")
		return
	}

	result, err := c.AssistService.AnalyzeHandwriting(ctx.Request.Context(), session, fh)
	if err != nil {
		handleProcessingError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 动作分析
// @Description 上传单帧图片或短视频，视频会先抽帧
// @Tags 辅助工具
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "图片或视频"
// @Success 200 {object} util.Response{data=service.MovementResult}
// @Router /api/assist/movement [post]
func (c *AssistController) AnalyzeMovement(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}

	result, err := c.AssistService.AnalyzeMovement(ctx.Request.Context(), session, fh)
	if err != nil {
		handleProcessingError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 学生PDF报告
// @Tags 辅助工具
// @Produce application/pdf
// @Security BearerAuth
// @Param id path int true "学生ID"
// @Success 200 {file} binary
// @Router /api/reports/students/{id}/pdf [get]
func (c *AssistController) StudentReport(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	studentID := util.MustParseUint(ctx.Param("id"))
	if studentID == 0 {
		util.BadRequest(ctx, "Invalid student id")
		return
	}

	report, err := c.AssistService.StudentReport(ctx.Request.Context(), session, studentID)
	if err != nil {
		handleProcessingError(ctx, err)
		return
	}

	if report.URL != "" {
		ctx.Header("X-Report-URL", report.URL)
	}
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=student-%d-report.pdf", studentID))
	ctx.Data(http.StatusOK, "application/pdf", report.Data)
}
