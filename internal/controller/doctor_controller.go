package controller

import (
	"learnbridge_backend/internal/service"
	"learnbridge_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DoctorController struct {
	DoctorService *service.DoctorService
}

func NewDoctorController(doctorService *service.DoctorService) *DoctorController {
	return &DoctorController{DoctorService: doctorService}
}

// @Summary 关联患者
// @Description 医生关联一个儿童账号；管理员可指定 doctorId
// @Tags 医生
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.LinkPatientRequest true "关联信息"
// @Success 201 {object} util.Response{data=model.DoctorPatientLink}
// @Router /api/doctor/patients [post]
func (c *DoctorController) LinkPatient(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	var req service.LinkPatientRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	link, err := c.DoctorService.LinkPatient(ctx.Request.Context(), session, req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, link)
}

// @Summary 我的患者
// @Tags 医生
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.PatientEntry}
// @Router /api/doctor/patients [get]
func (c *DoctorController) ListPatients(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	patients, err := c.DoctorService.ListPatients(ctx.Request.Context(), session)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, patients)
}

// @Summary 解除关联
// @Tags 医生
// @Produce json
// @Security BearerAuth
// @Param patientId path int true "患者ID"
// @Success 200 {object} util.Response
// @Router /api/doctor/patients/{patientId} [delete]
func (c *DoctorController) UnlinkPatient(ctx *gin.Context) {
	session := requireSession(ctx)
	if session == nil {
		return
	}

	patientID := util.MustParseUint(ctx.Param("patientId"))
	if patientID == 0 {
		util.BadRequest(ctx, "Invalid patient id")
		return
	}

	if err := c.DoctorService.UnlinkPatient(ctx.Request.Context(), session, patientID); err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
