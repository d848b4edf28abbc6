package repository

import (
	"context"
	"learnbridge_backend/internal/model"

	"gorm.io/gorm"
)

type DoctorPatientRepository struct {
	DB *gorm.DB
}

func NewDoctorPatientRepository(db *gorm.DB) *DoctorPatientRepository {
	return &DoctorPatientRepository{DB: db}
}

func (r *DoctorPatientRepository) Create(ctx context.Context, link *model.DoctorPatientLink) error {
	return r.DB.WithContext(ctx).Create(link).Error
}

// FindActiveByPatient 一个患者可能有多条激活关系，取最近分配的医生
func (r *DoctorPatientRepository) FindActiveByPatient(ctx context.Context, patientID uint) (*model.DoctorPatientLink, error) {
	var link model.DoctorPatientLink
	err := r.DB.WithContext(ctx).
		Where("patient_id = ? AND status = ?", patientID, model.LinkActive).
		Order("assigned_at DESC, id DESC").
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *DoctorPatientRepository) FindActive(ctx context.Context, doctorID, patientID uint) (*model.DoctorPatientLink, error) {
	var link model.DoctorPatientLink
	err := r.DB.WithContext(ctx).
		Where("doctor_id = ? AND patient_id = ? AND status = ?", doctorID, patientID, model.LinkActive).
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *DoctorPatientRepository) ListActiveByDoctor(ctx context.Context, doctorID uint) ([]model.DoctorPatientLink, error) {
	var links []model.DoctorPatientLink
	err := r.DB.WithContext(ctx).
		Where("doctor_id = ? AND status = ?", doctorID, model.LinkActive).
		Order("assigned_at DESC").
		Find(&links).Error
	return links, err
}

func (r *DoctorPatientRepository) Save(ctx context.Context, link *model.DoctorPatientLink) error {
	return r.DB.WithContext(ctx).Save(link).Error
}

func (r *DoctorPatientRepository) IsLinked(ctx context.Context, doctorID, patientID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.DoctorPatientLink{}).
		Where("doctor_id = ? AND patient_id = ? AND status = ?", doctorID, patientID, model.LinkActive).
		Count(&count).Error
	return count > 0, err
}
