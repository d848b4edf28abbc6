package service

import (
	"context"
	"errors"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/repository"
	"learnbridge_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

type DoctorService struct {
	DoctorRepo *repository.DoctorPatientRepository
	UserRepo   *repository.UserRepository
}

func NewDoctorService(doctorRepo *repository.DoctorPatientRepository, userRepo *repository.UserRepository) *DoctorService {
	return &DoctorService{DoctorRepo: doctorRepo, UserRepo: userRepo}
}

type LinkPatientRequest struct {
	PatientID uint   `json:"patientId" binding:"required"`
	DoctorID  uint   `json:"doctorId"` // 仅管理员可代为指定
	Notes     string `json:"notes"`
}

type PatientEntry struct {
	Link    model.DoctorPatientLink `json:"link"`
	Patient model.User              `json:"patient"`
}

// resolveDoctor 医生只能操作自己的关系，管理员可指定医生
func (s *DoctorService) resolveDoctor(session *Session, requested uint) (uint, error) {
	if session == nil {
		return 0, util.ErrPermissionDenied
	}
	switch session.Role {
	case model.Doctor:
		return session.UserID, nil
	case model.Admin:
		if requested != 0 {
			return requested, nil
		}
		return session.UserID, nil
	}
	return 0, util.ErrPermissionDenied
}

// LinkPatient 已存在激活关系时直接返回该关系
func (s *DoctorService) LinkPatient(ctx context.Context, session *Session, req LinkPatientRequest) (*model.DoctorPatientLink, error) {
	doctorID, err := s.resolveDoctor(session, req.DoctorID)
	if err != nil {
		return nil, err
	}

	patient, err := s.UserRepo.FindByID(ctx, req.PatientID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrInvalidPatient
	}
	if err != nil {
		return nil, err
	}
	if patient.Role != model.Child {
		return nil, util.ErrInvalidPatient
	}

	existing, err := s.DoctorRepo.FindActive(ctx, doctorID, req.PatientID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	link := &model.DoctorPatientLink{
		DoctorID:   doctorID,
		PatientID:  req.PatientID,
		Status:     model.LinkActive,
		AssignedAt: time.Now(),
		Notes:      req.Notes,
	}
	if err := s.DoctorRepo.Create(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *DoctorService) ListPatients(ctx context.Context, session *Session) ([]PatientEntry, error) {
	doctorID, err := s.resolveDoctor(session, 0)
	if err != nil {
		return nil, err
	}
	links, err := s.DoctorRepo.ListActiveByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.PatientID)
	}
	users, err := s.UserRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	entries := make([]PatientEntry, 0, len(links))
	for _, l := range links {
		if u, ok := byID[l.PatientID]; ok {
			entries = append(entries, PatientEntry{Link: l, Patient: u})
		}
	}
	return entries, nil
}

// UnlinkPatient 关系置为 inactive，保留历史
func (s *DoctorService) UnlinkPatient(ctx context.Context, session *Session, patientID uint) error {
	doctorID, err := s.resolveDoctor(session, 0)
	if err != nil {
		return err
	}
	link, err := s.DoctorRepo.FindActive(ctx, doctorID, patientID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrNotLinked
	}
	if err != nil {
		return err
	}
	link.Status = model.LinkInactive
	return s.DoctorRepo.Save(ctx, link)
}
