package model

import (
	"time"
)

type LinkStatus string

const (
	LinkActive   LinkStatus = "active"
	LinkInactive LinkStatus = "inactive"
)

type DoctorPatientLink struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	DoctorID   uint       `gorm:"index;not null" json:"doctorId"`
	PatientID  uint       `gorm:"index;not null" json:"patientId"`
	Status     LinkStatus `gorm:"size:20;default:'active';index" json:"status"`
	AssignedAt time.Time  `json:"assignedAt"`
	Notes      string     `gorm:"type:text" json:"notes"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (DoctorPatientLink) TableName() string {
	return "doctor_patient_links"
}
