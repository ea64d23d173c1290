package dto

import (
	"go-medical-reservation/internal/domain/entity"

	"github.com/google/uuid"
)

type AvailabilityQuery struct {
	DoctorID         uuid.UUID
	From             string
	To               string
	ConsultationType string
	ForPatient       *uuid.UUID
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID                `json:"doctor_id"`
	From     string                   `json:"from"`
	To       string                   `json:"to"`
	Days     []entity.DayAvailability `json:"days"`
}
