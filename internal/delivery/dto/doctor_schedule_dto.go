package dto

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs

type CreateScheduleRequest struct {
	DoctorID         uuid.UUID `json:"doctor_id" validate:"required"`
	ScheduleDate     string    `json:"schedule_date" validate:"required,slotdate"` // Format: YYYY-MM-DD
	StartTime        string    `json:"start_time" validate:"required,slottime"`    // Format: HH:MM
	EndTime          string    `json:"end_time" validate:"required,slottime"`      // Format: HH:MM
	SlotMinutes      int       `json:"slot_minutes" validate:"omitempty,min=5,max=240"`
	ConsultationType string    `json:"consultation_type" validate:"omitempty,oneof=offline online"`
}

type UpdateScheduleRequest struct {
	ScheduleDate     string `json:"schedule_date" validate:"omitempty,slotdate"`
	StartTime        string `json:"start_time" validate:"omitempty,slottime"`
	EndTime          string `json:"end_time" validate:"omitempty,slottime"`
	SlotMinutes      *int   `json:"slot_minutes" validate:"omitempty,min=5,max=240"`
	ConsultationType string `json:"consultation_type" validate:"omitempty,oneof=offline online"`
}

// Response DTOs

type ScheduleResponse struct {
	ID               int             `json:"id"`
	DoctorID         uuid.UUID       `json:"doctor_id"`
	Doctor           *DoctorResponse `json:"doctor,omitempty"`
	ScheduleDate     string          `json:"schedule_date"`
	StartTime        string          `json:"start_time"`
	EndTime          string          `json:"end_time"`
	SlotMinutes      int             `json:"slot_minutes"`
	ConsultationType string          `json:"consultation_type"`
	TimeSlots        []string        `json:"time_slots"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type ScheduleListResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
	Total     int                `json:"total"`
}
