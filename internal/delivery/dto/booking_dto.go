package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request DTOs

type BlockSlotRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" validate:"required"`
	Date     string    `json:"date" validate:"required,slotdate"` // Format: YYYY-MM-DD
	Time     string    `json:"time" validate:"required,slottime"` // Format: HH:MM
}

// ConfirmBookingRequest identifies the hold either by id or by its slot
type ConfirmBookingRequest struct {
	HoldID   *uuid.UUID `json:"hold_id" validate:"required_without=DoctorID"`
	DoctorID *uuid.UUID `json:"doctor_id" validate:"required_without=HoldID"`
	Date     string     `json:"date" validate:"omitempty,slotdate"`
	Time     string     `json:"time" validate:"omitempty,slottime"`
	Notes    string     `json:"notes" validate:"omitempty,max=500"`
}

type AdminCreateBookingRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id" validate:"required"`
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
	Date      string    `json:"date" validate:"required,slotdate"`
	Time      string    `json:"time" validate:"required,slottime"`
	Notes     string    `json:"notes" validate:"omitempty,max=500"`
}

type UpdateBookingStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed cancelled"`
}

// Response DTOs

type HoldResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	HolderID  uuid.UUID `json:"holder_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"` // seconds
}

type BookingResponse struct {
	ID          uuid.UUID       `json:"id"`
	DoctorID    uuid.UUID       `json:"doctor_id"`
	PatientID   uuid.UUID       `json:"patient_id"`
	Date        string          `json:"date"`
	Time        string          `json:"time"`
	BookingCode string          `json:"booking_code"`
	Status      string          `json:"status"`
	Source      string          `json:"source"`
	HoldID      *uuid.UUID      `json:"hold_id,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Fee         decimal.Decimal `json:"fee"`
	Doctor      *DoctorResponse `json:"doctor,omitempty"`
	Patient     *UserResponse   `json:"patient,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type BookingListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Total    int               `json:"total"`
}
