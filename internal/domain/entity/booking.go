package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// BookingSource tells how a booking came to exist
type BookingSource string

const (
	BookingSourceHold  BookingSource = "hold"
	BookingSourceAdmin BookingSource = "admin"
)

// ActiveSlotIndex is the partial unique index that allows a single
// confirmed booking per (doctor, date, time).
const ActiveSlotIndex = "idx_bookings_active_slot"

// Booking represents a confirmed appointment occupying a slot
type Booking struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	DoctorID    uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_bookings_active_slot,where:status = 'confirmed'" json:"doctor_id"`
	PatientID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"patient_id"`
	SlotDate    string          `gorm:"type:varchar(10);not null;index;uniqueIndex:idx_bookings_active_slot,where:status = 'confirmed'" json:"slot_date"`
	SlotTime    string          `gorm:"type:varchar(5);not null;uniqueIndex:idx_bookings_active_slot,where:status = 'confirmed'" json:"slot_time"`
	BookingCode string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"booking_code"`
	Status      BookingStatus   `gorm:"type:varchar(20);not null;default:'confirmed';index" json:"status"`
	Source      BookingSource   `gorm:"type:varchar(20);not null;default:'hold'" json:"source"`
	HoldID      *uuid.UUID      `gorm:"type:uuid" json:"hold_id,omitempty"`
	Notes       string          `gorm:"type:text" json:"notes,omitempty"`
	Fee         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"fee"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Patient User          `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Doctor  DoctorProfile `gorm:"foreignKey:DoctorID;references:UserID" json:"doctor,omitempty"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) Key() SlotKey {
	return NewSlotKey(b.DoctorID, b.SlotDate, b.SlotTime)
}

// IsConfirmed checks if booking currently occupies its slot
func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

// IsCancelled checks if booking is cancelled
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// BookingFilter narrows admin booking listings
type BookingFilter struct {
	DoctorID *uuid.UUID
	Date     string
	Status   BookingStatus
}
