package repository

import (
	"go-medical-reservation/internal/domain/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingRepository interface {
	Create(db *gorm.DB, booking *entity.Booking) error
	FindByID(db *gorm.DB, id uuid.UUID) (*entity.Booking, error)
	FindByPatientID(db *gorm.DB, patientID uuid.UUID) ([]entity.Booking, error)
	FindAll(db *gorm.DB, filter *entity.BookingFilter) ([]entity.Booking, error)
	FindConfirmedBySlot(db *gorm.DB, key entity.SlotKey) (*entity.Booking, error)
	FindConfirmedByDoctor(db *gorm.DB, doctorID uuid.UUID, from, to string) ([]entity.Booking, error)
	CountConfirmedInWindow(db *gorm.DB, doctorID uuid.UUID, date, from, to string) (int64, error)
	CancelBooking(db *gorm.DB, id uuid.UUID) (int64, error)
	ReinstateBooking(db *gorm.DB, id uuid.UUID) (int64, error)
}
