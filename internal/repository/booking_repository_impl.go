package repository

import (
	"errors"
	"time"

	"go-medical-reservation/internal/domain/entity"
	domainRepo "go-medical-reservation/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type bookingRepository struct{}

func NewBookingRepository() domainRepo.BookingRepository {
	return &bookingRepository{}
}

func (r *bookingRepository) Create(db *gorm.DB, booking *entity.Booking) error {
	return db.Omit("Patient", "Doctor").Create(booking).Error
}

func (r *bookingRepository) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Booking, error) {
	var booking entity.Booking
	err := db.Preload("Doctor.User").Preload("Patient").Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) FindByPatientID(db *gorm.DB, patientID uuid.UUID) ([]entity.Booking, error) {
	var bookings []entity.Booking
	err := db.Preload("Doctor.User").
		Where("patient_id = ?", patientID).
		Order("slot_date DESC, slot_time DESC").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepository) FindAll(db *gorm.DB, filter *entity.BookingFilter) ([]entity.Booking, error) {
	var bookings []entity.Booking
	query := db.Preload("Doctor.User").Preload("Patient")

	if filter != nil {
		if filter.DoctorID != nil {
			query = query.Where("doctor_id = ?", *filter.DoctorID)
		}
		if filter.Date != "" {
			query = query.Where("slot_date = ?", filter.Date)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
	}

	err := query.Order("slot_date ASC, slot_time ASC").Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepository) FindConfirmedBySlot(db *gorm.DB, key entity.SlotKey) (*entity.Booking, error) {
	var booking entity.Booking
	err := db.Where("doctor_id = ? AND slot_date = ? AND slot_time = ? AND status = ?",
		key.DoctorID, key.Date, key.Time, entity.BookingStatusConfirmed).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// FindConfirmedByDoctor returns confirmed bookings with slot_date in [from, to]
func (r *bookingRepository) FindConfirmedByDoctor(db *gorm.DB, doctorID uuid.UUID, from, to string) ([]entity.Booking, error) {
	var bookings []entity.Booking
	err := db.Select("id", "doctor_id", "patient_id", "slot_date", "slot_time", "status").
		Where("doctor_id = ? AND slot_date BETWEEN ? AND ? AND status = ?", doctorID, from, to, entity.BookingStatusConfirmed).
		Order("slot_date ASC, slot_time ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// CountConfirmedInWindow counts confirmed bookings on date whose slot_time is in [from, to)
func (r *bookingRepository) CountConfirmedInWindow(db *gorm.DB, doctorID uuid.UUID, date, from, to string) (int64, error) {
	var count int64
	err := db.Model(&entity.Booking{}).
		Where("doctor_id = ? AND slot_date = ? AND slot_time >= ? AND slot_time < ? AND status = ?",
			doctorID, date, from, to, entity.BookingStatusConfirmed).
		Count(&count).Error
	return count, err
}

// CancelBooking atomically cancels a booking ONLY if it is still confirmed.
// Returns affected rows: 1 = success, 0 = already cancelled (prevents double-cancel race).
func (r *bookingRepository) CancelBooking(db *gorm.DB, id uuid.UUID) (int64, error) {
	now := time.Now().UTC()
	result := db.Model(&entity.Booking{}).
		Where("id = ? AND status = ?", id, entity.BookingStatusConfirmed).
		Updates(map[string]interface{}{
			"status":       entity.BookingStatusCancelled,
			"cancelled_at": &now,
		})
	return result.RowsAffected, result.Error
}

// ReinstateBooking flips a cancelled booking back to confirmed. The partial
// unique index rejects it if the slot has been taken in the meantime.
func (r *bookingRepository) ReinstateBooking(db *gorm.DB, id uuid.UUID) (int64, error) {
	result := db.Model(&entity.Booking{}).
		Where("id = ? AND status = ?", id, entity.BookingStatusCancelled).
		Updates(map[string]interface{}{
			"status":       entity.BookingStatusConfirmed,
			"cancelled_at": nil,
		})
	return result.RowsAffected, result.Error
}
