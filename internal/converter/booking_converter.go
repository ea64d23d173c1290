package converter

import (
	"time"

	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/domain/entity"

	"github.com/google/uuid"
)

// HoldToResponse converts a Hold to HoldResponse DTO, expires_in is counted from now
func HoldToResponse(hold *entity.Hold, now time.Time) *dto.HoldResponse {
	if hold == nil {
		return nil
	}

	expiresIn := int64(hold.ExpiresAt.Sub(now).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}

	return &dto.HoldResponse{
		ID:        hold.ID,
		DoctorID:  hold.DoctorID,
		Date:      hold.SlotDate,
		Time:      hold.SlotTime,
		HolderID:  hold.HolderID,
		CreatedAt: hold.CreatedAt,
		ExpiresAt: hold.ExpiresAt,
		ExpiresIn: expiresIn,
	}
}

// BookingToResponse converts a Booking entity to BookingResponse DTO
func BookingToResponse(booking *entity.Booking) *dto.BookingResponse {
	if booking == nil {
		return nil
	}

	response := &dto.BookingResponse{
		ID:          booking.ID,
		DoctorID:    booking.DoctorID,
		PatientID:   booking.PatientID,
		Date:        booking.SlotDate,
		Time:        booking.SlotTime,
		BookingCode: booking.BookingCode,
		Status:      string(booking.Status),
		Source:      string(booking.Source),
		HoldID:      booking.HoldID,
		Notes:       booking.Notes,
		Fee:         booking.Fee,
		CancelledAt: booking.CancelledAt,
		CreatedAt:   booking.CreatedAt,
		UpdatedAt:   booking.UpdatedAt,
	}

	// Include doctor and patient info if preloaded
	if booking.Doctor.UserID != uuid.Nil {
		response.Doctor = DoctorProfileToResponse(&booking.Doctor)
	}
	if booking.Patient.ID != uuid.Nil {
		response.Patient = UserToResponse(&booking.Patient)
	}

	return response
}

// BookingsToResponses converts a slice of Booking entities to slice of BookingResponse DTOs
func BookingsToResponses(bookings []entity.Booking) []dto.BookingResponse {
	responses := make([]dto.BookingResponse, len(bookings))
	for i := range bookings {
		responses[i] = *BookingToResponse(&bookings[i])
	}
	return responses
}
