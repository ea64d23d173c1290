package handler

import (
	"net/http"
	"time"

	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/domain/entity"
	"go-medical-reservation/internal/usecase"
	"go-medical-reservation/pkg/response"
	"go-medical-reservation/pkg/validator"

	"github.com/google/uuid"
)

type AdminAppointmentHandler struct {
	reservationUsecase usecase.ReservationUsecase
	validator          *validator.CustomValidator
}

func NewAdminAppointmentHandler(reservationUsecase usecase.ReservationUsecase, validator *validator.CustomValidator) *AdminAppointmentHandler {
	return &AdminAppointmentHandler{
		reservationUsecase: reservationUsecase,
		validator:          validator,
	}
}

// GetAllBookings lists bookings, optionally filtered by doctor_id, date and status
func (h *AdminAppointmentHandler) GetAllBookings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := &entity.BookingFilter{}

	if doctorID := query.Get("doctor_id"); doctorID != "" {
		id, err := uuid.Parse(doctorID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid doctor ID", nil)
			return
		}
		filter.DoctorID = &id
	}

	if date := query.Get("date"); date != "" {
		if _, err := time.Parse(entity.SlotDateLayout, date); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid date format, use YYYY-MM-DD", nil)
			return
		}
		filter.Date = date
	}

	switch status := entity.BookingStatus(query.Get("status")); status {
	case "":
	case entity.BookingStatusConfirmed, entity.BookingStatusCancelled:
		filter.Status = status
	default:
		response.Error(w, http.StatusBadRequest, "Invalid status, use confirmed or cancelled", nil)
		return
	}

	bookings, err := h.reservationUsecase.GetAllBookings(r.Context(), filter)
	if err != nil {
		response.InternalServerError(w, "Failed to get bookings")
		return
	}

	response.Success(w, http.StatusOK, "Bookings retrieved successfully", bookings)
}

func (h *AdminAppointmentHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := uuidVar(w, r, "id", "booking ID")
	if !ok {
		return
	}

	booking, err := h.reservationUsecase.GetBooking(r.Context(), bookingID)
	if err != nil {
		writeReservationError(w, err, "Failed to get booking")
		return
	}

	response.Success(w, http.StatusOK, "Booking retrieved successfully", booking)
}

// CreateBooking books a slot for a patient without a hold
func (h *AdminAppointmentHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminCreateBookingRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	booking, err := h.reservationUsecase.AdminCreateBooking(r.Context(), &req)
	if err != nil {
		writeReservationError(w, err, "Failed to create booking")
		return
	}

	response.Success(w, http.StatusCreated, "Booking created successfully", booking)
}

func (h *AdminAppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := uuidVar(w, r, "id", "booking ID")
	if !ok {
		return
	}

	var req dto.UpdateBookingStatusRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	booking, err := h.reservationUsecase.AdminUpdateStatus(r.Context(), bookingID, &req)
	if err != nil {
		writeReservationError(w, err, "Failed to update booking status")
		return
	}

	response.Success(w, http.StatusOK, "Booking status updated successfully", booking)
}
