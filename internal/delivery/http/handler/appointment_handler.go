package handler

import (
	"net/http"

	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/usecase"
	"go-medical-reservation/pkg/response"
	"go-medical-reservation/pkg/validator"
)

// seconds a client should wait before retrying a busy slot
const busyRetryAfter = 1

type AppointmentHandler struct {
	reservationUsecase usecase.ReservationUsecase
	validator          *validator.CustomValidator
}

func NewAppointmentHandler(reservationUsecase usecase.ReservationUsecase, validator *validator.CustomValidator) *AppointmentHandler {
	return &AppointmentHandler{
		reservationUsecase: reservationUsecase,
		validator:          validator,
	}
}

// BlockSlot places a temporary hold on a slot
// @Summary Block slot
// @Tags Appointments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.BlockSlotRequest true "Slot to hold"
// @Success 201 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /appointments/block [post]
func (h *AppointmentHandler) BlockSlot(w http.ResponseWriter, r *http.Request) {
	var req dto.BlockSlotRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	hold, err := h.reservationUsecase.BlockSlot(r.Context(), &req)
	if err != nil {
		writeReservationError(w, err, "Failed to block slot")
		return
	}

	response.Success(w, http.StatusCreated, "Slot blocked successfully", hold)
}

// ReleaseHold drops a hold of the caller. Releasing twice is not an error.
func (h *AppointmentHandler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	holdID, ok := uuidVar(w, r, "id", "hold ID")
	if !ok {
		return
	}

	if err := h.reservationUsecase.ReleaseSlot(r.Context(), holdID); err != nil {
		writeReservationError(w, err, "Failed to release slot")
		return
	}

	response.Success(w, http.StatusOK, "Slot released successfully", nil)
}

// ConfirmBooking turns a hold into a booking
// @Summary Confirm booking
// @Tags Appointments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.ConfirmBookingRequest true "Hold to confirm"
// @Success 201 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 410 {object} response.Response
// @Router /appointments [post]
func (h *AppointmentHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	var req dto.ConfirmBookingRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	booking, err := h.reservationUsecase.ConfirmBooking(r.Context(), &req)
	if err != nil {
		writeReservationError(w, err, "Failed to confirm booking")
		return
	}

	response.Success(w, http.StatusCreated, "Booking confirmed successfully", booking)
}

func (h *AppointmentHandler) GetMyBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.reservationUsecase.GetMyBookings(r.Context())
	if err != nil {
		writeReservationError(w, err, "Failed to get bookings")
		return
	}

	response.Success(w, http.StatusOK, "Bookings retrieved successfully", bookings)
}

func (h *AppointmentHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
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

func (h *AppointmentHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := uuidVar(w, r, "id", "booking ID")
	if !ok {
		return
	}

	if err := h.reservationUsecase.CancelBooking(r.Context(), bookingID); err != nil {
		writeReservationError(w, err, "Failed to cancel booking")
		return
	}

	response.Success(w, http.StatusOK, "Booking cancelled successfully", nil)
}

// writeReservationError maps reservation errors to responses, falling back
// to a 500 with fallback as message.
func writeReservationError(w http.ResponseWriter, err error, fallback string) {
	switch err {
	case usecase.ErrUnauthenticated:
		response.Unauthorized(w, "Unauthorized")
	case usecase.ErrSlotUnavailable:
		response.Conflict(w, "Slot is no longer available")
	case usecase.ErrBookingAlreadyCancelled, usecase.ErrBookingStatusChanged:
		response.Conflict(w, err.Error())
	case usecase.ErrHoldExpired:
		response.Error(w, http.StatusGone, "Hold has expired, please select the slot again", nil)
	case usecase.ErrForbidden:
		response.Forbidden(w, "You are not allowed to modify this reservation")
	case usecase.ErrHoldNotFound:
		response.NotFound(w, "Hold not found")
	case usecase.ErrBookingNotFound:
		response.NotFound(w, "Booking not found")
	case usecase.ErrDoctorNotFound:
		response.NotFound(w, "Doctor not found")
	case usecase.ErrPatientNotFound:
		response.NotFound(w, "Patient not found")
	case usecase.ErrInvalidSlot:
		response.Error(w, http.StatusBadRequest, "Invalid slot, use date YYYY-MM-DD and time HH:MM", nil)
	case usecase.ErrSlotPast:
		response.Error(w, http.StatusBadRequest, "Cannot reserve a slot in the past", nil)
	case usecase.ErrSlotNotOffered:
		response.Error(w, http.StatusUnprocessableEntity, "Doctor does not offer this slot", nil)
	case usecase.ErrSlotBusy:
		response.ServiceUnavailable(w, "Slot is busy, please retry", busyRetryAfter)
	default:
		response.InternalServerError(w, fallback)
	}
}
