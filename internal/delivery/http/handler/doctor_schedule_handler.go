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

type DoctorScheduleHandler struct {
	scheduleUsecase usecase.DoctorScheduleUsecase
	validator       *validator.CustomValidator
}

func NewDoctorScheduleHandler(scheduleUsecase usecase.DoctorScheduleUsecase, validator *validator.CustomValidator) *DoctorScheduleHandler {
	return &DoctorScheduleHandler{
		scheduleUsecase: scheduleUsecase,
		validator:       validator,
	}
}

// CreateSchedule opens a practice window that is cut into bookable slots
func (h *DoctorScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateScheduleRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	schedule, err := h.scheduleUsecase.CreateSchedule(r.Context(), &req)
	if err != nil {
		writeScheduleError(w, err, "Failed to create schedule")
		return
	}

	response.Success(w, http.StatusCreated, "Schedule created successfully", schedule)
}

func (h *DoctorScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := intVar(w, r, "id", "schedule ID")
	if !ok {
		return
	}

	schedule, err := h.scheduleUsecase.GetSchedule(r.Context(), scheduleID)
	if err != nil {
		writeScheduleError(w, err, "Failed to get schedule")
		return
	}

	response.Success(w, http.StatusOK, "Schedule retrieved successfully", schedule)
}

// GetAllSchedules supports ?doctor_id=, ?start_at=, ?end_at= and ?type=
func (h *DoctorScheduleHandler) GetAllSchedules(w http.ResponseWriter, r *http.Request) {
	filter, ok := scheduleFilterFromQuery(w, r)
	if !ok {
		return
	}

	schedules, err := h.scheduleUsecase.GetAllSchedules(r.Context(), filter)
	if err != nil {
		writeScheduleError(w, err, "Failed to get schedules")
		return
	}

	response.Success(w, http.StatusOK, "Schedules retrieved successfully", schedules)
}

func (h *DoctorScheduleHandler) GetSchedulesByDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidVar(w, r, "doctorId", "doctor ID")
	if !ok {
		return
	}

	schedules, err := h.scheduleUsecase.GetSchedulesByDoctor(r.Context(), doctorID)
	if err != nil {
		writeScheduleError(w, err, "Failed to get schedules")
		return
	}

	response.Success(w, http.StatusOK, "Schedules retrieved successfully", schedules)
}

// UpdateSchedule refuses to move the window of a schedule that already has
// confirmed bookings.
func (h *DoctorScheduleHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := intVar(w, r, "id", "schedule ID")
	if !ok {
		return
	}

	var req dto.UpdateScheduleRequest
	if !bindJSON(w, r, h.validator, &req) {
		return
	}

	schedule, err := h.scheduleUsecase.UpdateSchedule(r.Context(), scheduleID, &req)
	if err != nil {
		writeScheduleError(w, err, "Failed to update schedule")
		return
	}

	response.Success(w, http.StatusOK, "Schedule updated successfully", schedule)
}

func (h *DoctorScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := intVar(w, r, "id", "schedule ID")
	if !ok {
		return
	}

	if err := h.scheduleUsecase.DeleteSchedule(r.Context(), scheduleID); err != nil {
		writeScheduleError(w, err, "Failed to delete schedule")
		return
	}

	response.Success(w, http.StatusOK, "Schedule deleted successfully", nil)
}

func scheduleFilterFromQuery(w http.ResponseWriter, r *http.Request) (*entity.ScheduleFilter, bool) {
	query := r.URL.Query()
	filter := &entity.ScheduleFilter{
		StartAt:          query.Get("start_at"),
		EndAt:            query.Get("end_at"),
		ConsultationType: query.Get("type"),
	}

	if raw := query.Get("doctor_id"); raw != "" {
		doctorID, err := uuid.Parse(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid doctor ID", nil)
			return nil, false
		}
		filter.DoctorID = &doctorID
	}

	for _, date := range []string{filter.StartAt, filter.EndAt} {
		if date == "" {
			continue
		}
		if _, err := time.Parse(entity.SlotDateLayout, date); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid date format, use YYYY-MM-DD", nil)
			return nil, false
		}
	}
	return filter, true
}

func writeScheduleError(w http.ResponseWriter, err error, fallback string) {
	switch err {
	case usecase.ErrScheduleNotFound:
		response.NotFound(w, "Schedule not found")
	case usecase.ErrDoctorNotFound:
		response.NotFound(w, "Doctor not found")
	case usecase.ErrInvalidScheduleDate:
		response.Error(w, http.StatusBadRequest, "Invalid schedule date format, use YYYY-MM-DD", nil)
	case usecase.ErrInvalidTimeFormat:
		response.Error(w, http.StatusBadRequest, "Invalid time format, use HH:MM", nil)
	case usecase.ErrInvalidScheduleRange:
		response.Error(w, http.StatusBadRequest, "End time must leave room for at least one slot", nil)
	case usecase.ErrScheduleHasBookings:
		response.Conflict(w, "Schedule has confirmed bookings, cancel them first")
	default:
		response.InternalServerError(w, fallback)
	}
}
