package handler

import (
	"net/http"

	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/delivery/http/middleware"
	"go-medical-reservation/internal/domain/entity"
	"go-medical-reservation/internal/usecase"
	"go-medical-reservation/pkg/response"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type AvailabilityHandler struct {
	availabilityUsecase usecase.AvailabilityUsecase
}

func NewAvailabilityHandler(availabilityUsecase usecase.AvailabilityUsecase) *AvailabilityHandler {
	return &AvailabilityHandler{
		availabilityUsecase: availabilityUsecase,
	}
}

// GetAvailability returns offered, booked and held slots of a doctor
// @Summary Doctor availability
// @Tags Doctors
// @Produce json
// @Param id path string true "Doctor ID"
// @Param from query string false "Start date (YYYY-MM-DD), default today"
// @Param to query string false "End date (YYYY-MM-DD), default from + 6 days"
// @Param type query string false "Consultation type (offline, online)"
// @Param forPatient query string false "Patient ID whose holds are reported separately"
// @Success 200 {object} response.Response
// @Router /doctors/{id}/availability [get]
func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid doctor ID", nil)
		return
	}

	query := r.URL.Query()
	req := &dto.AvailabilityQuery{
		DoctorID:         doctorID,
		From:             query.Get("from"),
		To:               query.Get("to"),
		ConsultationType: query.Get("type"),
	}

	switch req.ConsultationType {
	case "", entity.ConsultationOffline, entity.ConsultationOnline:
	default:
		response.Error(w, http.StatusBadRequest, "Invalid consultation type, use offline or online", nil)
		return
	}

	if forPatient := query.Get("forPatient"); forPatient != "" {
		patientID, err := uuid.Parse(forPatient)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid patient ID", nil)
			return
		}
		req.ForPatient = &patientID
	} else if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		req.ForPatient = &userID
	}

	availability, err := h.availabilityUsecase.GetAvailability(r.Context(), req)
	if err != nil {
		switch err {
		case usecase.ErrDoctorNotFound:
			response.NotFound(w, "Doctor not found")
		case usecase.ErrInvalidDateRange:
			response.Error(w, http.StatusBadRequest, "Invalid date range, use YYYY-MM-DD and from <= to", nil)
		case usecase.ErrDateRangeTooLong:
			response.Error(w, http.StatusBadRequest, "Date range must not exceed 31 days", nil)
		default:
			response.InternalServerError(w, "Failed to get availability")
		}
		return
	}

	response.Success(w, http.StatusOK, "Availability retrieved successfully", availability)
}
