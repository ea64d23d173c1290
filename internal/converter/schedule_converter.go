package converter

import (
	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/domain/entity"

	"github.com/google/uuid"
)

// ScheduleToResponse converts a DoctorSchedule entity to ScheduleResponse DTO
func ScheduleToResponse(schedule *entity.DoctorSchedule) *dto.ScheduleResponse {
	if schedule == nil {
		return nil
	}

	response := &dto.ScheduleResponse{
		ID:               schedule.ID,
		DoctorID:         schedule.DoctorID,
		ScheduleDate:     schedule.ScheduleDate.Format(entity.SlotDateLayout),
		StartTime:        schedule.StartTime,
		EndTime:          schedule.EndTime,
		SlotMinutes:      schedule.SlotMinutes,
		ConsultationType: schedule.ConsultationType,
		TimeSlots:        schedule.TimeSlots(),
		CreatedAt:        schedule.CreatedAt,
		UpdatedAt:        schedule.UpdatedAt,
	}

	// Include doctor info if available
	if schedule.Doctor.UserID != uuid.Nil {
		response.Doctor = DoctorProfileToResponse(&schedule.Doctor)
	}

	return response
}

// SchedulesToResponses converts a slice of DoctorSchedule entities to slice of ScheduleResponse DTOs
func SchedulesToResponses(schedules []entity.DoctorSchedule) []dto.ScheduleResponse {
	responses := make([]dto.ScheduleResponse, len(schedules))
	for i := range schedules {
		responses[i] = *ScheduleToResponse(&schedules[i])
	}
	return responses
}
