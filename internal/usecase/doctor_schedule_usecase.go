package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go-medical-reservation/internal/converter"
	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/delivery/http/middleware"
	"go-medical-reservation/internal/domain/entity"
	"go-medical-reservation/internal/domain/repository"
	"go-medical-reservation/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrInvalidScheduleDate  = errors.New("invalid schedule date format, use YYYY-MM-DD")
	ErrInvalidTimeFormat    = errors.New("invalid time format, use HH:MM")
	ErrInvalidScheduleRange = errors.New("end time must leave room for at least one slot after start time")
	ErrScheduleHasBookings  = errors.New("schedule has confirmed bookings, cancel them first")
)

type DoctorScheduleUsecase interface {
	CreateSchedule(ctx context.Context, req *dto.CreateScheduleRequest) (*dto.ScheduleResponse, error)
	GetSchedule(ctx context.Context, scheduleID int) (*dto.ScheduleResponse, error)
	GetSchedulesByDoctor(ctx context.Context, doctorID uuid.UUID) (*dto.ScheduleListResponse, error)
	GetAllSchedules(ctx context.Context, filter *entity.ScheduleFilter) (*dto.ScheduleListResponse, error)
	UpdateSchedule(ctx context.Context, scheduleID int, req *dto.UpdateScheduleRequest) (*dto.ScheduleResponse, error)
	DeleteSchedule(ctx context.Context, scheduleID int) error
}

type doctorScheduleUsecase struct {
	db                repository.Transactor
	log               *logrus.Logger
	scheduleRepo      repository.DoctorScheduleRepository
	doctorProfileRepo repository.DoctorProfileRepository
	bookingRepo       repository.BookingRepository
	auditService      service.AuditService
}

func NewDoctorScheduleUsecase(
	db repository.Transactor,
	log *logrus.Logger,
	scheduleRepo repository.DoctorScheduleRepository,
	doctorProfileRepo repository.DoctorProfileRepository,
	bookingRepo repository.BookingRepository,
	auditService service.AuditService,
) DoctorScheduleUsecase {
	return &doctorScheduleUsecase{
		db:                db,
		log:               log,
		scheduleRepo:      scheduleRepo,
		doctorProfileRepo: doctorProfileRepo,
		bookingRepo:       bookingRepo,
		auditService:      auditService,
	}
}

func (u *doctorScheduleUsecase) CreateSchedule(ctx context.Context, req *dto.CreateScheduleRequest) (*dto.ScheduleResponse, error) {
	// Validate doctor exists
	doctor, err := u.doctorProfileRepo.FindByUserID(u.db.DB(ctx), req.DoctorID)
	if err != nil {
		u.log.Warnf("Failed to find doctor: %+v", err)
		return nil, err
	}
	if doctor == nil {
		return nil, ErrDoctorNotFound
	}

	scheduleDate, err := time.Parse(entity.SlotDateLayout, req.ScheduleDate)
	if err != nil {
		return nil, ErrInvalidScheduleDate
	}

	schedule := &entity.DoctorSchedule{
		DoctorID:         req.DoctorID,
		ScheduleDate:     scheduleDate,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		SlotMinutes:      req.SlotMinutes,
		ConsultationType: req.ConsultationType,
	}
	if schedule.SlotMinutes == 0 {
		schedule.SlotMinutes = entity.DefaultSlotMinutes
	}
	if schedule.ConsultationType == "" {
		schedule.ConsultationType = entity.ConsultationOffline
	}
	if err := validateScheduleWindow(schedule); err != nil {
		return nil, err
	}

	actorID, _ := middleware.GetUserIDFromContext(ctx)
	err = u.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := u.scheduleRepo.Create(tx, schedule); err != nil {
			return err
		}
		return u.auditService.LogCreate(ctx, tx, &actorID, entity.AuditActionScheduleCreate, "doctor_schedule", scheduleIDString(schedule), converter.ScheduleToResponse(schedule))
	})
	if err != nil {
		u.log.Warnf("Failed to create schedule: %+v", err)
		return nil, err
	}

	return converter.ScheduleToResponse(schedule), nil
}

func (u *doctorScheduleUsecase) GetSchedule(ctx context.Context, scheduleID int) (*dto.ScheduleResponse, error) {
	schedule, err := u.scheduleRepo.FindByID(u.db.DB(ctx), scheduleID)
	if err != nil {
		u.log.Warnf("Failed to find schedule: %+v", err)
		return nil, err
	}
	if schedule == nil {
		return nil, ErrScheduleNotFound
	}

	return converter.ScheduleToResponse(schedule), nil
}

func (u *doctorScheduleUsecase) GetSchedulesByDoctor(ctx context.Context, doctorID uuid.UUID) (*dto.ScheduleListResponse, error) {
	schedules, err := u.scheduleRepo.FindByDoctorID(u.db.DB(ctx), doctorID)
	if err != nil {
		u.log.Warnf("Failed to find schedules: %+v", err)
		return nil, err
	}

	return &dto.ScheduleListResponse{
		Schedules: converter.SchedulesToResponses(schedules),
		Total:     len(schedules),
	}, nil
}

func (u *doctorScheduleUsecase) GetAllSchedules(ctx context.Context, filter *entity.ScheduleFilter) (*dto.ScheduleListResponse, error) {
	schedules, err := u.scheduleRepo.FindAll(u.db.DB(ctx), filter)
	if err != nil {
		u.log.Warnf("Failed to find all schedules: %+v", err)
		return nil, err
	}

	return &dto.ScheduleListResponse{
		Schedules: converter.SchedulesToResponses(schedules),
		Total:     len(schedules),
	}, nil
}

// UpdateSchedule changes a schedule. Moving or reshaping the window is
// refused while confirmed bookings sit in it.
func (u *doctorScheduleUsecase) UpdateSchedule(ctx context.Context, scheduleID int, req *dto.UpdateScheduleRequest) (*dto.ScheduleResponse, error) {
	schedule, err := u.scheduleRepo.FindByID(u.db.DB(ctx), scheduleID)
	if err != nil {
		u.log.Warnf("Failed to find schedule: %+v", err)
		return nil, err
	}
	if schedule == nil {
		return nil, ErrScheduleNotFound
	}

	before := *schedule
	before.Doctor = entity.DoctorProfile{}

	if req.ScheduleDate != "" {
		scheduleDate, err := time.Parse(entity.SlotDateLayout, req.ScheduleDate)
		if err != nil {
			return nil, ErrInvalidScheduleDate
		}
		schedule.ScheduleDate = scheduleDate
	}
	if req.StartTime != "" {
		schedule.StartTime = req.StartTime
	}
	if req.EndTime != "" {
		schedule.EndTime = req.EndTime
	}
	if req.SlotMinutes != nil {
		schedule.SlotMinutes = *req.SlotMinutes
	}
	if req.ConsultationType != "" {
		schedule.ConsultationType = req.ConsultationType
	}
	if err := validateScheduleWindow(schedule); err != nil {
		return nil, err
	}

	if windowChanged(&before, schedule) {
		if err := u.ensureNoBookings(ctx, &before); err != nil {
			return nil, err
		}
	}

	actorID, _ := middleware.GetUserIDFromContext(ctx)
	err = u.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := u.scheduleRepo.Update(tx, schedule); err != nil {
			return err
		}
		return u.auditService.LogUpdate(ctx, tx, &actorID, entity.AuditActionScheduleUpdate, "doctor_schedule", scheduleIDString(schedule),
			converter.ScheduleToResponse(&before), converter.ScheduleToResponse(schedule))
	})
	if err != nil {
		u.log.Warnf("Failed to update schedule: %+v", err)
		return nil, err
	}

	return converter.ScheduleToResponse(schedule), nil
}

func (u *doctorScheduleUsecase) DeleteSchedule(ctx context.Context, scheduleID int) error {
	schedule, err := u.scheduleRepo.FindByID(u.db.DB(ctx), scheduleID)
	if err != nil {
		u.log.Warnf("Failed to find schedule: %+v", err)
		return err
	}
	if schedule == nil {
		return ErrScheduleNotFound
	}

	if err := u.ensureNoBookings(ctx, schedule); err != nil {
		return err
	}

	actorID, _ := middleware.GetUserIDFromContext(ctx)
	err = u.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := u.scheduleRepo.Delete(tx, scheduleID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrScheduleNotFound
		}
		return u.auditService.LogDelete(ctx, tx, &actorID, entity.AuditActionScheduleDelete, "doctor_schedule", scheduleIDString(schedule), converter.ScheduleToResponse(schedule))
	})
	if err != nil && !errors.Is(err, ErrScheduleNotFound) {
		u.log.Warnf("Failed to delete schedule: %+v", err)
	}
	return err
}

func (u *doctorScheduleUsecase) ensureNoBookings(ctx context.Context, schedule *entity.DoctorSchedule) error {
	count, err := u.bookingRepo.CountConfirmedInWindow(u.db.DB(ctx), schedule.DoctorID,
		schedule.ScheduleDate.Format(entity.SlotDateLayout), schedule.StartTime, schedule.EndTime)
	if err != nil {
		u.log.Warnf("Failed to count bookings of schedule %d: %+v", schedule.ID, err)
		return err
	}
	if count > 0 {
		return ErrScheduleHasBookings
	}
	return nil
}

func validateScheduleWindow(schedule *entity.DoctorSchedule) error {
	if _, err := time.Parse(entity.SlotTimeLayout, schedule.StartTime); err != nil {
		return ErrInvalidTimeFormat
	}
	if _, err := time.Parse(entity.SlotTimeLayout, schedule.EndTime); err != nil {
		return ErrInvalidTimeFormat
	}
	if len(schedule.TimeSlots()) == 0 {
		return ErrInvalidScheduleRange
	}
	return nil
}

func windowChanged(before, after *entity.DoctorSchedule) bool {
	return !before.ScheduleDate.Equal(after.ScheduleDate) ||
		before.StartTime != after.StartTime ||
		before.EndTime != after.EndTime ||
		before.SlotMinutes != after.SlotMinutes
}

func scheduleIDString(schedule *entity.DoctorSchedule) string {
	return strconv.Itoa(schedule.ID)
}
