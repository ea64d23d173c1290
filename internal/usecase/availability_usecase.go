package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/domain/entity"
	"go-medical-reservation/internal/domain/repository"
	"go-medical-reservation/pkg/clock"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidDateRange = errors.New("invalid date range, use YYYY-MM-DD and from <= to")
	ErrDateRangeTooLong = errors.New("date range must not exceed 31 days")
)

const (
	defaultAvailabilityDays = 7
	maxAvailabilityDays     = 31
)

type AvailabilityUsecase interface {
	GetAvailability(ctx context.Context, query *dto.AvailabilityQuery) (*dto.AvailabilityResponse, error)
}

type availabilityUsecase struct {
	db           repository.Transactor
	log          *logrus.Logger
	clock        clock.Clock
	location     *time.Location
	ledger       repository.HoldLedger
	bookingRepo  repository.BookingRepository
	scheduleRepo repository.DoctorScheduleRepository
	doctorRepo   repository.DoctorProfileRepository
}

func NewAvailabilityUsecase(
	db repository.Transactor,
	log *logrus.Logger,
	clk clock.Clock,
	loc *time.Location,
	ledger repository.HoldLedger,
	bookingRepo repository.BookingRepository,
	scheduleRepo repository.DoctorScheduleRepository,
	doctorRepo repository.DoctorProfileRepository,
) AvailabilityUsecase {
	if loc == nil {
		loc = time.UTC
	}
	return &availabilityUsecase{
		db:           db,
		log:          log,
		clock:        clk,
		location:     loc,
		ledger:       ledger,
		bookingRepo:  bookingRepo,
		scheduleRepo: scheduleRepo,
		doctorRepo:   doctorRepo,
	}
}

// GetAvailability builds the per-day slot view of a doctor. Bookings and
// holds are read live on every call, nothing is cached.
func (u *availabilityUsecase) GetAvailability(ctx context.Context, query *dto.AvailabilityQuery) (*dto.AvailabilityResponse, error) {
	now := u.clock.Now()
	from, to, err := resolveRange(query.From, query.To, now.In(u.location))
	if err != nil {
		return nil, err
	}
	fromStr := from.Format(entity.SlotDateLayout)
	toStr := to.Format(entity.SlotDateLayout)

	doctor, err := u.doctorRepo.FindByUserID(u.db.DB(ctx), query.DoctorID)
	if err != nil {
		u.log.Warnf("Failed to find doctor %s: %+v", query.DoctorID, err)
		return nil, err
	}
	if doctor == nil {
		return nil, ErrDoctorNotFound
	}

	var (
		schedules []entity.DoctorSchedule
		bookings  []entity.Booking
		holds     []entity.Hold
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		schedules, err = u.scheduleRepo.FindAll(u.db.DB(gctx), &entity.ScheduleFilter{
			DoctorID:         &query.DoctorID,
			StartAt:          fromStr,
			EndAt:            toStr,
			ConsultationType: query.ConsultationType,
		})
		return err
	})
	g.Go(func() error {
		var err error
		bookings, err = u.bookingRepo.FindConfirmedByDoctor(u.db.DB(gctx), query.DoctorID, fromStr, toStr)
		return err
	})
	g.Go(func() error {
		var err error
		holds, err = u.ledger.ListActiveByDoctor(gctx, query.DoctorID, now)
		return err
	})
	if err := g.Wait(); err != nil {
		u.log.Warnf("Failed to load availability of doctor %s: %+v", query.DoctorID, err)
		return nil, err
	}

	days := buildDays(schedules, bookings, holds, query, fromStr, toStr)
	return &dto.AvailabilityResponse{
		DoctorID: query.DoctorID,
		From:     fromStr,
		To:       toStr,
		Days:     days,
	}, nil
}

func buildDays(schedules []entity.DoctorSchedule, bookings []entity.Booking, holds []entity.Hold, query *dto.AvailabilityQuery, from, to string) []entity.DayAvailability {
	byDate := make(map[string]*entity.DayAvailability)
	offered := make(map[string]map[string]bool)

	for i := range schedules {
		date := schedules[i].ScheduleDate.Format(entity.SlotDateLayout)
		day, ok := byDate[date]
		if !ok {
			day = &entity.DayAvailability{
				Date:        date,
				TimeSlots:   []string{},
				BookedSlots: []string{},
				HeldSlots:   []string{},
			}
			byDate[date] = day
			offered[date] = make(map[string]bool)
		}
		for _, slot := range schedules[i].TimeSlots() {
			if !offered[date][slot] {
				offered[date][slot] = true
				day.TimeSlots = append(day.TimeSlots, slot)
			}
		}
	}

	for _, booking := range bookings {
		if day, ok := byDate[booking.SlotDate]; ok && offered[booking.SlotDate][booking.SlotTime] {
			day.BookedSlots = append(day.BookedSlots, booking.SlotTime)
		}
	}

	for _, hold := range holds {
		if hold.SlotDate < from || hold.SlotDate > to {
			continue
		}
		day, ok := byDate[hold.SlotDate]
		if !ok || !offered[hold.SlotDate][hold.SlotTime] {
			continue
		}
		if query.ForPatient != nil && hold.IsOwnedBy(*query.ForPatient) {
			day.HeldByYou = append(day.HeldByYou, hold.SlotTime)
			continue
		}
		day.HeldSlots = append(day.HeldSlots, hold.SlotTime)
	}

	days := make([]entity.DayAvailability, 0, len(byDate))
	for _, day := range byDate {
		sort.Strings(day.TimeSlots)
		sort.Strings(day.BookedSlots)
		sort.Strings(day.HeldSlots)
		sort.Strings(day.HeldByYou)
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

// resolveRange defaults to a week starting today and caps the span. Today is
// the calendar date of now in its own location; the returned dates are UTC
// midnights like the ones parsed from the query.
func resolveRange(fromStr, toStr string, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	from := today
	if fromStr != "" {
		parsed, err := time.Parse(entity.SlotDateLayout, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, ErrInvalidDateRange
		}
		from = parsed
	}

	to := from.AddDate(0, 0, defaultAvailabilityDays-1)
	if toStr != "" {
		parsed, err := time.Parse(entity.SlotDateLayout, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, ErrInvalidDateRange
		}
		to = parsed
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, ErrInvalidDateRange
	}
	if to.Sub(from) >= maxAvailabilityDays*24*time.Hour {
		return time.Time{}, time.Time{}, ErrDateRangeTooLong
	}
	return from, to, nil
}
