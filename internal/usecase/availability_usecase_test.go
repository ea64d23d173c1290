package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/domain/entity"

	"github.com/google/uuid"
)

func TestResolveRange(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		from, to string
		wantFrom string
		wantTo   string
		wantErr  error
	}{
		{name: "defaults to a week from today", wantFrom: "2025-01-01", wantTo: "2025-01-07"},
		{name: "week from the given start", from: "2025-02-10", wantFrom: "2025-02-10", wantTo: "2025-02-16"},
		{name: "explicit single day", from: "2025-01-05", to: "2025-01-05", wantFrom: "2025-01-05", wantTo: "2025-01-05"},
		{name: "longest allowed span", from: "2025-01-01", to: "2025-01-31", wantFrom: "2025-01-01", wantTo: "2025-01-31"},
		{name: "too long", from: "2025-01-01", to: "2025-02-01", wantErr: ErrDateRangeTooLong},
		{name: "reversed", from: "2025-01-05", to: "2025-01-04", wantErr: ErrInvalidDateRange},
		{name: "bad from", from: "01/05/2025", wantErr: ErrInvalidDateRange},
		{name: "bad to", to: "tomorrow", wantErr: ErrInvalidDateRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := resolveRange(tt.from, tt.to, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got := from.Format(entity.SlotDateLayout); got != tt.wantFrom {
				t.Fatalf("expected from %s, got %s", tt.wantFrom, got)
			}
			if got := to.Format(entity.SlotDateLayout); got != tt.wantTo {
				t.Fatalf("expected to %s, got %s", tt.wantTo, got)
			}
		})
	}
}

func TestAvailabilityUsecase_TodayFollowsSlotZone(t *testing.T) {
	t.Parallel()

	f := newReservationFixture(t)
	// 20:00 UTC is already the next morning at UTC+7
	f.clock.Set(time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC))
	wib := time.FixedZone("WIB", 7*60*60)

	tests := []struct {
		name     string
		loc      *time.Location
		wantFrom string
	}{
		{"utc", time.UTC, "2025-01-01"},
		{"ahead of utc", wib, "2025-01-02"},
		{"unset falls back to utc", nil, "2025-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			availability := NewAvailabilityUsecase(fakeTransactor{}, newTestLogger(), f.clock, tt.loc, f.ledger, f.bookings, f.schedules, f.doctors)

			resp, err := availability.GetAvailability(context.Background(), &dto.AvailabilityQuery{DoctorID: f.doctorID})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.From != tt.wantFrom {
				t.Fatalf("expected window to start %s, got %s", tt.wantFrom, resp.From)
			}
		})
	}
}

func TestBuildDays(t *testing.T) {
	t.Parallel()

	doctorID := uuid.New()
	me := uuid.New()
	other := uuid.New()
	day1, _ := time.Parse(entity.SlotDateLayout, "2025-01-02")
	day2, _ := time.Parse(entity.SlotDateLayout, "2025-01-03")

	schedules := []entity.DoctorSchedule{
		{DoctorID: doctorID, ScheduleDate: day2, StartTime: "13:00", EndTime: "14:00", SlotMinutes: 30},
		{DoctorID: doctorID, ScheduleDate: day1, StartTime: "10:00", EndTime: "11:00", SlotMinutes: 30},
		// overlapping block on the same day must not duplicate slots
		{DoctorID: doctorID, ScheduleDate: day1, StartTime: "09:00", EndTime: "10:30", SlotMinutes: 30},
	}
	bookings := []entity.Booking{
		{DoctorID: doctorID, SlotDate: "2025-01-02", SlotTime: "10:00", Status: entity.BookingStatusConfirmed},
		// off grid rows are ignored
		{DoctorID: doctorID, SlotDate: "2025-01-02", SlotTime: "10:15", Status: entity.BookingStatusConfirmed},
	}
	holds := []entity.Hold{
		{DoctorID: doctorID, SlotDate: "2025-01-02", SlotTime: "09:30", HolderID: other},
		{DoctorID: doctorID, SlotDate: "2025-01-03", SlotTime: "13:30", HolderID: me},
		// outside the requested range
		{DoctorID: doctorID, SlotDate: "2025-01-09", SlotTime: "09:00", HolderID: other},
	}

	t.Run("merges schedules, bookings and holds per day", func(t *testing.T) {
		query := &dto.AvailabilityQuery{DoctorID: doctorID, ForPatient: &me}
		days := buildDays(schedules, bookings, holds, query, "2025-01-01", "2025-01-07")

		if len(days) != 2 {
			t.Fatalf("expected 2 days, got %d", len(days))
		}
		if days[0].Date != "2025-01-02" || days[1].Date != "2025-01-03" {
			t.Fatalf("expected days in date order, got %s and %s", days[0].Date, days[1].Date)
		}

		wantSlots := []string{"09:00", "09:30", "10:00", "10:30"}
		if !reflect.DeepEqual(days[0].TimeSlots, wantSlots) {
			t.Fatalf("expected slots %v, got %v", wantSlots, days[0].TimeSlots)
		}
		if !reflect.DeepEqual(days[0].BookedSlots, []string{"10:00"}) {
			t.Fatalf("expected booked [10:00], got %v", days[0].BookedSlots)
		}
		if !reflect.DeepEqual(days[0].HeldSlots, []string{"09:30"}) {
			t.Fatalf("expected held [09:30], got %v", days[0].HeldSlots)
		}
		if len(days[1].HeldSlots) != 0 || !reflect.DeepEqual(days[1].HeldByYou, []string{"13:30"}) {
			t.Fatalf("expected own hold to be reported apart, got held=%v mine=%v", days[1].HeldSlots, days[1].HeldByYou)
		}

		if got := days[0].StatusOf("10:30"); got != entity.SlotStatusFree {
			t.Fatalf("expected free, got %s", got)
		}
		if got := days[0].StatusOf("10:00"); got != entity.SlotStatusBooked {
			t.Fatalf("expected booked, got %s", got)
		}
		if got := days[1].StatusOf("13:30"); got != entity.SlotStatusHeld {
			t.Fatalf("expected held, got %s", got)
		}
	})

	t.Run("anonymous callers see every hold as held", func(t *testing.T) {
		query := &dto.AvailabilityQuery{DoctorID: doctorID}
		days := buildDays(schedules, bookings, holds, query, "2025-01-01", "2025-01-07")

		if !reflect.DeepEqual(days[1].HeldSlots, []string{"13:30"}) {
			t.Fatalf("expected held [13:30], got %v", days[1].HeldSlots)
		}
		if len(days[1].HeldByYou) != 0 {
			t.Fatalf("expected no own holds, got %v", days[1].HeldByYou)
		}
	})
}

func TestAvailabilityUsecase_GetAvailability(t *testing.T) {
	t.Parallel()

	f := newReservationFixture(t)
	doctors := newFakeDoctorRepo(entity.DoctorProfile{UserID: f.doctorID})
	availability := NewAvailabilityUsecase(fakeTransactor{}, newTestLogger(), f.clock, time.UTC, f.ledger, f.bookings, f.schedules, doctors)

	holdA, err := f.usecase.BlockSlot(f.asPatient(f.patientA), f.blockReq("09:00"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	holdB, err := f.usecase.BlockSlot(f.asPatient(f.patientB), f.blockReq("09:30"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.usecase.ConfirmBooking(f.asPatient(f.patientB), confirmByID(holdB.ID)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	t.Run("reflects live holds and bookings", func(t *testing.T) {
		resp, err := availability.GetAvailability(f.asPatient(f.patientA), &dto.AvailabilityQuery{DoctorID: f.doctorID, ForPatient: &f.patientA})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.From != "2025-01-01" || resp.To != "2025-01-07" {
			t.Fatalf("expected the default week, got %s..%s", resp.From, resp.To)
		}
		if len(resp.Days) != 1 {
			t.Fatalf("expected 1 day, got %d", len(resp.Days))
		}
		day := resp.Days[0]
		if len(day.TimeSlots) != 6 {
			t.Fatalf("expected 6 slots, got %v", day.TimeSlots)
		}
		if day.StatusOf("09:00") != entity.SlotStatusHeld || !reflect.DeepEqual(day.HeldByYou, []string{"09:00"}) {
			t.Fatalf("expected 09:00 held by the caller, got %+v", day)
		}
		if day.StatusOf("09:30") != entity.SlotStatusBooked {
			t.Fatalf("expected 09:30 booked, got %+v", day)
		}
	})

	t.Run("lapsed hold shows the slot free again", func(t *testing.T) {
		f.clock.Advance(testHoldTTL)

		resp, err := availability.GetAvailability(f.asPatient(f.patientB), &dto.AvailabilityQuery{DoctorID: f.doctorID})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := resp.Days[0].StatusOf("09:00"); got != entity.SlotStatusFree {
			t.Fatalf("expected hold %s to no longer count, got %s", holdA.ID, got)
		}
	})

	t.Run("consultation type filters schedules", func(t *testing.T) {
		resp, err := availability.GetAvailability(f.asPatient(f.patientA), &dto.AvailabilityQuery{DoctorID: f.doctorID, ConsultationType: entity.ConsultationOnline})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(resp.Days) != 0 {
			t.Fatalf("expected no online days, got %d", len(resp.Days))
		}
	})

	t.Run("unknown doctor", func(t *testing.T) {
		_, err := availability.GetAvailability(f.asPatient(f.patientA), &dto.AvailabilityQuery{DoctorID: uuid.New()})
		if !errors.Is(err, ErrDoctorNotFound) {
			t.Fatalf("expected ErrDoctorNotFound, got %v", err)
		}
	})
}
