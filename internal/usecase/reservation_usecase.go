package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"go-medical-reservation/internal/converter"
	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/delivery/http/middleware"
	"go-medical-reservation/internal/domain/entity"
	"go-medical-reservation/internal/domain/repository"
	"go-medical-reservation/internal/service"
	"go-medical-reservation/pkg/clock"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrUnauthenticated         = errors.New("user not found in context")
	ErrSlotUnavailable         = errors.New("slot is already held or booked")
	ErrHoldExpired             = errors.New("hold has expired, please select the slot again")
	ErrHoldNotFound            = errors.New("hold not found")
	ErrForbidden               = errors.New("you are not allowed to modify this reservation")
	ErrBookingNotFound         = errors.New("booking not found")
	ErrBookingAlreadyCancelled = errors.New("booking is already cancelled")
	ErrBookingStatusChanged    = errors.New("booking status changed concurrently, reload and retry")
	ErrInvalidSlot             = errors.New("invalid slot, use date YYYY-MM-DD and time HH:MM")
	ErrSlotPast                = errors.New("cannot reserve a slot in the past")
	ErrSlotNotOffered          = errors.New("doctor does not offer this slot")
	ErrPatientNotFound         = errors.New("patient not found")
	ErrSlotBusy                = service.ErrSlotBusy
)

const (
	defaultHoldTTL         = 10 * time.Minute
	compensationTimeout    = 5 * time.Second
	// bookingClaimTTL bounds how long a slot stays claimed if the process dies
	// between taking the claim and settling it
	bookingClaimTTL        = 30 * time.Second
	bookingEntityName      = "booking"
	holdEntityName         = "hold"
	bookingCodeRandomBytes = 3
)

type ReservationUsecase interface {
	BlockSlot(ctx context.Context, req *dto.BlockSlotRequest) (*dto.HoldResponse, error)
	ConfirmBooking(ctx context.Context, req *dto.ConfirmBookingRequest) (*dto.BookingResponse, error)
	ReleaseSlot(ctx context.Context, holdID uuid.UUID) error
	CancelBooking(ctx context.Context, bookingID uuid.UUID) error
	AdminCreateBooking(ctx context.Context, req *dto.AdminCreateBookingRequest) (*dto.BookingResponse, error)
	AdminUpdateStatus(ctx context.Context, bookingID uuid.UUID, req *dto.UpdateBookingStatusRequest) (*dto.BookingResponse, error)
	GetMyBookings(ctx context.Context) (*dto.BookingListResponse, error)
	GetAllBookings(ctx context.Context, filter *entity.BookingFilter) (*dto.BookingListResponse, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*dto.BookingResponse, error)

	// used by the expiry sweeper
	ExpiredHoldIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
	ExpireHold(ctx context.Context, holdID uuid.UUID) (bool, error)
}

type reservationUsecase struct {
	db           repository.Transactor
	log          *logrus.Logger
	ledger       repository.HoldLedger
	locker       *service.SlotLocker
	bookingRepo  repository.BookingRepository
	scheduleRepo repository.DoctorScheduleRepository
	doctorRepo   repository.DoctorProfileRepository
	userRepo     repository.UserRepository
	auditService service.AuditService

	clock    clock.Clock
	holdTTL  time.Duration
	location *time.Location
}

type ReservationOption func(*reservationUsecase)

// WithHoldTTL overrides the default lifetime of new holds.
func WithHoldTTL(d time.Duration) ReservationOption {
	return func(u *reservationUsecase) {
		if d > 0 {
			u.holdTTL = d
		}
	}
}

func WithClock(c clock.Clock) ReservationOption {
	return func(u *reservationUsecase) {
		if c != nil {
			u.clock = c
		}
	}
}

// WithLocation sets the time zone slot dates and times are expressed in.
func WithLocation(loc *time.Location) ReservationOption {
	return func(u *reservationUsecase) {
		if loc != nil {
			u.location = loc
		}
	}
}

func NewReservationUsecase(
	db repository.Transactor,
	log *logrus.Logger,
	ledger repository.HoldLedger,
	locker *service.SlotLocker,
	bookingRepo repository.BookingRepository,
	scheduleRepo repository.DoctorScheduleRepository,
	doctorRepo repository.DoctorProfileRepository,
	userRepo repository.UserRepository,
	auditService service.AuditService,
	opts ...ReservationOption,
) ReservationUsecase {
	u := &reservationUsecase{
		db:           db,
		log:          log,
		ledger:       ledger,
		locker:       locker,
		bookingRepo:  bookingRepo,
		scheduleRepo: scheduleRepo,
		doctorRepo:   doctorRepo,
		userRepo:     userRepo,
		auditService: auditService,
		clock:        clock.NewSystem(),
		holdTTL:      defaultHoldTTL,
		location:     time.UTC,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// BlockSlot places a hold for the caller on a free slot.
//
// Flow:
// 1. Validate slot format, not in the past, offered by the doctor
// 2. Acquire per-slot lock
// 3. Reject if a confirmed booking or another holder's active hold exists
// 4. Create hold in the ledger (atomic, rejects holds and booking claims of other instances)
// 5. Check bookings again: one committed after step 3 voids the new hold
func (u *reservationUsecase) BlockSlot(ctx context.Context, req *dto.BlockSlotRequest) (*dto.HoldResponse, error) {
	holderID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	key := entity.NewSlotKey(req.DoctorID, req.Date, req.Time)
	if _, err := u.checkBookable(ctx, key); err != nil {
		return nil, err
	}

	release, err := u.locker.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	now := u.clock.Now()

	booked, err := u.bookingRepo.FindConfirmedBySlot(u.db.DB(ctx), key)
	if err != nil {
		u.log.Warnf("Failed to check bookings for slot %s: %+v", key, err)
		return nil, err
	}
	if booked != nil {
		return nil, ErrSlotUnavailable
	}

	existing, err := u.ledger.FindActive(ctx, key, now)
	if err != nil {
		u.log.Warnf("Failed to check holds for slot %s: %+v", key, err)
		return nil, err
	}
	if existing != nil {
		if existing.IsOwnedBy(holderID) {
			return converter.HoldToResponse(existing, now), nil
		}
		return nil, ErrSlotUnavailable
	}

	hold := &entity.Hold{
		ID:        uuid.New(),
		DoctorID:  key.DoctorID,
		SlotDate:  key.Date,
		SlotTime:  key.Time,
		HolderID:  holderID,
		CreatedAt: now,
		ExpiresAt: now.Add(u.holdTTL),
	}
	if err := u.ledger.Create(ctx, hold, now); err != nil {
		if errors.Is(err, repository.ErrSlotAlreadyHeld) {
			return nil, ErrSlotUnavailable
		}
		u.log.Warnf("Failed to create hold for slot %s: %+v", key, err)
		return nil, err
	}

	booked, err = u.bookingRepo.FindConfirmedBySlot(u.db.DB(ctx), key)
	if err != nil || booked != nil {
		u.discardHold(hold)
		if err != nil {
			u.log.Warnf("Failed to recheck bookings for slot %s: %+v", key, err)
			return nil, err
		}
		return nil, ErrSlotUnavailable
	}

	u.auditService.LogEvent(ctx, &holderID, entity.AuditActionHoldCreate, holdEntityName, hold.ID.String(), hold)
	u.log.Infof("Hold created: id=%s, slot=%s, holder=%s, expires_at=%s", hold.ID, key, holderID, hold.ExpiresAt.Format(time.RFC3339))
	return converter.HoldToResponse(hold, now), nil
}

// ConfirmBooking turns the caller's active hold into a confirmed booking.
//
// Flow:
// 1. Resolve the hold by id or by slot
// 2. Acquire per-slot lock
// 3. Consume hold in the ledger (atomic, loses against a concurrent reclaim);
//    the slot stays claimed so no other instance can hold it meanwhile
// 4. Insert booking + audit in one DB transaction, then settle the claim
// 5. If DB fails -> compensate: restore the hold in place of the claim
func (u *reservationUsecase) ConfirmBooking(ctx context.Context, req *dto.ConfirmBookingRequest) (*dto.BookingResponse, error) {
	holderID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	hold, err := u.resolveHold(ctx, req, holderID)
	if err != nil {
		return nil, err
	}
	if !hold.IsOwnedBy(holderID) {
		return nil, ErrForbidden
	}

	doctor, err := u.doctorRepo.FindByUserID(u.db.DB(ctx), hold.DoctorID)
	if err != nil {
		u.log.Warnf("Failed to find doctor %s: %+v", hold.DoctorID, err)
		return nil, err
	}
	if doctor == nil {
		return nil, ErrDoctorNotFound
	}

	key := hold.Key()
	release, err := u.locker.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	now := u.clock.Now()
	consumed, err := u.ledger.Consume(ctx, hold.ID, holderID, now, now.Add(bookingClaimTTL))
	if err != nil {
		return nil, u.mapLedgerErr(err)
	}

	holdID := consumed.ID
	booking := &entity.Booking{
		ID:          uuid.New(),
		DoctorID:    consumed.DoctorID,
		PatientID:   holderID,
		SlotDate:    consumed.SlotDate,
		SlotTime:    consumed.SlotTime,
		BookingCode: generateBookingCode(consumed.SlotDate),
		Status:      entity.BookingStatusConfirmed,
		Source:      entity.BookingSourceHold,
		HoldID:      &holdID,
		Notes:       req.Notes,
		Fee:         doctor.ConsultationFee,
	}

	err = u.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := u.bookingRepo.Create(tx, booking); err != nil {
			return err
		}
		return u.auditService.LogCreate(ctx, tx, &holderID, entity.AuditActionBookingCreate, bookingEntityName, booking.ID.String(), booking)
	})
	if err != nil {
		if isDuplicateKeyError(err, entity.ActiveSlotIndex) {
			// slot was booked through another path, the hold is worthless now
			u.log.Warnf("Slot %s already booked while confirming hold %s", key, holdID)
			u.settleClaim(key, holdID)
			return nil, ErrSlotUnavailable
		}

		u.log.Errorf("Failed to insert booking for hold %s, restoring hold: %+v", holdID, err)
		u.restoreHold(consumed)
		return nil, err
	}
	u.settleClaim(key, holdID)

	u.log.Infof("Booking confirmed: id=%s, slot=%s, hold=%s, code=%s", booking.ID, key, holdID, booking.BookingCode)
	return u.reload(ctx, booking), nil
}

// ReleaseSlot drops the caller's hold. Unknown or already gone holds succeed.
func (u *reservationUsecase) ReleaseSlot(ctx context.Context, holdID uuid.UUID) error {
	holderID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}

	hold, err := u.ledger.FindByID(ctx, holdID)
	if err != nil {
		u.log.Warnf("Failed to find hold %s: %+v", holdID, err)
		return err
	}
	if hold == nil {
		return nil
	}
	if !hold.IsOwnedBy(holderID) {
		return ErrForbidden
	}

	release, err := u.locker.Acquire(ctx, hold.Key())
	if err != nil {
		return err
	}
	defer release()

	released, err := u.ledger.Release(ctx, holdID, holderID, u.clock.Now())
	if err != nil {
		return u.mapLedgerErr(err)
	}
	if released == nil {
		return nil
	}

	u.auditService.LogEvent(ctx, &holderID, entity.AuditActionHoldRelease, holdEntityName, holdID.String(), released)
	u.log.Infof("Hold released: id=%s, slot=%s", holdID, released.Key())
	return nil
}

// CancelBooking cancels a confirmed booking of the caller (or any booking for admins)
func (u *reservationUsecase) CancelBooking(ctx context.Context, bookingID uuid.UUID) error {
	actorID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}

	booking, err := u.findBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.PatientID != actorID && !isAdmin(ctx) {
		return ErrForbidden
	}

	return u.cancel(ctx, actorID, booking)
}

// AdminCreateBooking books a slot directly, bypassing the hold ledger. It
// still refuses slots that are held or booked.
func (u *reservationUsecase) AdminCreateBooking(ctx context.Context, req *dto.AdminCreateBookingRequest) (*dto.BookingResponse, error) {
	actorID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	key := entity.NewSlotKey(req.DoctorID, req.Date, req.Time)
	if err := key.Validate(); err != nil {
		return nil, ErrInvalidSlot
	}

	doctor, err := u.doctorRepo.FindByUserID(u.db.DB(ctx), req.DoctorID)
	if err != nil {
		u.log.Warnf("Failed to find doctor %s: %+v", req.DoctorID, err)
		return nil, err
	}
	if doctor == nil {
		return nil, ErrDoctorNotFound
	}

	patient, err := u.userRepo.FindByID(u.db.DB(ctx), req.PatientID)
	if err != nil {
		u.log.Warnf("Failed to find patient %s: %+v", req.PatientID, err)
		return nil, err
	}
	if patient == nil || patient.RoleID != entity.RoleIDPatient {
		return nil, ErrPatientNotFound
	}

	release, err := u.locker.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	bookingID := uuid.New()
	if err := u.claimSlot(ctx, key, bookingID); err != nil {
		return nil, err
	}
	defer u.settleClaim(key, bookingID)

	if err := u.ensureSlotFree(ctx, key, nil); err != nil {
		return nil, err
	}

	booking := &entity.Booking{
		ID:          bookingID,
		DoctorID:    key.DoctorID,
		PatientID:   patient.ID,
		SlotDate:    key.Date,
		SlotTime:    key.Time,
		BookingCode: generateBookingCode(key.Date),
		Status:      entity.BookingStatusConfirmed,
		Source:      entity.BookingSourceAdmin,
		Notes:       req.Notes,
		Fee:         doctor.ConsultationFee,
	}

	err = u.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := u.bookingRepo.Create(tx, booking); err != nil {
			return err
		}
		return u.auditService.LogCreate(ctx, tx, &actorID, entity.AuditActionBookingOverride, bookingEntityName, booking.ID.String(), booking)
	})
	if err != nil {
		if isDuplicateKeyError(err, entity.ActiveSlotIndex) {
			return nil, ErrSlotUnavailable
		}
		u.log.Warnf("Failed to create admin booking for slot %s: %+v", key, err)
		return nil, err
	}

	u.log.Infof("Admin booking created: id=%s, slot=%s, admin=%s", booking.ID, key, actorID)
	return u.reload(ctx, booking), nil
}

// AdminUpdateStatus cancels a booking or reinstates a cancelled one. A
// reinstated booking goes through the same checks as a new admin booking.
func (u *reservationUsecase) AdminUpdateStatus(ctx context.Context, bookingID uuid.UUID, req *dto.UpdateBookingStatusRequest) (*dto.BookingResponse, error) {
	actorID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	booking, err := u.findBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	switch entity.BookingStatus(req.Status) {
	case entity.BookingStatusCancelled:
		if err := u.cancel(ctx, actorID, booking); err != nil {
			return nil, err
		}
	case entity.BookingStatusConfirmed:
		if booking.IsConfirmed() {
			return converter.BookingToResponse(booking), nil
		}
		if err := u.reinstate(ctx, actorID, booking); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported booking status %q", req.Status)
	}

	return u.reload(ctx, booking), nil
}

// GetMyBookings returns all bookings for the logged-in patient
func (u *reservationUsecase) GetMyBookings(ctx context.Context) (*dto.BookingListResponse, error) {
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	bookings, err := u.bookingRepo.FindByPatientID(u.db.DB(ctx), userID)
	if err != nil {
		u.log.Warnf("Failed to find bookings for patient %s: %+v", userID, err)
		return nil, err
	}

	return &dto.BookingListResponse{
		Bookings: converter.BookingsToResponses(bookings),
		Total:    len(bookings),
	}, nil
}

func (u *reservationUsecase) GetAllBookings(ctx context.Context, filter *entity.BookingFilter) (*dto.BookingListResponse, error) {
	bookings, err := u.bookingRepo.FindAll(u.db.DB(ctx), filter)
	if err != nil {
		u.log.Warnf("Failed to list bookings: %+v", err)
		return nil, err
	}

	return &dto.BookingListResponse{
		Bookings: converter.BookingsToResponses(bookings),
		Total:    len(bookings),
	}, nil
}

// GetBooking is visible to the patient, the doctor and admins
func (u *reservationUsecase) GetBooking(ctx context.Context, bookingID uuid.UUID) (*dto.BookingResponse, error) {
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	booking, err := u.findBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.PatientID != userID && booking.DoctorID != userID && !isAdmin(ctx) {
		return nil, ErrForbidden
	}

	return converter.BookingToResponse(booking), nil
}

func (u *reservationUsecase) ExpiredHoldIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return u.ledger.ExpiredIDs(ctx, u.clock.Now(), limit)
}

// ExpireHold reclaims an expired hold under its slot lock. It returns false
// when the hold was already confirmed, released or is not expired yet.
func (u *reservationUsecase) ExpireHold(ctx context.Context, holdID uuid.UUID) (bool, error) {
	hold, err := u.ledger.FindByID(ctx, holdID)
	if err != nil {
		return false, err
	}
	if hold == nil {
		// only a dangling index entry is left
		_, err := u.ledger.Reclaim(ctx, holdID, u.clock.Now())
		return false, err
	}

	release, err := u.locker.Acquire(ctx, hold.Key())
	if err != nil {
		return false, err
	}
	defer release()

	reclaimed, err := u.ledger.Reclaim(ctx, holdID, u.clock.Now())
	if err != nil {
		u.log.Warnf("Failed to reclaim hold %s: %+v", holdID, err)
		return false, err
	}
	if reclaimed == nil {
		return false, nil
	}

	u.auditService.LogEvent(ctx, &reclaimed.HolderID, entity.AuditActionHoldExpire, holdEntityName, holdID.String(), reclaimed)
	u.log.Debugf("Hold expired: id=%s, slot=%s", holdID, reclaimed.Key())
	return true, nil
}

// =============================================================================
// Private Helper Methods
// =============================================================================

// checkBookable validates key and makes sure the doctor offers it in the future
func (u *reservationUsecase) checkBookable(ctx context.Context, key entity.SlotKey) (*entity.DoctorProfile, error) {
	if err := key.Validate(); err != nil {
		return nil, ErrInvalidSlot
	}

	startsAt, err := key.StartsAt(u.location)
	if err != nil {
		return nil, ErrInvalidSlot
	}
	if !startsAt.After(u.clock.Now()) {
		return nil, ErrSlotPast
	}

	doctor, err := u.doctorRepo.FindByUserID(u.db.DB(ctx), key.DoctorID)
	if err != nil {
		u.log.Warnf("Failed to find doctor %s: %+v", key.DoctorID, err)
		return nil, err
	}
	if doctor == nil || !doctor.IsBookable() {
		return nil, ErrDoctorNotFound
	}

	schedules, err := u.scheduleRepo.FindByDoctorAndDate(u.db.DB(ctx), key.DoctorID, key.Date)
	if err != nil {
		u.log.Warnf("Failed to find schedules of doctor %s on %s: %+v", key.DoctorID, key.Date, err)
		return nil, err
	}
	for i := range schedules {
		if schedules[i].Offers(key.Time) {
			return doctor, nil
		}
	}
	return nil, ErrSlotNotOffered
}

// resolveHold finds the hold a confirm request refers to
func (u *reservationUsecase) resolveHold(ctx context.Context, req *dto.ConfirmBookingRequest, holderID uuid.UUID) (*entity.Hold, error) {
	if req.HoldID != nil {
		hold, err := u.ledger.FindByID(ctx, *req.HoldID)
		if err != nil {
			u.log.Warnf("Failed to find hold %s: %+v", *req.HoldID, err)
			return nil, err
		}
		if hold == nil {
			// gone already, the ledger tombstone tells why
			now := u.clock.Now()
			_, err := u.ledger.Consume(ctx, *req.HoldID, holderID, now, now)
			if err == nil {
				return nil, ErrHoldNotFound
			}
			return nil, u.mapLedgerErr(err)
		}
		return hold, nil
	}

	if req.DoctorID == nil || req.Date == "" || req.Time == "" {
		return nil, ErrInvalidSlot
	}
	key := entity.NewSlotKey(*req.DoctorID, req.Date, req.Time)
	if err := key.Validate(); err != nil {
		return nil, ErrInvalidSlot
	}

	hold, err := u.ledger.FindActive(ctx, key, u.clock.Now())
	if err != nil {
		u.log.Warnf("Failed to find hold for slot %s: %+v", key, err)
		return nil, err
	}
	if hold == nil {
		// the slot has no live hold: it lapsed or was taken by someone else
		return nil, ErrHoldExpired
	}
	return hold, nil
}

// ensureSlotFree fails with ErrSlotUnavailable if key has a confirmed booking
// other than except or any active hold. Callers writing a booking claim the
// slot first so no hold can appear after this check.
func (u *reservationUsecase) ensureSlotFree(ctx context.Context, key entity.SlotKey, except *uuid.UUID) error {
	booked, err := u.bookingRepo.FindConfirmedBySlot(u.db.DB(ctx), key)
	if err != nil {
		u.log.Warnf("Failed to check bookings for slot %s: %+v", key, err)
		return err
	}
	if booked != nil && (except == nil || booked.ID != *except) {
		return ErrSlotUnavailable
	}

	held, err := u.ledger.FindActive(ctx, key, u.clock.Now())
	if err != nil {
		u.log.Warnf("Failed to check holds for slot %s: %+v", key, err)
		return err
	}
	if held != nil {
		return ErrSlotUnavailable
	}
	return nil
}

func (u *reservationUsecase) cancel(ctx context.Context, actorID uuid.UUID, booking *entity.Booking) error {
	if booking.IsCancelled() {
		return ErrBookingAlreadyCancelled
	}

	release, err := u.locker.Acquire(ctx, booking.Key())
	if err != nil {
		return err
	}
	defer release()

	err = u.db.WithTx(ctx, func(tx *gorm.DB) error {
		// conditional update so a concurrent cancel cannot run twice
		rows, err := u.bookingRepo.CancelBooking(tx, booking.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrBookingAlreadyCancelled
		}
		return u.auditService.LogUpdate(ctx, tx, &actorID, entity.AuditActionBookingCancel, bookingEntityName, booking.ID.String(),
			entity.BookingStatusConfirmed, entity.BookingStatusCancelled)
	})
	if err != nil {
		if !errors.Is(err, ErrBookingAlreadyCancelled) {
			u.log.Warnf("Failed to cancel booking %s: %+v", booking.ID, err)
		}
		return err
	}

	u.log.Infof("Booking cancelled: id=%s, slot=%s, by=%s", booking.ID, booking.Key(), actorID)
	return nil
}

func (u *reservationUsecase) reinstate(ctx context.Context, actorID uuid.UUID, booking *entity.Booking) error {
	key := booking.Key()
	release, err := u.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	if err := u.claimSlot(ctx, key, booking.ID); err != nil {
		return err
	}
	defer u.settleClaim(key, booking.ID)

	if err := u.ensureSlotFree(ctx, key, &booking.ID); err != nil {
		return err
	}

	err = u.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := u.bookingRepo.ReinstateBooking(tx, booking.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrBookingStatusChanged
		}
		return u.auditService.LogUpdate(ctx, tx, &actorID, entity.AuditActionBookingRestore, bookingEntityName, booking.ID.String(),
			entity.BookingStatusCancelled, entity.BookingStatusConfirmed)
	})
	if err != nil {
		if isDuplicateKeyError(err, entity.ActiveSlotIndex) {
			return ErrSlotUnavailable
		}
		if !errors.Is(err, ErrBookingStatusChanged) {
			u.log.Warnf("Failed to reinstate booking %s: %+v", booking.ID, err)
		}
		return err
	}

	u.log.Infof("Booking reinstated: id=%s, slot=%s, by=%s", booking.ID, key, actorID)
	return nil
}

// restoreHold puts a consumed hold back after the booking insert failed.
// It runs on its own context so a cancelled request still compensates.
func (u *reservationUsecase) restoreHold(hold *entity.Hold) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	if err := u.ledger.Restore(ctx, hold, u.clock.Now()); err != nil {
		u.log.Errorf("CRITICAL: Failed to restore hold %s for slot %s after DB failure: %+v", hold.ID, hold.Key(), err)
		if err := u.ledger.Settle(ctx, hold.Key(), hold.ID); err != nil {
			u.log.Errorf("Failed to lift claim %s on slot %s: %+v", hold.ID, hold.Key(), err)
		}
	}
}

// claimSlot keeps key from being held by any instance while a booking for it
// is written under claimID.
func (u *reservationUsecase) claimSlot(ctx context.Context, key entity.SlotKey, claimID uuid.UUID) error {
	now := u.clock.Now()
	if err := u.ledger.Claim(ctx, key, claimID, now, now.Add(bookingClaimTTL)); err != nil {
		if errors.Is(err, repository.ErrSlotAlreadyHeld) {
			return ErrSlotUnavailable
		}
		u.log.Warnf("Failed to claim slot %s: %+v", key, err)
		return err
	}
	return nil
}

// settleClaim lifts a booking claim. A claim that cannot be lifted lapses
// after bookingClaimTTL.
func (u *reservationUsecase) settleClaim(key entity.SlotKey, claimID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	if err := u.ledger.Settle(ctx, key, claimID); err != nil {
		u.log.Warnf("Failed to settle claim %s on slot %s: %+v", claimID, key, err)
	}
}

// discardHold drops a hold that was never handed out
func (u *reservationUsecase) discardHold(hold *entity.Hold) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	if _, err := u.ledger.Release(ctx, hold.ID, hold.HolderID, u.clock.Now()); err != nil {
		u.log.Warnf("Failed to discard hold %s on slot %s: %+v", hold.ID, hold.Key(), err)
	}
}

func (u *reservationUsecase) findBooking(ctx context.Context, bookingID uuid.UUID) (*entity.Booking, error) {
	booking, err := u.bookingRepo.FindByID(u.db.DB(ctx), bookingID)
	if err != nil {
		u.log.Warnf("Failed to find booking %s: %+v", bookingID, err)
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

// reload fetches booking with doctor and patient for the response, falling
// back to what we have if the read fails
func (u *reservationUsecase) reload(ctx context.Context, booking *entity.Booking) *dto.BookingResponse {
	full, err := u.bookingRepo.FindByID(u.db.DB(ctx), booking.ID)
	if err != nil || full == nil {
		u.log.Warnf("Failed to reload booking %s: %+v", booking.ID, err)
		return converter.BookingToResponse(booking)
	}
	return converter.BookingToResponse(full)
}

func (u *reservationUsecase) mapLedgerErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrHoldExpired):
		return ErrHoldExpired
	case errors.Is(err, repository.ErrHoldNotOwned):
		return ErrForbidden
	case errors.Is(err, repository.ErrHoldConsumed), errors.Is(err, repository.ErrHoldNotFound):
		return ErrHoldNotFound
	case errors.Is(err, repository.ErrSlotAlreadyHeld):
		return ErrSlotUnavailable
	}
	u.log.Warnf("Hold ledger failure: %+v", err)
	return err
}

func isAdmin(ctx context.Context) bool {
	roleID, ok := middleware.GetRoleIDFromContext(ctx)
	return ok && roleID == entity.RoleIDAdmin
}

// generateBookingCode generates a booking code: BK-YYYYMMDD-XXXXXX
func generateBookingCode(slotDate string) string {
	date, err := time.Parse(entity.SlotDateLayout, slotDate)
	if err != nil {
		date = time.Now().UTC()
	}
	randomBytes := make([]byte, bookingCodeRandomBytes)
	rand.Read(randomBytes)
	return fmt.Sprintf("BK-%s-%06X", date.Format("20060102"), randomBytes)
}
