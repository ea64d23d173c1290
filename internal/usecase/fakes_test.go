package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"go-medical-reservation/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeTransactor runs fn without a database; the fake repositories ignore tx
type fakeTransactor struct{}

func (fakeTransactor) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (fakeTransactor) DB(ctx context.Context) *gorm.DB {
	return nil
}

// fakeBookingRepo keeps bookings in memory and enforces the partial unique
// index on confirmed slots like PostgreSQL does
type fakeBookingRepo struct {
	mu        sync.Mutex
	bookings  map[uuid.UUID]entity.Booking
	createErr error
	creates   int

	// hooks run outside mu, before Create and after FindConfirmedBySlot
	beforeCreate    func()
	afterSlotLookup func()
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[uuid.UUID]entity.Booking)}
}

func activeSlotViolation() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: entity.ActiveSlotIndex}
}

func (r *fakeBookingRepo) setCreateErr(err error) {
	r.mu.Lock()
	r.createErr = err
	r.mu.Unlock()
}

func (r *fakeBookingRepo) setBeforeCreate(fn func()) {
	r.mu.Lock()
	r.beforeCreate = fn
	r.mu.Unlock()
}

func (r *fakeBookingRepo) setAfterSlotLookup(fn func()) {
	r.mu.Lock()
	r.afterSlotLookup = fn
	r.mu.Unlock()
}

func (r *fakeBookingRepo) slotTakenLocked(key entity.SlotKey, except uuid.UUID) bool {
	for id, b := range r.bookings {
		if id != except && b.IsConfirmed() && b.Key() == key {
			return true
		}
	}
	return false
}

func (r *fakeBookingRepo) Create(db *gorm.DB, booking *entity.Booking) error {
	r.mu.Lock()
	hook := r.beforeCreate
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++

	if r.createErr != nil {
		return r.createErr
	}
	if booking.IsConfirmed() && r.slotTakenLocked(booking.Key(), booking.ID) {
		return activeSlotViolation()
	}
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	r.bookings[booking.ID] = *booking
	return nil
}

func (r *fakeBookingRepo) FindByID(db *gorm.DB, id uuid.UUID) (*entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *fakeBookingRepo) FindByPatientID(db *gorm.DB, patientID uuid.UUID) ([]entity.Booking, error) {
	return r.filter(func(b entity.Booking) bool { return b.PatientID == patientID }), nil
}

func (r *fakeBookingRepo) FindAll(db *gorm.DB, filter *entity.BookingFilter) ([]entity.Booking, error) {
	return r.filter(func(b entity.Booking) bool {
		if filter == nil {
			return true
		}
		if filter.DoctorID != nil && b.DoctorID != *filter.DoctorID {
			return false
		}
		if filter.Date != "" && b.SlotDate != filter.Date {
			return false
		}
		if filter.Status != "" && b.Status != filter.Status {
			return false
		}
		return true
	}), nil
}

func (r *fakeBookingRepo) FindConfirmedBySlot(db *gorm.DB, key entity.SlotKey) (*entity.Booking, error) {
	found := r.filter(func(b entity.Booking) bool { return b.IsConfirmed() && b.Key() == key })

	r.mu.Lock()
	hook := r.afterSlotLookup
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r *fakeBookingRepo) FindConfirmedByDoctor(db *gorm.DB, doctorID uuid.UUID, from, to string) ([]entity.Booking, error) {
	return r.filter(func(b entity.Booking) bool {
		return b.IsConfirmed() && b.DoctorID == doctorID && b.SlotDate >= from && b.SlotDate <= to
	}), nil
}

func (r *fakeBookingRepo) CountConfirmedInWindow(db *gorm.DB, doctorID uuid.UUID, date, from, to string) (int64, error) {
	found := r.filter(func(b entity.Booking) bool {
		return b.IsConfirmed() && b.DoctorID == doctorID && b.SlotDate == date && b.SlotTime >= from && b.SlotTime < to
	})
	return int64(len(found)), nil
}

func (r *fakeBookingRepo) CancelBooking(db *gorm.DB, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok || !b.IsConfirmed() {
		return 0, nil
	}
	b.Status = entity.BookingStatusCancelled
	r.bookings[id] = b
	return 1, nil
}

func (r *fakeBookingRepo) ReinstateBooking(db *gorm.DB, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok || !b.IsCancelled() {
		return 0, nil
	}
	if r.slotTakenLocked(b.Key(), id) {
		return 0, activeSlotViolation()
	}
	b.Status = entity.BookingStatusConfirmed
	b.CancelledAt = nil
	r.bookings[id] = b
	return 1, nil
}

func (r *fakeBookingRepo) filter(keep func(entity.Booking) bool) []entity.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []entity.Booking
	for _, b := range r.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SlotDate != out[j].SlotDate {
			return out[i].SlotDate < out[j].SlotDate
		}
		return out[i].SlotTime < out[j].SlotTime
	})
	return out
}

func (r *fakeBookingRepo) createCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

type fakeScheduleRepo struct {
	mu        sync.Mutex
	schedules []entity.DoctorSchedule
	nextID    int
}

func (r *fakeScheduleRepo) Create(db *gorm.DB, schedule *entity.DoctorSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	schedule.ID = r.nextID
	r.schedules = append(r.schedules, *schedule)
	return nil
}

func (r *fakeScheduleRepo) FindByID(db *gorm.DB, id int) (*entity.DoctorSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.schedules {
		if r.schedules[i].ID == id {
			s := r.schedules[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (r *fakeScheduleRepo) FindByDoctorID(db *gorm.DB, doctorID uuid.UUID) ([]entity.DoctorSchedule, error) {
	return r.FindAll(db, &entity.ScheduleFilter{DoctorID: &doctorID})
}

func (r *fakeScheduleRepo) FindByDoctorAndDate(db *gorm.DB, doctorID uuid.UUID, date string) ([]entity.DoctorSchedule, error) {
	return r.FindAll(db, &entity.ScheduleFilter{DoctorID: &doctorID, StartAt: date, EndAt: date})
}

func (r *fakeScheduleRepo) FindAll(db *gorm.DB, filter *entity.ScheduleFilter) ([]entity.DoctorSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []entity.DoctorSchedule
	for _, s := range r.schedules {
		date := s.ScheduleDate.Format(entity.SlotDateLayout)
		if filter != nil {
			if filter.DoctorID != nil && s.DoctorID != *filter.DoctorID {
				continue
			}
			if filter.StartAt != "" && date < filter.StartAt {
				continue
			}
			if filter.EndAt != "" && date > filter.EndAt {
				continue
			}
			if filter.ConsultationType != "" && s.ConsultationType != filter.ConsultationType {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeScheduleRepo) Update(db *gorm.DB, schedule *entity.DoctorSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.schedules {
		if r.schedules[i].ID == schedule.ID {
			r.schedules[i] = *schedule
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeScheduleRepo) Delete(db *gorm.DB, id int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.schedules {
		if r.schedules[i].ID == id {
			r.schedules = append(r.schedules[:i], r.schedules[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

type fakeDoctorRepo struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]entity.DoctorProfile
}

func newFakeDoctorRepo(doctors ...entity.DoctorProfile) *fakeDoctorRepo {
	r := &fakeDoctorRepo{doctors: make(map[uuid.UUID]entity.DoctorProfile)}
	for _, d := range doctors {
		r.doctors[d.UserID] = d
	}
	return r
}

func (r *fakeDoctorRepo) Create(db *gorm.DB, profile *entity.DoctorProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[profile.UserID] = *profile
	return nil
}

func (r *fakeDoctorRepo) FindByUserID(db *gorm.DB, userID uuid.UUID) (*entity.DoctorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[userID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *fakeDoctorRepo) FindAll(db *gorm.DB, specialization string) ([]entity.DoctorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []entity.DoctorProfile
	for _, d := range r.doctors {
		if specialization == "" || d.Specialization == specialization {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]entity.User
}

func newFakeUserRepo(users ...entity.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]entity.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(db *gorm.DB, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return &pgconn.PgError{Code: "23505", ConstraintName: "idx_users_email"}
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) FindByEmail(db *gorm.DB, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) FindByID(db *gorm.DB, id uuid.UUID) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// fakeAuditService records the actions it was asked to log
type fakeAuditService struct {
	mu      sync.Mutex
	actions []string
	failOn  string
}

var errAuditFailed = errors.New("audit insert failed")

func (s *fakeAuditService) record(action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failOn == action {
		return errAuditFailed
	}
	s.actions = append(s.actions, action)
	return nil
}

func (s *fakeAuditService) LogCreate(ctx context.Context, tx *gorm.DB, userID *uuid.UUID, action string, entityName string, entityID string, newValue interface{}) error {
	return s.record(action)
}

func (s *fakeAuditService) LogUpdate(ctx context.Context, tx *gorm.DB, userID *uuid.UUID, action string, entityName string, entityID string, oldValue, newValue interface{}) error {
	return s.record(action)
}

func (s *fakeAuditService) LogDelete(ctx context.Context, tx *gorm.DB, userID *uuid.UUID, action string, entityName string, entityID string, oldValue interface{}) error {
	return s.record(action)
}

func (s *fakeAuditService) LogEvent(ctx context.Context, userID *uuid.UUID, action string, entityName string, entityID string, value interface{}) {
	_ = s.record(action)
}

func (s *fakeAuditService) count(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.actions {
		if a == action {
			n++
		}
	}
	return n
}
