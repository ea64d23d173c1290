package repository

import (
	"context"
	"errors"
	"time"

	"go-medical-reservation/internal/domain/entity"

	"github.com/google/uuid"
)

var (
	ErrSlotAlreadyHeld = errors.New("slot already has an active hold")
	ErrHoldNotFound    = errors.New("hold not found")
	ErrHoldNotOwned    = errors.New("hold belongs to another holder")
	ErrHoldExpired     = errors.New("hold expired")
	ErrHoldConsumed    = errors.New("hold already confirmed")
)

// HoldLedger stores temporary slot reservations. Every mutating method is
// atomic on its own: a slot key is occupied by at most one active hold or one
// live booking claim.
//
// A booking claim marks a slot whose booking row is being written. It is left
// behind by Consume or taken with Claim, and lifted by Settle once the write
// committed or failed, or by Restore of the same hold.
type HoldLedger interface {
	// Create stores hold unless an active hold or a live claim of another id
	// occupies its key (ErrSlotAlreadyHeld). Expired occupants are replaced.
	Create(ctx context.Context, hold *entity.Hold, now time.Time) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Hold, error)
	FindActive(ctx context.Context, key entity.SlotKey, now time.Time) (*entity.Hold, error)
	ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]entity.Hold, error)

	// Consume removes an active hold owned by holderID and returns it, leaving
	// a claim with the hold id on its slot until claimUntil.
	// An expired hold is removed and reported as ErrHoldExpired.
	Consume(ctx context.Context, id, holderID uuid.UUID, now, claimUntil time.Time) (*entity.Hold, error)
	// Release removes the hold regardless of expiry. Missing holds are a no-op
	// and return nil, nil.
	Release(ctx context.Context, id, holderID uuid.UUID, now time.Time) (*entity.Hold, error)
	// Restore puts back a consumed hold when the booking could not be stored.
	// It replaces the claim Consume left.
	Restore(ctx context.Context, hold *entity.Hold, now time.Time) error

	// Claim occupies a free key for a booking written without a hold.
	Claim(ctx context.Context, key entity.SlotKey, claimID uuid.UUID, now, until time.Time) error
	// Settle lifts the claim of claimID on key. Other occupants are untouched.
	Settle(ctx context.Context, key entity.SlotKey, claimID uuid.UUID) error

	ExpiredIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	// Reclaim removes the hold only if it is still present and expired at now.
	Reclaim(ctx context.Context, id uuid.UUID, now time.Time) (*entity.Hold, error)
}
