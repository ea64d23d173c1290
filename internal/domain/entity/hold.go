package entity

import (
	"time"

	"github.com/google/uuid"
)

// HoldOutcome records why a hold left the ledger
type HoldOutcome string

const (
	HoldOutcomeConfirmed HoldOutcome = "confirmed"
	HoldOutcomeReleased  HoldOutcome = "released"
	HoldOutcomeExpired   HoldOutcome = "expired"
)

// Hold is a time-boxed claim on a slot prior to a confirmed booking.
// Holds live in the hold ledger (Redis or memory), not in PostgreSQL.
type Hold struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	SlotDate  string    `json:"slot_date"`
	SlotTime  string    `json:"slot_time"`
	HolderID  uuid.UUID `json:"holder_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Hold) Key() SlotKey {
	return NewSlotKey(h.DoctorID, h.SlotDate, h.SlotTime)
}

// IsActive reports whether the hold still blocks its slot at now
func (h *Hold) IsActive(now time.Time) bool {
	return h.ExpiresAt.After(now)
}

func (h *Hold) IsOwnedBy(holderID uuid.UUID) bool {
	return h.HolderID == holderID
}
