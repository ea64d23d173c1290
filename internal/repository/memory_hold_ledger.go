package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-medical-reservation/internal/domain/entity"
	domainRepo "go-medical-reservation/internal/domain/repository"

	"github.com/google/uuid"
)

type tombstone struct {
	outcome entity.HoldOutcome
	until   time.Time
}

type bookingClaim struct {
	id    uuid.UUID
	until time.Time
}

// memoryHoldLedger keeps holds in process memory. It is only correct for a
// single service instance; multi-instance deployments use the Redis ledger.
type memoryHoldLedger struct {
	mu           sync.Mutex
	holds        map[uuid.UUID]entity.Hold
	slots        map[entity.SlotKey]uuid.UUID
	tombs        map[uuid.UUID]tombstone
	claims       map[entity.SlotKey]bookingClaim
	tombstoneTTL time.Duration
}

// defaultTombstoneTTL is how long a removed hold keeps reporting its outcome
const defaultTombstoneTTL = time.Hour

func NewMemoryHoldLedger(tombstoneTTL time.Duration) domainRepo.HoldLedger {
	if tombstoneTTL <= 0 {
		tombstoneTTL = defaultTombstoneTTL
	}
	return &memoryHoldLedger{
		holds:        make(map[uuid.UUID]entity.Hold),
		slots:        make(map[entity.SlotKey]uuid.UUID),
		tombs:        make(map[uuid.UUID]tombstone),
		claims:       make(map[entity.SlotKey]bookingClaim),
		tombstoneTTL: tombstoneTTL,
	}
}

func (l *memoryHoldLedger) Create(_ context.Context, hold *entity.Hold, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.occupiedLocked(hold.Key(), hold.ID, now) {
		return domainRepo.ErrSlotAlreadyHeld
	}
	l.putLocked(hold)
	return nil
}

func (l *memoryHoldLedger) FindByID(_ context.Context, id uuid.UUID) (*entity.Hold, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hold, ok := l.holds[id]
	if !ok {
		return nil, nil
	}
	return &hold, nil
}

func (l *memoryHoldLedger) FindActive(_ context.Context, key entity.SlotKey, now time.Time) (*entity.Hold, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.slots[key]
	if !ok {
		return nil, nil
	}
	hold, ok := l.holds[id]
	if !ok || !hold.IsActive(now) {
		return nil, nil
	}
	return &hold, nil
}

func (l *memoryHoldLedger) ListActiveByDoctor(_ context.Context, doctorID uuid.UUID, now time.Time) ([]entity.Hold, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var holds []entity.Hold
	for key, id := range l.slots {
		if key.DoctorID != doctorID {
			continue
		}
		if hold, ok := l.holds[id]; ok && hold.IsActive(now) {
			holds = append(holds, hold)
		}
	}
	sort.Slice(holds, func(i, j int) bool {
		return holds[i].SlotDate+holds[i].SlotTime < holds[j].SlotDate+holds[j].SlotTime
	})
	return holds, nil
}

func (l *memoryHoldLedger) Consume(_ context.Context, id, holderID uuid.UUID, now, claimUntil time.Time) (*entity.Hold, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hold, ok := l.holds[id]
	if !ok {
		return nil, l.missingErr(id, now)
	}
	if !hold.IsOwnedBy(holderID) {
		return nil, domainRepo.ErrHoldNotOwned
	}
	if !hold.IsActive(now) {
		l.removeLocked(hold, entity.HoldOutcomeExpired, now)
		return nil, domainRepo.ErrHoldExpired
	}

	l.removeLocked(hold, entity.HoldOutcomeConfirmed, now)
	l.claims[hold.Key()] = bookingClaim{id: hold.ID, until: claimUntil}
	return &hold, nil
}

func (l *memoryHoldLedger) Release(_ context.Context, id, holderID uuid.UUID, now time.Time) (*entity.Hold, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hold, ok := l.holds[id]
	if !ok {
		return nil, nil
	}
	if !hold.IsOwnedBy(holderID) {
		return nil, domainRepo.ErrHoldNotOwned
	}

	l.removeLocked(hold, entity.HoldOutcomeReleased, now)
	return &hold, nil
}

func (l *memoryHoldLedger) Restore(_ context.Context, hold *entity.Hold, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.occupiedLocked(hold.Key(), hold.ID, now) {
		return domainRepo.ErrSlotAlreadyHeld
	}
	l.putLocked(hold)
	return nil
}

func (l *memoryHoldLedger) Claim(_ context.Context, key entity.SlotKey, claimID uuid.UUID, now, until time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.occupiedLocked(key, claimID, now) {
		return domainRepo.ErrSlotAlreadyHeld
	}
	if id, ok := l.slots[key]; ok && id != claimID {
		// stale hold stays in holds for the sweeper
		delete(l.slots, key)
	}
	l.claims[key] = bookingClaim{id: claimID, until: until}
	return nil
}

func (l *memoryHoldLedger) Settle(_ context.Context, key entity.SlotKey, claimID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if claim, ok := l.claims[key]; ok && claim.id == claimID {
		delete(l.claims, key)
	}
	return nil
}

func (l *memoryHoldLedger) ExpiredIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, tomb := range l.tombs {
		if !tomb.until.After(now) {
			delete(l.tombs, id)
		}
	}
	for key, claim := range l.claims {
		if !claim.until.After(now) {
			delete(l.claims, key)
		}
	}

	var expired []entity.Hold
	for _, hold := range l.holds {
		if !hold.IsActive(now) {
			expired = append(expired, hold)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	ids := make([]uuid.UUID, len(expired))
	for i, hold := range expired {
		ids[i] = hold.ID
	}
	return ids, nil
}

func (l *memoryHoldLedger) Reclaim(_ context.Context, id uuid.UUID, now time.Time) (*entity.Hold, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hold, ok := l.holds[id]
	if !ok || hold.IsActive(now) {
		return nil, nil
	}

	l.removeLocked(hold, entity.HoldOutcomeExpired, now)
	return &hold, nil
}

// occupiedLocked reports whether key has an active hold or a live claim with
// an id other than id. Caller must hold l.mu.
func (l *memoryHoldLedger) occupiedLocked(key entity.SlotKey, id uuid.UUID, now time.Time) bool {
	if claim, ok := l.claims[key]; ok && claim.id != id && claim.until.After(now) {
		return true
	}
	if currentID, ok := l.slots[key]; ok && currentID != id {
		if current, ok := l.holds[currentID]; ok && current.IsActive(now) {
			return true
		}
	}
	return false
}

// putLocked stores hold as the occupant of its key. A stale previous occupant
// is kept in holds so the sweeper still sees it. Caller must hold l.mu.
func (l *memoryHoldLedger) putLocked(hold *entity.Hold) {
	key := hold.Key()
	l.holds[hold.ID] = *hold
	l.slots[key] = hold.ID
	delete(l.claims, key)
	delete(l.tombs, hold.ID)
}

// removeLocked drops hold and frees its slot if it still points at it.
// Caller must hold l.mu.
func (l *memoryHoldLedger) removeLocked(hold entity.Hold, outcome entity.HoldOutcome, now time.Time) {
	delete(l.holds, hold.ID)
	if l.slots[hold.Key()] == hold.ID {
		delete(l.slots, hold.Key())
	}
	l.tombs[hold.ID] = tombstone{outcome: outcome, until: now.Add(l.tombstoneTTL)}
}

func (l *memoryHoldLedger) missingErr(id uuid.UUID, now time.Time) error {
	tomb, ok := l.tombs[id]
	if !ok || !tomb.until.After(now) {
		return domainRepo.ErrHoldNotFound
	}
	return outcomeErr(tomb.outcome)
}

// outcomeErr maps a tombstone to the error a late confirm should see
func outcomeErr(outcome entity.HoldOutcome) error {
	switch outcome {
	case entity.HoldOutcomeConfirmed:
		return domainRepo.ErrHoldConsumed
	case entity.HoldOutcomeExpired, entity.HoldOutcomeReleased:
		return domainRepo.ErrHoldExpired
	}
	return domainRepo.ErrHoldNotFound
}
