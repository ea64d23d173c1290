package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-medical-reservation/internal/domain/entity"

	"github.com/sirupsen/logrus"
)

// ErrSlotBusy is returned when the per-slot lock could not be taken in time
var ErrSlotBusy = errors.New("slot is busy, try again")

const defaultLockTimeout = 2 * time.Second

// SlotLocker serializes state transitions of a single slot within this
// process. Across instances the hold ledger is the arbiter. Locks are created on demand and dropped as soon as nobody holds
// or waits for them, so the map only ever contains slots in use.
//
// Lock Ordering:
// 1. Acquire slot lock FIRST
// 2. Then touch the hold ledger and the database
type SlotLocker struct {
	mu      sync.Mutex
	locks   map[entity.SlotKey]*slotLock
	timeout time.Duration
	log     *logrus.Logger
}

// slotLock is a one-token semaphore so waiters can give up on a timer
type slotLock struct {
	token chan struct{}
	refs  int
}

func NewSlotLocker(timeout time.Duration, log *logrus.Logger) *SlotLocker {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &SlotLocker{
		locks:   make(map[entity.SlotKey]*slotLock),
		timeout: timeout,
		log:     log,
	}
}

// Acquire blocks until the lock for key is held, the lock timeout elapses
// (ErrSlotBusy) or ctx is done. The returned release func is safe to call
// more than once.
func (l *SlotLocker) Acquire(ctx context.Context, key entity.SlotKey) (func(), error) {
	lock := l.ref(key)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case lock.token <- struct{}{}:
	case <-timer.C:
		l.unref(key, lock)
		l.log.Debugf("Timed out waiting for slot lock %s", key)
		return nil, ErrSlotBusy
	case <-ctx.Done():
		l.unref(key, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.token
			l.unref(key, lock)
		})
	}, nil
}

// size returns the number of slots currently locked or waited on
func (l *SlotLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *SlotLocker) ref(key entity.SlotKey) *slotLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[key]
	if !ok {
		lock = &slotLock{token: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (l *SlotLocker) unref(key entity.SlotKey, lock *slotLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}
