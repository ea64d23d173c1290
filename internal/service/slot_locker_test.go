package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-medical-reservation/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSlotLocker_Acquire(t *testing.T) {
	t.Parallel()

	key := entity.NewSlotKey(uuid.New(), "2025-01-02", "09:00")

	t.Run("serializes holders of the same slot", func(t *testing.T) {
		locker := NewSlotLocker(time.Second, newTestLogger())

		var (
			wg      sync.WaitGroup
			inside  atomic.Int32
			maxSeen atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := locker.Acquire(context.Background(), key)
				if err != nil {
					t.Errorf("expected no error, got %v", err)
					return
				}
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				release()
			}()
		}
		wg.Wait()

		if maxSeen.Load() != 1 {
			t.Fatalf("expected at most 1 holder at a time, got %d", maxSeen.Load())
		}
		if locker.size() != 0 {
			t.Fatalf("expected no locks left, got %d", locker.size())
		}
	})

	t.Run("different slots do not block each other", func(t *testing.T) {
		locker := NewSlotLocker(50*time.Millisecond, newTestLogger())

		release, err := locker.Acquire(context.Background(), key)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer release()

		other := entity.NewSlotKey(key.DoctorID, key.Date, "09:30")
		releaseOther, err := locker.Acquire(context.Background(), other)
		if err != nil {
			t.Fatalf("expected other slot to be free, got %v", err)
		}
		releaseOther()
	})

	t.Run("times out with ErrSlotBusy", func(t *testing.T) {
		locker := NewSlotLocker(20*time.Millisecond, newTestLogger())

		release, err := locker.Acquire(context.Background(), key)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if _, err := locker.Acquire(context.Background(), key); !errors.Is(err, ErrSlotBusy) {
			t.Fatalf("expected ErrSlotBusy, got %v", err)
		}

		release()
		if locker.size() != 0 {
			t.Fatalf("expected lock to be dropped, got %d", locker.size())
		}
	})

	t.Run("gives up when the context is done", func(t *testing.T) {
		locker := NewSlotLocker(time.Second, newTestLogger())

		release, err := locker.Acquire(context.Background(), key)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer release()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := locker.Acquire(ctx, key); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("release is safe to call twice", func(t *testing.T) {
		locker := NewSlotLocker(20*time.Millisecond, newTestLogger())

		release, err := locker.Acquire(context.Background(), key)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		release()
		release()

		release, err = locker.Acquire(context.Background(), key)
		if err != nil {
			t.Fatalf("expected lock to be free, got %v", err)
		}
		release()
	})
}
