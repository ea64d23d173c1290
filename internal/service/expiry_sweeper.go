package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go-medical-reservation/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// HoldReclaimer is implemented by the reservation usecase. ExpireHold must
// take the slot lock and report whether this call removed the hold.
type HoldReclaimer interface {
	ExpiredHoldIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
	ExpireHold(ctx context.Context, holdID uuid.UUID) (bool, error)
}

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 200
	defaultSweepWorkers   = 4
)

// ExpirySweeper periodically reclaims holds whose TTL has passed. Lazy
// expiry already hides them from every read; the sweeper frees the ledger
// and writes the hold.expire audit trail.
type ExpirySweeper struct {
	reclaimer HoldReclaimer
	log       *logrus.Logger
	interval  time.Duration
	batchSize int
	workers   int

	// Graceful shutdown
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	stopped  atomic.Bool
}

func NewExpirySweeper(reclaimer HoldReclaimer, log *logrus.Logger, cfg config.ReservationConfig) *ExpirySweeper {
	s := &ExpirySweeper{
		reclaimer: reclaimer,
		log:       log,
		interval:  cfg.SweepInterval,
		batchSize: cfg.SweepBatchSize,
		workers:   cfg.SweepWorkers,
		stopChan:  make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = defaultSweepInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultSweepBatchSize
	}
	if s.workers <= 0 {
		s.workers = defaultSweepWorkers
	}
	return s
}

// Start launches the background loop. Calling it twice is a no-op.
func (s *ExpirySweeper) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.loop()
	s.log.Infof("Expiry sweeper started (interval=%v, batch=%d, workers=%d)", s.interval, s.batchSize, s.workers)
}

// Stop gracefully shuts down the sweeper and waits for the running cycle.
// Safe to call multiple times.
func (s *ExpirySweeper) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stopChan)
		s.wg.Wait()
		s.log.Info("Expiry sweeper stopped")
	}
}

func (s *ExpirySweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			s.log.Debug("Expiry sweeper goroutine stopping")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if _, err := s.SweepOnce(ctx); err != nil {
				// whatever failed is still expired and gets picked up next tick
				s.log.Warnf("Failed to reclaim some expired holds: %+v", err)
			}
			cancel()
		}
	}
}

// SweepOnce reclaims one batch of expired holds with bounded parallelism and
// returns how many this call removed.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.reclaimer.ExpiredHoldIDs(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var reclaimed atomic.Int64
	p := pool.New().WithErrors().WithMaxGoroutines(s.workers)
	for _, id := range ids {
		p.Go(func() error {
			removed, err := s.reclaimer.ExpireHold(ctx, id)
			if err != nil {
				return err
			}
			if removed {
				reclaimed.Add(1)
			}
			return nil
		})
	}
	err = p.Wait()

	count := int(reclaimed.Load())
	if count > 0 {
		s.log.Infof("Reclaimed %d expired holds", count)
	}
	return count, err
}
