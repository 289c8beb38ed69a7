/*
sweeper.go - Periodic expiry and orphan cleanup

PURPOSE:
  A single background task that deletes idempotency records past their
  expiry and tag rows no longer referenced by any product. Decoupled from
  request handling: it uses the same executor but its own unit-of-work
  scope per pass.

DESIGN:
  - Waits for the application readiness barrier plus a settle delay
  - Then loops on a fixed, config-controlled interval
  - Each pass runs in one transaction; a failed pass is logged and does
    not stop later passes
  - The whole cycle observes context cancellation for graceful shutdown

IDEMPOTENCE:
  Running a pass twice with no new expirations deletes zero rows the
  second time.

SEE ALSO:
  - idempotency/store.go: DeleteExpired
  - cmd/server/main.go: Readiness barrier and lifecycle
*/
package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lumen/storefront-core/idempotency"
	"github.com/lumen/storefront-core/persist"
)

// Sweeper is the periodic cleanup task.
type Sweeper struct {
	Interval    time.Duration
	SettleDelay time.Duration

	ex    *persist.Executor
	idem  *idempotency.Store
	ready <-chan struct{}
	log   *zap.SugaredLogger
}

// NewSweeper creates a sweeper. ready is the application startup barrier;
// the first pass runs SettleDelay after it closes.
func NewSweeper(ex *persist.Executor, idem *idempotency.Store, ready <-chan struct{}, interval, settleDelay time.Duration, log *zap.SugaredLogger) *Sweeper {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Sweeper{
		Interval:    interval,
		SettleDelay: settleDelay,
		ex:          ex,
		idem:        idem,
		ready:       ready,
		log:         log,
	}
}

// Run blocks until ctx is cancelled, sweeping at the configured interval.
func (s *Sweeper) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-s.ready:
	}

	settle := time.NewTimer(s.SettleDelay)
	defer settle.Stop()
	select {
	case <-ctx.Done():
		return
	case <-settle.C:
	}

	s.log.Infow("sweeper started", "interval", s.Interval)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, orphans, err := s.SweepOnce(ctx)
	if err != nil {
		s.log.Errorw("sweep pass failed", "error", err)
		return
	}
	if expired > 0 || orphans > 0 {
		s.log.Infow("sweep completed", "expired_records", expired, "orphaned_tags", orphans)
	}
}

// SweepOnce runs one cleanup pass in its own transaction and returns the
// deleted counts. Exported for tests and admin triggering.
func (s *Sweeper) SweepOnce(ctx context.Context) (expired, orphans int64, err error) {
	err = s.ex.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if expired, err = s.idem.DeleteExpired(ctx); err != nil {
			return err
		}
		orphans, err = s.ex.Execute(ctx,
			`DELETE FROM [Tags] WHERE [Id] NOT IN (SELECT DISTINCT [TagId] FROM [ProductTags])`)
		return err
	})
	return expired, orphans, err
}
