/*
store.go - Keyed replay cache over the persistence core

PURPOSE:
  Persists and recalls captured responses for mutating endpoints. The
  state machine per (clientKey, endpoint) pair:

    New       no unexpired record; the operation executes and its response
              is captured on success
    Replay    unexpired record, same request hash; the stored response is
              returned verbatim, the operation does not run again
    Conflict  unexpired record, different hash; the client reused a key
              for a different payload - ErrKeyReuse
    Expired   record past ExpiresAt; treated as New

RACE WINDOW:
  Two requests racing on the same fresh key both execute; the loser's
  insert trips the unique constraint and is suppressed - its caller
  already received its own computed response, and the next replay reads
  whichever writer won. Only a verified unique violation is suppressed;
  any other failure surfaces.
*/
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumen/storefront-core/persist"
	"github.com/lumen/storefront-core/store/sqlite"
)

// ErrKeyReuse is returned when an Idempotency-Key is replayed with a
// different request body. A client-side bug, surfaced as HTTP 409.
var ErrKeyReuse = errors.New("idempotency key reused with a different request body")

// Store is the replay cache.
type Store struct {
	ex  *persist.Executor
	ttl time.Duration
	log *zap.SugaredLogger
}

// NewStore creates a store. A non-positive ttl falls back to DefaultTTL.
func NewStore(ex *persist.Executor, ttl time.Duration, log *zap.SugaredLogger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{ex: ex, ttl: ttl, log: log}
}

// TTL is the configured record lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// GetExisting returns the unexpired record for the pair, or nil.
func (s *Store) GetExisting(ctx context.Context, clientKey, endpoint string) (*Record, error) {
	return persist.FirstOrDefault[Record](ctx, s.ex,
		`SELECT * FROM [IdempotencyRecords]
		 WHERE [ClientKey] = ? AND [Endpoint] = ? AND [ExpiresAt] > ?`,
		clientKey, endpoint, time.Now().UTC())
}

// Store persists a captured response, best-effort. An expired row for the
// same pair is cleared first so the unique constraint only guards the
// fresh-key race; a loser of that race is suppressed, not surfaced.
func (s *Store) Store(ctx context.Context, rec *Record) error {
	rec.ExpiresAt = time.Now().UTC().Add(s.ttl)

	return s.ex.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := s.ex.Execute(ctx,
			`DELETE FROM [IdempotencyRecords]
			 WHERE [ClientKey] = ? AND [Endpoint] = ? AND [ExpiresAt] <= ?`,
			rec.ClientKey, rec.Endpoint, time.Now().UTC())
		if err != nil {
			return err
		}

		if _, err := persist.Insert(ctx, s.ex, rec); err != nil {
			if sqlite.IsUniqueViolation(err) {
				s.log.Infow("concurrent duplicate idempotency record suppressed",
					"client_key", rec.ClientKey, "endpoint", rec.Endpoint)
				return nil
			}
			return fmt.Errorf("failed to store idempotency record: %w", err)
		}
		return nil
	})
}

// DeleteExpired removes every record past its expiry and returns the count.
// Used by the sweeper; running it twice back-to-back deletes zero rows the
// second time.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	return s.ex.Execute(ctx,
		"DELETE FROM [IdempotencyRecords] WHERE [ExpiresAt] <= ?", time.Now().UTC())
}
