package idempotency

import "time"

// DefaultTTL is how long a captured response stays replayable.
const DefaultTTL = 24 * time.Hour

// Record is one captured response, keyed by (ClientKey, Endpoint). At most
// one unexpired record exists per pair; the storage layer enforces it with
// a unique constraint.
type Record struct {
	ID           int64     `db:"Id,pk"`
	ClientKey    string    `db:"ClientKey"`
	Endpoint     string    `db:"Endpoint"`
	RequestHash  string    `db:"RequestHash"`
	StatusCode   int       `db:"StatusCode"`
	ResponseBody string    `db:"ResponseBody"`
	CreatedAt    time.Time `db:"CreatedAt"`
	ExpiresAt    time.Time `db:"ExpiresAt"`
}

func (Record) TableName() string { return "IdempotencyRecords" }

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
