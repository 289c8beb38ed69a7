/*
errors.go - Centralized error types for the persistence core

PURPOSE:
  All error types in one place for consistency and discoverability.
  The service layer translates these to HTTP status codes; nothing in
  this package knows about transports.

ERROR CATEGORIES:
  1. Read errors     - Missing rows on exactly-one reads
  2. Caller errors   - Malformed input (empty condition maps, bad columns)
  3. Write errors    - Missing identities, lost optimistic checks
  4. Schema errors   - Misconfigured entity types (startup-time defects)

USAGE:
  Callers should match with errors.Is:

    if errors.Is(err, persist.ErrStaleUpdate) {
        // surface as HTTP 409, re-read and retry
    }

SEE ALSO:
  - executor.go: Produces these errors
  - schema.go: Produces SchemaError
*/
package persist

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned by First-style reads when no row matches.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyConditions is returned when a condition map has no entries.
	// Guards against accidental full-table scans through GetWhere.
	ErrEmptyConditions = errors.New("at least one condition is required")

	// ErrUnknownColumn is returned when a caller-supplied field name does not
	// map to any column of the entity.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrNoIdentity is returned when an autoincrement insert yields no
	// generated key. Never applies to natural keys.
	ErrNoIdentity = errors.New("insert returned no identity")

	// ErrStaleUpdate is returned when the optimistic concurrency check loses:
	// the row was modified or deleted since it was read. Callers re-read and
	// retry or surface the conflict; the core never auto-retries.
	ErrStaleUpdate = errors.New("row was modified or deleted since it was read")

	// ErrStatementNotRegistered is returned by ExecuteNamed for unknown names.
	ErrStatementNotRegistered = errors.New("statement not registered")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SchemaError reports a misconfigured entity type: no table name, no primary
// key, or an unsupported mapping. This is a programmer error; MustDescribe
// turns it into a panic so it is caught at startup rather than mid-request.
type SchemaError struct {
	Type   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error for %s: %s", e.Type, e.Reason)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is an expected, typed failure that
// the caller can act on, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrEmptyConditions) ||
		errors.Is(err, ErrUnknownColumn) ||
		errors.Is(err, ErrStaleUpdate)
}
