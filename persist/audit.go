package persist

import "context"

// AuditContext supplies the actor performing the current mutation. It is the
// only contract between the persistence core and whatever environment hosts
// it (HTTP, background job, migration), so the core never imports transport
// types. A nil actor is a legitimate system value; writes never fail merely
// because nobody is signed in.
type AuditContext interface {
	CurrentActorID(ctx context.Context) *int64
}

// SystemAuditContext is the actor source for migrations, seeding, and
// background jobs: always anonymous.
type SystemAuditContext struct{}

func (SystemAuditContext) CurrentActorID(context.Context) *int64 { return nil }
