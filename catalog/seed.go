package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumen/storefront-core/persist"
)

// DefaultRoles are seeded at startup.
var DefaultRoles = []string{"admin", "manager", "customer"}

// SeedRoles inserts any missing default roles. It runs under whatever audit
// context the executor carries; at startup that is the system actor, so the
// seeded rows have a nil CreatedBy. Safe to run on every boot.
func SeedRoles(ctx context.Context, ex *persist.Executor, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return ex.WithTransaction(ctx, func(ctx context.Context) error {
		for _, name := range DefaultRoles {
			exists, err := persist.ExistsByField[Role](ctx, ex, "Name", name)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if _, err := persist.Insert(ctx, ex, &Role{Name: name}); err != nil {
				return err
			}
			log.Infow("seeded role", "name", name)
		}
		return nil
	})
}
