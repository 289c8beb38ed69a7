/*
products.go - Product service

PURPOSE:
  Product CRUD over the persistence core. Every write runs inside one
  unit-of-work transaction; tag bookkeeping (find-or-create tags, rebuild
  join rows) rides in the same scope as the product write.

CONCURRENCY:
  Update takes the caller's expectedUpdatedAt and propagates
  persist.ErrStaleUpdate untouched; the transport layer turns it into 409
  and the client re-reads and retries.

SEE ALSO:
  - orders.go: Adjusts product stock through the same optimistic path
  - api/sweeper.go: Collects tags orphaned by product deletion
*/
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lumen/storefront-core/persist"
)

// ProductInput carries the caller-editable product fields.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int64
	Tags        []string
}

// ProductService is the write path for catalog products.
type ProductService struct {
	ex  *persist.Executor
	log *zap.SugaredLogger
}

func NewProductService(ex *persist.Executor, log *zap.SugaredLogger) *ProductService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ProductService{ex: ex, log: log}
}

// Create inserts the product, its tags, and the join rows atomically.
func (s *ProductService) Create(ctx context.Context, in ProductInput) (*Product, error) {
	return persist.InTransaction(ctx, s.ex, func(ctx context.Context) (*Product, error) {
		p := &Product{
			Name:        in.Name,
			Description: in.Description,
			Price:       in.Price,
			Stock:       in.Stock,
		}
		id, err := persist.Insert(ctx, s.ex, p)
		if err != nil {
			return nil, err
		}
		if err := s.attachTags(ctx, id, in.Tags); err != nil {
			return nil, err
		}
		s.log.Infow("product created", "id", id, "name", in.Name)
		return p, nil
	})
}

// Update applies the input under the optimistic concurrency check and
// rebuilds the tag join rows in the same transaction.
func (s *ProductService) Update(ctx context.Context, id int64, in ProductInput, expectedUpdatedAt *time.Time) (*Product, error) {
	return persist.InTransaction(ctx, s.ex, func(ctx context.Context) (*Product, error) {
		p, err := persist.GetByID[Product](ctx, s.ex, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("product %d: %w", id, persist.ErrNotFound)
		}

		p.Name = in.Name
		p.Description = in.Description
		p.Price = in.Price
		p.Stock = in.Stock
		if err := persist.Update(ctx, s.ex, p, expectedUpdatedAt); err != nil {
			return nil, err
		}

		if _, err := s.ex.Execute(ctx, "DELETE FROM [ProductTags] WHERE [ProductId] = ?", id); err != nil {
			return nil, err
		}
		if err := s.attachTags(ctx, id, in.Tags); err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Get fetches one product; (nil, nil) when absent.
func (s *ProductService) Get(ctx context.Context, id int64) (*Product, error) {
	return persist.GetByID[Product](ctx, s.ex, id)
}

// TagNames returns the product's tag names via an explicit join.
func (s *ProductService) TagNames(ctx context.Context, productID int64) ([]string, error) {
	tags, err := persist.Query[Tag](ctx, s.ex,
		`SELECT t.[Id], t.[Name] FROM [Tags] t
		 JOIN [ProductTags] pt ON pt.[TagId] = t.[Id]
		 WHERE pt.[ProductId] = ?
		 ORDER BY t.[Name]`, productID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names, nil
}

// List returns one page of products plus the total count, optionally
// filtered by a name substring.
func (s *ProductService) List(ctx context.Context, nameFilter string, page persist.Pagination) ([]Product, int64, error) {
	base := "SELECT * FROM [Products]"
	var args []any
	if nameFilter != "" {
		base += " WHERE [Name] LIKE ?"
		args = append(args, "%"+nameFilter+"%")
	}
	base += " ORDER BY [Id]"
	return persist.GetPaginatedWithSQL[Product](ctx, s.ex, base, page, args...)
}

// Delete removes the product and its join rows. Tags themselves stay; the
// sweeper collects the ones nothing references anymore.
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	return s.ex.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.ex.Execute(ctx, "DELETE FROM [ProductTags] WHERE [ProductId] = ?", id); err != nil {
			return err
		}
		affected, err := s.ex.Execute(ctx, "DELETE FROM [Products] WHERE [Id] = ?", id)
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("product %d: %w", id, persist.ErrNotFound)
		}
		return nil
	})
}

// AdjustStock applies a delta to a product's stock under the optimistic
// check, inside the caller's ambient transaction.
func (s *ProductService) AdjustStock(ctx context.Context, productID, delta int64) error {
	p, err := persist.GetByID[Product](ctx, s.ex, productID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("product %d: %w", productID, persist.ErrNotFound)
	}
	if p.Stock+delta < 0 {
		return fmt.Errorf("product %d: %w", productID, ErrInsufficientStock)
	}
	p.Stock += delta
	return persist.Update(ctx, s.ex, p, p.UpdatedAt)
}

// attachTags finds or creates each tag and bulk-inserts the join rows.
func (s *ProductService) attachTags(ctx context.Context, productID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}

	joins := make([]*ProductTag, 0, len(names))
	for _, name := range names {
		existing, err := persist.GetWhere[Tag](ctx, s.ex, map[string]any{"Name": name})
		if err != nil {
			return err
		}

		var tagID int64
		if len(existing) > 0 {
			tagID = existing[0].ID
		} else {
			tagID, err = persist.Insert(ctx, s.ex, &Tag{Name: name})
			if err != nil {
				return err
			}
		}
		joins = append(joins, &ProductTag{ProductID: productID, TagID: tagID})
	}
	return persist.BulkInsert(ctx, s.ex, joins)
}
