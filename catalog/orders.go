/*
orders.go - Order service

PURPOSE:
  Creates order aggregates (header + items) atomically and adjusts product
  stock inside the same unit of work. The stock adjustment goes through the
  product service's optimistic update, so two orders racing for the last
  unit resolve to one success and one conflict - no row locks held between
  read and write.

TRANSACTION SHAPE:
  Create opens the outer transaction; the product service's reads and the
  stock updates it calls collapse into that scope rather than opening
  their own. Either the whole order lands or none of it does.
*/
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lumen/storefront-core/persist"
)

// OrderItemInput is one requested line.
type OrderItemInput struct {
	ProductID int64
	Quantity  int64
}

// OrderInput is a create-order request.
type OrderInput struct {
	CustomerID *int64
	Items      []OrderItemInput
}

// OrderService is the write path for orders.
type OrderService struct {
	ex       *persist.Executor
	products *ProductService
	log      *zap.SugaredLogger
}

func NewOrderService(ex *persist.Executor, products *ProductService, log *zap.SugaredLogger) *OrderService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &OrderService{ex: ex, products: products, log: log}
}

// Create validates every line, computes the decimal total, inserts the
// order and its items, and decrements stock - all in one transaction.
func (s *OrderService) Create(ctx context.Context, in OrderInput) (*Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	return persist.InTransaction(ctx, s.ex, func(ctx context.Context) (*Order, error) {
		total := decimal.Zero
		prices := make(map[int64]decimal.Decimal, len(in.Items))

		for _, item := range in.Items {
			if item.Quantity < 1 {
				return nil, fmt.Errorf("product %d: %w", item.ProductID, ErrInvalidQuantity)
			}
			p, err := persist.GetByID[Product](ctx, s.ex, item.ProductID)
			if err != nil {
				return nil, err
			}
			if p == nil {
				return nil, fmt.Errorf("product %d: %w", item.ProductID, persist.ErrNotFound)
			}
			prices[item.ProductID] = p.Price
			total = total.Add(p.Price.Mul(decimal.NewFromInt(item.Quantity)))
		}

		order := &Order{
			Number:     uuid.NewString(),
			CustomerID: in.CustomerID,
			Status:     OrderStatusPending,
			Total:      total,
		}
		orderID, err := persist.Insert(ctx, s.ex, order)
		if err != nil {
			return nil, err
		}

		items := make([]*OrderItem, len(in.Items))
		for i, item := range in.Items {
			items[i] = &OrderItem{
				OrderID:   orderID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: prices[item.ProductID],
			}
		}
		if err := persist.BulkInsert(ctx, s.ex, items); err != nil {
			return nil, err
		}

		// Nested service call, same ambient transaction.
		for _, item := range in.Items {
			if err := s.products.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
				return nil, err
			}
		}

		s.log.Infow("order created", "id", orderID, "number", order.Number, "total", total.String())
		return order, nil
	})
}

// Get fetches one order; (nil, nil) when absent.
func (s *OrderService) Get(ctx context.Context, id int64) (*Order, error) {
	return persist.GetByID[Order](ctx, s.ex, id)
}

// Items returns the order's lines.
func (s *OrderService) Items(ctx context.Context, orderID int64) ([]OrderItem, error) {
	return persist.GetWhere[OrderItem](ctx, s.ex, map[string]any{"OrderId": orderID})
}

// UpdateStatus moves the order to a new status under the optimistic check.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status string, expectedUpdatedAt *time.Time) (*Order, error) {
	return persist.InTransaction(ctx, s.ex, func(ctx context.Context) (*Order, error) {
		o, err := persist.GetByID[Order](ctx, s.ex, id)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, fmt.Errorf("order %d: %w", id, persist.ErrNotFound)
		}
		o.Status = status
		if err := persist.Update(ctx, s.ex, o, expectedUpdatedAt); err != nil {
			return nil, err
		}
		return o, nil
	})
}

// ListByCustomer returns a customer's orders, most recent first.
func (s *OrderService) ListByCustomer(ctx context.Context, customerID int64, page persist.Pagination) ([]Order, int64, error) {
	base := "SELECT * FROM [Orders] WHERE [CustomerId] = ? ORDER BY [Id] DESC"
	return persist.GetPaginatedWithSQL[Order](ctx, s.ex, base, page, customerID)
}
