package catalog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen/storefront-core/catalog"
	"github.com/lumen/storefront-core/persist"
)

func seedProduct(t *testing.T, products *catalog.ProductService, name, price string, stock int64) *catalog.Product {
	t.Helper()
	p, err := products.Create(context.Background(), catalog.ProductInput{
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func TestOrderService_Create(t *testing.T) {
	products, orders, _ := newTestServices(t)
	ctx := context.Background()

	widget := seedProduct(t, products, "Widget", "10.00", 5)
	gadget := seedProduct(t, products, "Gadget", "2.50", 10)

	// WHEN an order for two lines is placed
	o, err := orders.Create(ctx, catalog.OrderInput{
		Items: []catalog.OrderItemInput{
			{ProductID: widget.ID, Quantity: 2},
			{ProductID: gadget.ID, Quantity: 4},
		},
	})
	require.NoError(t, err)

	// THEN the header carries a number, pending status, and the exact total
	assert.NotEmpty(t, o.Number)
	assert.Equal(t, catalog.OrderStatusPending, o.Status)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("30.00")),
		"expected 30.00, got %s", o.Total)

	// AND the lines captured the unit prices at order time
	items, err := orders.Items(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// AND stock was decremented in the same transaction
	got, err := products.Get(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Stock)
	got, err = products.Get(ctx, gadget.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Stock)
}

func TestOrderService_Create_EmptyOrder(t *testing.T) {
	_, orders, _ := newTestServices(t)

	_, err := orders.Create(context.Background(), catalog.OrderInput{})
	assert.ErrorIs(t, err, catalog.ErrEmptyOrder)
}

func TestOrderService_Create_InvalidQuantity(t *testing.T) {
	products, orders, _ := newTestServices(t)
	widget := seedProduct(t, products, "Widget", "10.00", 5)

	_, err := orders.Create(context.Background(), catalog.OrderInput{
		Items: []catalog.OrderItemInput{{ProductID: widget.ID, Quantity: 0}},
	})
	assert.ErrorIs(t, err, catalog.ErrInvalidQuantity)
}

func TestOrderService_Create_UnknownProduct(t *testing.T) {
	_, orders, _ := newTestServices(t)

	_, err := orders.Create(context.Background(), catalog.OrderInput{
		Items: []catalog.OrderItemInput{{ProductID: 9999, Quantity: 1}},
	})
	assert.ErrorIs(t, err, persist.ErrNotFound)
}

func TestOrderService_Create_InsufficientStockRollsBackWholeOrder(t *testing.T) {
	products, orders, ex := newTestServices(t)
	ctx := context.Background()

	widget := seedProduct(t, products, "Widget", "10.00", 5)
	gadget := seedProduct(t, products, "Gadget", "2.50", 1)

	// GIVEN a second line that exceeds stock
	_, err := orders.Create(ctx, catalog.OrderInput{
		Items: []catalog.OrderItemInput{
			{ProductID: widget.ID, Quantity: 2},
			{ProductID: gadget.ID, Quantity: 3},
		},
	})
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)

	// THEN no header, no lines, and no stock change survived
	headers, err := persist.Query[catalog.Order](ctx, ex, "SELECT * FROM [Orders]")
	require.NoError(t, err)
	assert.Empty(t, headers)

	lines, err := persist.Query[catalog.OrderItem](ctx, ex, "SELECT * FROM [OrderItems]")
	require.NoError(t, err)
	assert.Empty(t, lines)

	got, err := products.Get(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Stock, "the first line's decrement must roll back too")
}

func TestOrderService_UpdateStatus(t *testing.T) {
	products, orders, _ := newTestServices(t)
	ctx := context.Background()
	widget := seedProduct(t, products, "Widget", "10.00", 5)

	o, err := orders.Create(ctx, catalog.OrderInput{
		Items: []catalog.OrderItemInput{{ProductID: widget.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	paid, err := orders.UpdateStatus(ctx, o.ID, catalog.OrderStatusPaid, nil)
	require.NoError(t, err)
	assert.Equal(t, catalog.OrderStatusPaid, paid.Status)
	require.NotNil(t, paid.UpdatedAt)

	// A writer still holding the pre-payment snapshot loses.
	_, err = orders.UpdateStatus(ctx, o.ID, catalog.OrderStatusCancelled, nil)
	assert.ErrorIs(t, err, persist.ErrStaleUpdate)

	shipped, err := orders.UpdateStatus(ctx, o.ID, catalog.OrderStatusShipped, paid.UpdatedAt)
	require.NoError(t, err)
	assert.Equal(t, catalog.OrderStatusShipped, shipped.Status)
}

func TestOrderService_ListByCustomer(t *testing.T) {
	products, orders, _ := newTestServices(t)
	ctx := context.Background()
	widget := seedProduct(t, products, "Widget", "10.00", 100)

	customer := int64(7)
	for i := 0; i < 3; i++ {
		_, err := orders.Create(ctx, catalog.OrderInput{
			CustomerID: &customer,
			Items:      []catalog.OrderItemInput{{ProductID: widget.ID, Quantity: 1}},
		})
		require.NoError(t, err)
	}
	_, err := orders.Create(ctx, catalog.OrderInput{
		Items: []catalog.OrderItemInput{{ProductID: widget.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	list, total, err := orders.ListByCustomer(ctx, customer, persist.Pagination{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 2)
	assert.Greater(t, list[0].ID, list[1].ID, "most recent first")
}
