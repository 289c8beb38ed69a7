package api

import (
	"time"

	"github.com/lumen/storefront-core/catalog"
	"github.com/lumen/storefront-core/persist"
)

// =============================================================================
// REQUESTS
// =============================================================================

type ProductRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       string   `json:"price"`
	Stock       int64    `json:"stock"`
	Tags        []string `json:"tags"`

	// ExpectedUpdatedAt is the UpdatedAt the client last read, RFC 3339.
	// Omitted/null matches a never-updated row. Updates only.
	ExpectedUpdatedAt *string `json:"expected_updated_at,omitempty"`
}

type OrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type OrderRequest struct {
	CustomerID *int64             `json:"customer_id,omitempty"`
	Items      []OrderItemRequest `json:"items"`
}

type OrderStatusRequest struct {
	Status            string  `json:"status"`
	ExpectedUpdatedAt *string `json:"expected_updated_at,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ProductDTO struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       string   `json:"price"`
	Stock       int64    `json:"stock"`
	Tags        []string `json:"tags,omitempty"`
	CreatedAt   string   `json:"created_at"`
	CreatedBy   *int64   `json:"created_by,omitempty"`
	UpdatedAt   *string  `json:"updated_at,omitempty"`
	UpdatedBy   *int64   `json:"updated_by,omitempty"`
}

type OrderItemDTO struct {
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type OrderDTO struct {
	ID         int64          `json:"id"`
	Number     string         `json:"number"`
	CustomerID *int64         `json:"customer_id,omitempty"`
	Status     string         `json:"status"`
	Total      string         `json:"total"`
	Items      []OrderItemDTO `json:"items,omitempty"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  *string        `json:"updated_at,omitempty"`
}

type PageDTO[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(persist.TimeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func productDTO(p *catalog.Product, tags []string) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.String(),
		Stock:       p.Stock,
		Tags:        tags,
		CreatedAt:   formatTime(p.CreatedAt),
		CreatedBy:   p.CreatedBy,
		UpdatedAt:   formatTimePtr(p.UpdatedAt),
		UpdatedBy:   p.UpdatedBy,
	}
}

func orderDTO(o *catalog.Order, items []catalog.OrderItem) OrderDTO {
	dto := OrderDTO{
		ID:         o.ID,
		Number:     o.Number,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Total:      o.Total.String(),
		CreatedAt:  formatTime(o.CreatedAt),
		UpdatedAt:  formatTimePtr(o.UpdatedAt),
	}
	for _, it := range items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
		})
	}
	return dto
}
