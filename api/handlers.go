/*
handlers.go - HTTP handlers for the storefront API

PURPOSE:
  Thin glue between HTTP and the catalog services. Parses requests,
  delegates, serializes responses, and maps the persistence-core error
  taxonomy onto status codes. All real behavior lives below this layer.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input, missing conditions, invalid quantities
  - 404: Missing rows
  - 409: Lost optimistic check, reused idempotency key, stock shortage
  - 500: Everything else, collapsed to a generic message so internal
         detail never leaks

  Expected failures are logged as informational events only; unexpected
  ones are logged as errors with full context.

SEE ALSO:
  - server.go: Route wiring and middleware
  - dto.go: Request/response shapes
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lumen/storefront-core/catalog"
	"github.com/lumen/storefront-core/idempotency"
	"github.com/lumen/storefront-core/persist"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Products *catalog.ProductService
	Orders   *catalog.OrderService

	log *zap.SugaredLogger
}

// NewHandler creates a handler over the catalog services.
func NewHandler(products *catalog.ProductService, orders *catalog.OrderService, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{Products: products, Orders: orders, log: log}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns one page of products with the total count.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	filter := r.URL.Query().Get("name")

	products, total, err := h.Products.List(r.Context(), filter, page)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i := range products {
		dtos[i] = productDTO(&products[i], nil)
	}
	writeJSON(w, http.StatusOK, PageDTO[ProductDTO]{
		Items:      dtos,
		TotalCount: total,
		Page:       page.Page,
		PageSize:   page.PageSize,
	})
}

// GetProduct returns a single product with its tags.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	p, err := h.Products.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if p == nil {
		writeErrorMessage(w, http.StatusNotFound, "product not found")
		return
	}

	tags, err := h.Products.TagNames(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productDTO(p, tags))
}

// CreateProduct creates a product with its tags.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	in, err := productInput(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.Products.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, productDTO(p, nil))
}

// UpdateProduct applies an edit under the optimistic concurrency check.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in, err := requestToInput(req)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	expected, err := parseExpected(req.ExpectedUpdatedAt)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid expected_updated_at (use RFC 3339)")
		return
	}

	p, err := h.Products.Update(r.Context(), id, in, expected)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productDTO(p, nil))
}

// DeleteProduct removes a product and its tag joins.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.Products.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// CreateOrder places an order atomically.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := catalog.OrderInput{CustomerID: req.CustomerID}
	for _, item := range req.Items {
		in.Items = append(in.Items, catalog.OrderItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	o, err := h.Orders.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	items, err := h.Orders.Items(r.Context(), o.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderDTO(o, items))
}

// GetOrder returns a single order with its lines.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if o == nil {
		writeErrorMessage(w, http.StatusNotFound, "order not found")
		return
	}

	items, err := h.Orders.Items(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderDTO(o, items))
}

// UpdateOrderStatus moves an order to a new status under the optimistic check.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req OrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	expected, err := parseExpected(req.ExpectedUpdatedAt)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid expected_updated_at (use RFC 3339)")
		return
	}

	o, err := h.Orders.UpdateStatus(r.Context(), id, req.Status, expected)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderDTO(o, nil))
}

// =============================================================================
// HELPERS
// =============================================================================

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errBadID
	}
	return id, nil
}

var errBadID = errors.New("invalid id")

func pageFromQuery(r *http.Request) persist.Pagination {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	return persist.Pagination{Page: page, PageSize: size}
}

func productInput(r *http.Request) (catalog.ProductInput, error) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return catalog.ProductInput{}, errors.New("invalid request body")
	}
	return requestToInput(req)
}

func requestToInput(req ProductRequest) (catalog.ProductInput, error) {
	if req.Name == "" {
		return catalog.ProductInput{}, errors.New("name is required")
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return catalog.ProductInput{}, errors.New("invalid price")
	}
	return catalog.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Stock:       req.Stock,
		Tags:        req.Tags,
	}, nil
}

func parseExpected(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *raw)
	if err != nil {
		return nil, err
	}
	u := t.UTC()
	return &u, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps the error taxonomy onto status codes. Concurrency and
// idempotency conflicts get dedicated client-facing messages; everything
// unexpected collapses to a generic one.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadID),
		errors.Is(err, persist.ErrEmptyConditions),
		errors.Is(err, persist.ErrUnknownColumn),
		errors.Is(err, catalog.ErrEmptyOrder),
		errors.Is(err, catalog.ErrInvalidQuantity):
		h.log.Infow("rejected request", "reason", err)
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, persist.ErrNotFound):
		h.log.Infow("resource not found", "reason", err)
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, persist.ErrStaleUpdate):
		h.log.Infow("optimistic concurrency conflict", "reason", err)
		writeErrorMessage(w, http.StatusConflict,
			"the record was modified by someone else, reload and try again")
	case errors.Is(err, catalog.ErrInsufficientStock):
		h.log.Infow("stock conflict", "reason", err)
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, idempotency.ErrKeyReuse):
		h.log.Infow("idempotency conflict", "reason", err)
		writeErrorMessage(w, http.StatusConflict, err.Error())
	default:
		h.log.Errorw("request failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "something went wrong, please try again")
	}
}
