package catalog

import "errors"

var (
	// ErrInsufficientStock is returned when an order asks for more units
	// than the product has on hand.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrEmptyOrder is returned when an order carries no items.
	ErrEmptyOrder = errors.New("order must contain at least one item")

	// ErrInvalidQuantity is returned when an order line asks for less
	// than one unit.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)
