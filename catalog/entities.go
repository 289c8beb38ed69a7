/*
entities.go - Storefront entity types

PURPOSE:
  Flat, single-table entities mapped through the persistence core. Every
  mutable table embeds the shared Audit block; the executor stamps those
  columns on insert and update, so nothing here touches them directly.

MAPPING:
  db tags name the columns, the pk option marks the surrogate key, and
  TableName() supplies the table. This metadata is the only contract
  between these models and the persistence core.
*/
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Audit is the shared audit-stamped column block. CreatedAt/CreatedBy are
// written once on insert; UpdatedAt/UpdatedBy on every update. UpdatedAt is
// nil until the first update and is the basis of the concurrency check.
type Audit struct {
	CreatedAt time.Time  `db:"CreatedAt"`
	CreatedBy *int64     `db:"CreatedBy"`
	UpdatedAt *time.Time `db:"UpdatedAt"`
	UpdatedBy *int64     `db:"UpdatedBy"`
}

type Product struct {
	ID          int64           `db:"Id,pk"`
	Name        string          `db:"Name"`
	Description string          `db:"Description"`
	Price       decimal.Decimal `db:"Price"`
	Stock       int64           `db:"Stock"`
	Audit
}

func (Product) TableName() string { return "Products" }

type Tag struct {
	ID   int64  `db:"Id,pk"`
	Name string `db:"Name"`
	Audit
}

func (Tag) TableName() string { return "Tags" }

// ProductTag is a flat join row; the aggregate relationship is expressed
// with explicit SQL, never object graphs.
type ProductTag struct {
	ID        int64 `db:"Id,pk"`
	ProductID int64 `db:"ProductId"`
	TagID     int64 `db:"TagId"`
	Audit
}

func (ProductTag) TableName() string { return "ProductTags" }

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
)

type Order struct {
	ID         int64           `db:"Id,pk"`
	Number     string          `db:"Number"`
	CustomerID *int64          `db:"CustomerId"`
	Status     string          `db:"Status"`
	Total      decimal.Decimal `db:"Total"`
	Audit
}

func (Order) TableName() string { return "Orders" }

type OrderItem struct {
	ID        int64           `db:"Id,pk"`
	OrderID   int64           `db:"OrderId"`
	ProductID int64           `db:"ProductId"`
	Quantity  int64           `db:"Quantity"`
	UnitPrice decimal.Decimal `db:"UnitPrice"`
	Audit
}

func (OrderItem) TableName() string { return "OrderItems" }

type Role struct {
	ID   int64  `db:"Id,pk"`
	Name string `db:"Name"`
	Audit
}

func (Role) TableName() string { return "Roles" }

type Customer struct {
	ID     int64  `db:"Id,pk"`
	Email  string `db:"Email"`
	Name   string `db:"Name"`
	RoleID *int64 `db:"RoleId"`
	Audit
}

func (Customer) TableName() string { return "Customers" }
