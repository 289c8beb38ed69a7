/*
Package sqlite owns the SQLite connection and schema for the storefront.

PURPOSE:
  Opens the database the persistence core runs against and migrates the
  schema. In production the same patterns apply to PostgreSQL or SQL
  Server - only minor SQL dialect differences.

KEY TABLES:
  Products, Tags, ProductTags:  Catalog with a flat tag join
  Orders, OrderItems:           Order aggregates
  Roles, Customers:             Access and identity rows
  IdempotencyRecords:           Keyed replay cache for mutating endpoints

QUOTING:
  Identifiers are bracket-quoted throughout so reserved words never
  collide; SQLite accepts the bracket syntax natively.

ENCODINGS:
  Time columns are fixed-width UTC text (persist.TimeFormat), money
  columns are decimal strings. Both orderings survive string comparison.

WAL MODE:
  The database is opened with WAL and foreign keys on: multiple readers
  don't block and a single writer at a time is enough for this workload.

USAGE:
  db, err := sqlite.Open("./data/storefront.db")
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

SEE ALSO:
  - persist: The executor this schema serves
  - api/sweeper.go: Deletes expired and orphaned rows from these tables
*/
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an in-memory database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	schema := `
	-- Catalog
	CREATE TABLE IF NOT EXISTS [Products] (
		[Id] INTEGER PRIMARY KEY AUTOINCREMENT,
		[Name] TEXT NOT NULL,
		[Description] TEXT NOT NULL DEFAULT '',
		[Price] TEXT NOT NULL,
		[Stock] INTEGER NOT NULL DEFAULT 0,
		[CreatedAt] TEXT NOT NULL,
		[CreatedBy] INTEGER,
		[UpdatedAt] TEXT,
		[UpdatedBy] INTEGER
	);

	CREATE TABLE IF NOT EXISTS [Tags] (
		[Id] INTEGER PRIMARY KEY AUTOINCREMENT,
		[Name] TEXT NOT NULL UNIQUE,
		[CreatedAt] TEXT NOT NULL,
		[CreatedBy] INTEGER,
		[UpdatedAt] TEXT,
		[UpdatedBy] INTEGER
	);

	CREATE TABLE IF NOT EXISTS [ProductTags] (
		[Id] INTEGER PRIMARY KEY AUTOINCREMENT,
		[ProductId] INTEGER NOT NULL,
		[TagId] INTEGER NOT NULL,
		[CreatedAt] TEXT NOT NULL,
		[CreatedBy] INTEGER,
		[UpdatedAt] TEXT,
		[UpdatedBy] INTEGER,
		UNIQUE([ProductId], [TagId])
	);

	CREATE INDEX IF NOT EXISTS idx_product_tags_tag
		ON [ProductTags]([TagId]);

	-- Orders
	CREATE TABLE IF NOT EXISTS [Orders] (
		[Id] INTEGER PRIMARY KEY AUTOINCREMENT,
		[Number] TEXT NOT NULL UNIQUE,
		[CustomerId] INTEGER,
		[Status] TEXT NOT NULL,
		[Total] TEXT NOT NULL,
		[CreatedAt] TEXT NOT NULL,
		[CreatedBy] INTEGER,
		[UpdatedAt] TEXT,
		[UpdatedBy] INTEGER
	);

	CREATE TABLE IF NOT EXISTS [OrderItems] (
		[Id] INTEGER PRIMARY KEY AUTOINCREMENT,
		[OrderId] INTEGER NOT NULL,
		[ProductId] INTEGER NOT NULL,
		[Quantity] INTEGER NOT NULL,
		[UnitPrice] TEXT NOT NULL,
		[CreatedAt] TEXT NOT NULL,
		[CreatedBy] INTEGER,
		[UpdatedAt] TEXT,
		[UpdatedBy] INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_order_items_order
		ON [OrderItems]([OrderId]);

	-- Access and identity
	CREATE TABLE IF NOT EXISTS [Roles] (
		[Id] INTEGER PRIMARY KEY AUTOINCREMENT,
		[Name] TEXT NOT NULL UNIQUE,
		[CreatedAt] TEXT NOT NULL,
		[CreatedBy] INTEGER,
		[UpdatedAt] TEXT,
		[UpdatedBy] INTEGER
	);

	CREATE TABLE IF NOT EXISTS [Customers] (
		[Id] INTEGER PRIMARY KEY AUTOINCREMENT,
		[Email] TEXT NOT NULL UNIQUE,
		[Name] TEXT NOT NULL,
		[RoleId] INTEGER,
		[CreatedAt] TEXT NOT NULL,
		[CreatedBy] INTEGER,
		[UpdatedAt] TEXT,
		[UpdatedBy] INTEGER
	);

	-- Request-level replay cache. One live record per (ClientKey, Endpoint);
	-- the store clears the expired row before reinserting, so the unique
	-- constraint only ever trips for two requests racing on a fresh key.
	CREATE TABLE IF NOT EXISTS [IdempotencyRecords] (
		[Id] INTEGER PRIMARY KEY AUTOINCREMENT,
		[ClientKey] TEXT NOT NULL,
		[Endpoint] TEXT NOT NULL,
		[RequestHash] TEXT NOT NULL,
		[StatusCode] INTEGER NOT NULL,
		[ResponseBody] TEXT NOT NULL,
		[CreatedAt] TEXT NOT NULL,
		[ExpiresAt] TEXT NOT NULL,
		UNIQUE([ClientKey], [Endpoint])
	);

	CREATE INDEX IF NOT EXISTS idx_idempotency_expires
		ON [IdempotencyRecords]([ExpiresAt]);
	`

	_, err := db.Exec(schema)
	return err
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
// It inspects the driver error kind first and only falls back to message
// matching, so unrelated constraint failures are never misclassified.
func IsUniqueViolation(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
