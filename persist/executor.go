/*
executor.go - The public CRUD surface of the persistence core

PURPOSE:
  Every read and write in the system flows through this executor. It is the
  single choke point that centralizes audit stamping and the optimistic
  concurrency check, so no caller can bypass either.

ARCHITECTURE:
  The Executor holds the connection pool, the AuditContext capability, a
  logger, and a named-statement registry. Entity-typed operations are
  package-level generic functions over it (Go methods cannot carry type
  parameters). Each operation resolves its connection through the context:
  the ambient transaction when one is open, the pool otherwise.

OPERATIONS:
  Reads:   Query, First, FirstOrDefault, GetByID, GetWhere, GetWhereIn,
           Exists, ExistsByField, GetPaginatedWithSQL
  Writes:  Insert, BulkInsert, Update, Execute, ExecuteNamed

ERROR HANDLING:
  Expected failures (ErrNotFound, ErrStaleUpdate, ...) are typed and logged
  as informational events. Anything else is wrapped with context and left
  for the caller to log and surface as a generic server error.

SEE ALSO:
  - schema.go: Entity descriptors
  - builder.go: Statement text
  - tx.go: Ambient transaction
*/
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor is the query/command surface over one database.
type Executor struct {
	db    *sql.DB
	audit AuditContext
	log   *zap.SugaredLogger

	mu         sync.RWMutex
	statements map[string]string
}

// NewExecutor creates an executor. A nil audit context defaults to the
// system actor; a nil logger is replaced with a no-op one.
func NewExecutor(db *sql.DB, audit AuditContext, log *zap.SugaredLogger) *Executor {
	if audit == nil {
		audit = SystemAuditContext{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Executor{
		db:         db,
		audit:      audit,
		log:        log,
		statements: make(map[string]string),
	}
}

// DB exposes the underlying pool for schema migration and tests.
func (ex *Executor) DB() *sql.DB { return ex.db }

func (ex *Executor) conn(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return ex.db
}

// =============================================================================
// READS
// =============================================================================

// Query runs a raw read and returns zero or more rows.
func Query[T Entity](ctx context.Context, ex *Executor, query string, args ...any) ([]T, error) {
	bound := make([]any, len(args))
	for i, a := range args {
		bound[i] = bindValue(a)
	}
	rows, err := ex.conn(ctx).QueryContext(ctx, query, bound...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return collectRows[T](rows)
}

// First runs a read that must match at least one row.
func First[T Entity](ctx context.Context, ex *Executor, query string, args ...any) (T, error) {
	items, err := Query[T](ctx, ex, query, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	if len(items) == 0 {
		var zero T
		return zero, fmt.Errorf("%s: %w", zero.TableName(), ErrNotFound)
	}
	return items[0], nil
}

// FirstOrDefault runs a zero-or-one read; a miss returns (nil, nil).
func FirstOrDefault[T Entity](ctx context.Context, ex *Executor, query string, args ...any) (*T, error) {
	items, err := Query[T](ctx, ex, query, args...)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// GetByID fetches one entity by primary key; a miss returns (nil, nil).
func GetByID[T Entity](ctx context.Context, ex *Executor, id any) (*T, error) {
	d, err := descriptorOf[T]()
	if err != nil {
		return nil, err
	}
	return FirstOrDefault[T](ctx, ex, d.selectByIDSQL, bindValue(id))
}

// GetWhere fetches entities matching every condition. An empty condition map
// is rejected so this helper can never run a full-table scan by accident.
func GetWhere[T Entity](ctx context.Context, ex *Executor, conditions map[string]any) ([]T, error) {
	d, err := descriptorOf[T]()
	if err != nil {
		return nil, err
	}
	if len(conditions) == 0 {
		return nil, fmt.Errorf("%s: %w", d.Table, ErrEmptyConditions)
	}

	names := make([]string, 0, len(conditions))
	for name := range conditions {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		col, ok := d.column(name)
		if !ok {
			return nil, fmt.Errorf("%s.%s: %w", d.Table, name, ErrUnknownColumn)
		}
		fields[i] = col.Name
		args[i] = bindValue(conditions[name])
	}

	return Query[T](ctx, ex, buildSelectWhere(d, fields), args...)
}

// GetWhereIn fetches entities whose field matches any of the values.
func GetWhereIn[T Entity](ctx context.Context, ex *Executor, field string, values []any) ([]T, error) {
	d, err := descriptorOf[T]()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	col, ok := d.column(field)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", d.Table, field, ErrUnknownColumn)
	}

	args := make([]any, len(values))
	for i, v := range values {
		args[i] = bindValue(v)
	}
	return Query[T](ctx, ex, buildSelectWhereIn(d, col.Name, len(values)), args...)
}

// Exists reports whether a row with the given primary key exists.
func Exists[T Entity](ctx context.Context, ex *Executor, id any) (bool, error) {
	d, err := descriptorOf[T]()
	if err != nil {
		return false, err
	}
	return existsBy(ctx, ex, d, d.PK.Name, id)
}

// ExistsByField reports whether any row has the given field value.
func ExistsByField[T Entity](ctx context.Context, ex *Executor, field string, value any) (bool, error) {
	d, err := descriptorOf[T]()
	if err != nil {
		return false, err
	}
	col, ok := d.column(field)
	if !ok {
		return false, fmt.Errorf("%s.%s: %w", d.Table, field, ErrUnknownColumn)
	}
	return existsBy(ctx, ex, d, col.Name, value)
}

func existsBy(ctx context.Context, ex *Executor, d *Descriptor, field string, value any) (bool, error) {
	var found bool
	err := ex.conn(ctx).QueryRowContext(ctx, buildExists(d, field), bindValue(value)).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("existence check on %s failed: %w", d.Table, err)
	}
	return found, nil
}

// Pagination is a windowed-fetch request. Page is 1-based.
type Pagination struct {
	Page     int
	PageSize int
}

func (p Pagination) normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p Pagination) Offset() int {
	p = p.normalize()
	return (p.Page - 1) * p.PageSize
}

// GetPaginatedWithSQL wraps a base query with a COUNT(*) over the same
// predicate plus a LIMIT/OFFSET page. The two statements are not a single
// snapshot; under concurrent writes the total and the page can disagree by
// a row, which is accepted at read-committed isolation.
func GetPaginatedWithSQL[T Entity](ctx context.Context, ex *Executor, baseQuery string, page Pagination, args ...any) ([]T, int64, error) {
	page = page.normalize()

	bound := make([]any, len(args))
	for i, a := range args {
		bound[i] = bindValue(a)
	}

	var total int64
	if err := ex.conn(ctx).QueryRowContext(ctx, buildCount(baseQuery), bound...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query failed: %w", err)
	}

	pageArgs := append(append([]any(nil), args...), page.PageSize, page.Offset())
	items, err := Query[T](ctx, ex, buildPage(baseQuery), pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// =============================================================================
// WRITES
// =============================================================================

// Insert persists a new entity, stamping CreatedAt/CreatedBy from the
// AuditContext first. For autoincrement keys the generated id is written
// back onto the entity and returned; a zero identity is a failure. Natural
// keys are inserted as-is and the returned id is zero.
func Insert[T Entity](ctx context.Context, ex *Executor, entity *T) (int64, error) {
	d, err := descriptorOf[T]()
	if err != nil {
		return 0, err
	}

	v := reflect.ValueOf(entity).Elem()
	now := time.Now().UTC()
	if d.createdAt != nil {
		setTimeField(v.FieldByIndex(d.createdAt), now)
	}
	if d.createdBy != nil {
		setActorField(v.FieldByIndex(d.createdBy), ex.audit.CurrentActorID(ctx))
	}

	args := fieldArgs(v, insertColumns(d))

	if !d.AutoPK {
		if _, err := ex.conn(ctx).ExecContext(ctx, d.insertSQL, args...); err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", d.Table, err)
		}
		return 0, nil
	}

	var id int64
	if err := ex.conn(ctx).QueryRowContext(ctx, d.insertSQL, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", d.Table, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("%s: %w", d.Table, ErrNoIdentity)
	}
	v.FieldByIndex(d.PK.Index).SetInt(id)
	return id, nil
}

// BulkInsert persists a batch all-or-nothing under one transaction. Inside
// an ambient transaction it joins that scope instead of opening its own.
func BulkInsert[T Entity](ctx context.Context, ex *Executor, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	return ex.WithTransaction(ctx, func(ctx context.Context) error {
		for _, e := range entities {
			if _, err := Insert(ctx, ex, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update persists every mutable column of the entity, guarded by the
// optimistic concurrency check: the row's UpdatedAt must still equal
// expectedUpdatedAt (nil matches never-updated rows). Zero rows affected
// means the row changed or vanished since it was read - ErrStaleUpdate.
// On success the entity carries its new UpdatedAt/UpdatedBy stamps.
func Update[T Entity](ctx context.Context, ex *Executor, entity *T, expectedUpdatedAt *time.Time) error {
	d, err := descriptorOf[T]()
	if err != nil {
		return err
	}

	v := reflect.ValueOf(entity).Elem()
	now := time.Now().UTC()
	if d.updatedAt != nil {
		setTimeField(v.FieldByIndex(d.updatedAt), now)
	}
	if d.updatedBy != nil {
		setActorField(v.FieldByIndex(d.updatedBy), ex.audit.CurrentActorID(ctx))
	}

	expected := bindValue(expectedUpdatedAt)
	args := fieldArgs(v, updateColumns(d))
	args = append(args, bindValue(v.FieldByIndex(d.PK.Index).Interface()), expected, expected)

	res, err := ex.conn(ctx).ExecContext(ctx, d.updateSQL, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", d.Table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", d.Table, err)
	}
	if affected == 0 {
		ex.log.Infow("optimistic concurrency check rejected update",
			"table", d.Table, "id", v.FieldByIndex(d.PK.Index).Interface())
		return fmt.Errorf("%s: %w", d.Table, ErrStaleUpdate)
	}
	return nil
}

// Execute runs a raw mutating statement and returns the affected row count.
func (ex *Executor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	bound := make([]any, len(args))
	for i, a := range args {
		bound[i] = bindValue(a)
	}
	res, err := ex.conn(ctx).ExecContext(ctx, query, bound...)
	if err != nil {
		return 0, fmt.Errorf("execute failed: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// NAMED STATEMENTS
// =============================================================================

// RegisterStatement registers a mutating statement under a name at startup,
// the local equivalent of a server-side stored procedure.
func (ex *Executor) RegisterStatement(name, query string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.statements[name] = query
}

// ExecuteNamed runs a registered statement and returns the affected rows.
func (ex *Executor) ExecuteNamed(ctx context.Context, name string, args ...any) (int64, error) {
	ex.mu.RLock()
	query, ok := ex.statements[name]
	ex.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrStatementNotRegistered)
	}
	return ex.Execute(ctx, query, args...)
}
