/*
schema.go - Reflection-driven entity metadata

PURPOSE:
  Inspects an entity struct once and extracts its table name, column list,
  and primary-key column. The result is cached for the process lifetime.

ENTITY CONVENTION:
  A persistable type implements TableName() and tags its fields:

    type Product struct {
        ID    int64           `db:"Id,pk"`
        Name  string          `db:"Name"`
        Price decimal.Decimal `db:"Price"`
        Audit                 // embedded, flattened
    }
    func (Product) TableName() string { return "Products" }

  Untagged fields and fields tagged `db:"-"` are skipped. Anonymous embedded
  structs are flattened so entities can share an Audit block.

PRIMARY KEYS:
  The pk tag option marks the key. Integer keys are treated as autoincrement
  surrogates unless the `natural` option is present; autoincrement keys are
  excluded from the INSERT column list and read back via RETURNING.

AUDIT COLUMNS:
  CreatedAt/CreatedBy/UpdatedAt/UpdatedBy columns are recognized by name so
  the executor can stamp them from the AuditContext on every write.

CONCURRENCY:
  Descriptors are immutable after first build and shared across goroutines
  without locking. The cache uses compute-once semantics; a racing duplicate
  build produces an identical descriptor and is harmless.

SEE ALSO:
  - builder.go: Turns descriptors into SQL text
  - executor.go: The public CRUD surface built on both
*/
package persist

import (
	"reflect"
	"strings"
	"sync"
	"time"
)

// Entity is the contract between domain models and the persistence core.
type Entity interface {
	TableName() string
}

// Column maps one database column to a struct field.
type Column struct {
	Name  string
	Index []int // reflect field index path, supports embedded structs
}

// Descriptor is the reflected metadata for one entity type.
// Immutable after build.
type Descriptor struct {
	Table   string
	PK      Column
	AutoPK  bool
	Columns []Column // non-pk columns, in declaration order

	// Prebuilt statement text, see builder.go.
	insertSQL     string
	updateSQL     string
	selectByIDSQL string
	selectList    string

	// Audit field index paths, nil when the entity has no such column.
	createdAt []int
	createdBy []int
	updatedAt []int
	updatedBy []int
}

var descriptors sync.Map // reflect.Type -> *Descriptor

// Describe returns the cached descriptor for t, building it on first use.
// Safe for concurrent first use: losers of the build race adopt the winner's
// descriptor.
func Describe(t reflect.Type) (*Descriptor, error) {
	if cached, ok := descriptors.Load(t); ok {
		return cached.(*Descriptor), nil
	}

	d, err := buildDescriptor(t)
	if err != nil {
		return nil, err
	}

	actual, _ := descriptors.LoadOrStore(t, d)
	return actual.(*Descriptor), nil
}

// MustDescribe is Describe for startup self-registration checks. A schema
// defect is a programmer error, so it panics rather than returning it.
func MustDescribe(t reflect.Type) *Descriptor {
	d, err := Describe(t)
	if err != nil {
		panic(err)
	}
	return d
}

func descriptorOf[T Entity]() (*Descriptor, error) {
	return Describe(reflect.TypeOf((*T)(nil)).Elem())
}

func buildDescriptor(t reflect.Type) (*Descriptor, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &SchemaError{Type: t.String(), Reason: "entity must be a struct"}
	}

	entity, ok := reflect.New(t).Elem().Interface().(Entity)
	if !ok {
		return nil, &SchemaError{Type: t.String(), Reason: "entity must implement TableName()"}
	}
	table := entity.TableName()
	if table == "" {
		return nil, &SchemaError{Type: t.String(), Reason: "TableName() returned an empty name"}
	}

	d := &Descriptor{Table: table}
	if err := collectColumns(t, nil, d); err != nil {
		return nil, err
	}
	if d.PK.Name == "" {
		return nil, &SchemaError{Type: t.String(), Reason: "no primary key column (tag a field `db:\"...,pk\"`)"}
	}

	d.insertSQL = buildInsert(d)
	d.updateSQL = buildUpdate(d)
	d.selectByIDSQL = buildSelectByID(d)
	d.selectList = selectColumns(d)
	return d, nil
}

func collectColumns(t reflect.Type, prefix []int, d *Descriptor) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("db") == "" {
			if err := collectColumns(f.Type, index, d); err != nil {
				return err
			}
			continue
		}

		tag := f.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		if !f.IsExported() {
			return &SchemaError{Type: t.String(), Reason: "tagged field " + f.Name + " is unexported"}
		}

		parts := strings.Split(tag, ",")
		col := Column{Name: parts[0], Index: index}
		if col.Name == "" {
			col.Name = f.Name
		}

		pk, natural := false, false
		for _, opt := range parts[1:] {
			switch opt {
			case "pk":
				pk = true
			case "natural":
				natural = true
			}
		}

		if pk {
			if d.PK.Name != "" {
				return &SchemaError{Type: t.String(), Reason: "multiple primary key columns"}
			}
			d.PK = col
			d.AutoPK = isIntegerKind(f.Type.Kind()) && !natural
			continue
		}

		switch col.Name {
		case "CreatedAt":
			d.createdAt = index
		case "CreatedBy":
			d.createdBy = index
		case "UpdatedAt":
			d.updatedAt = index
		case "UpdatedBy":
			d.updatedBy = index
		}
		d.Columns = append(d.Columns, col)
	}
	return nil
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// column resolves a caller-supplied field name to a column, case-insensitively.
func (d *Descriptor) column(name string) (Column, bool) {
	if strings.EqualFold(name, d.PK.Name) {
		return d.PK, true
	}
	for _, c := range d.Columns {
		if strings.EqualFold(name, c.Name) {
			return c, true
		}
	}
	return Column{}, false
}

// setOnce reports whether a column is written on insert only.
func setOnce(name string) bool {
	return name == "CreatedAt" || name == "CreatedBy"
}

// setTimeField assigns now to a time.Time or *time.Time field.
func setTimeField(field reflect.Value, now time.Time) {
	if field.Kind() == reflect.Pointer {
		field.Set(reflect.ValueOf(&now))
		return
	}
	field.Set(reflect.ValueOf(now))
}

// setActorField assigns the actor to a *int64 field. A nil actor is a
// legitimate system value and clears the field.
func setActorField(field reflect.Value, actor *int64) {
	if actor == nil {
		field.Set(reflect.Zero(field.Type()))
		return
	}
	field.Set(reflect.ValueOf(actor))
}
