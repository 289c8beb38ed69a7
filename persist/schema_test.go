package persist

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST ENTITIES
// =============================================================================

type stamped struct {
	CreatedAt time.Time  `db:"CreatedAt"`
	CreatedBy *int64     `db:"CreatedBy"`
	UpdatedAt *time.Time `db:"UpdatedAt"`
	UpdatedBy *int64     `db:"UpdatedBy"`
}

type widget struct {
	ID   int64  `db:"Id,pk"`
	Name string `db:"Name"`
	skip string // untagged, invisible to the mapper
	stamped
}

func (widget) TableName() string { return "Widgets" }

type setting struct {
	Key   string `db:"Key,pk,natural"`
	Value string `db:"Value"`
}

func (setting) TableName() string { return "Settings" }

type noKey struct {
	Name string `db:"Name"`
}

func (noKey) TableName() string { return "NoKeys" }

type noTable struct {
	ID int64 `db:"Id,pk"`
}

func (noTable) TableName() string { return "" }

// =============================================================================
// DESCRIPTOR TESTS
// =============================================================================

func TestDescribe_Widget(t *testing.T) {
	d, err := Describe(reflect.TypeOf(widget{}))
	require.NoError(t, err)

	assert.Equal(t, "Widgets", d.Table)
	assert.Equal(t, "Id", d.PK.Name)
	assert.True(t, d.AutoPK, "integer key should be autoincrement")

	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"Name", "CreatedAt", "CreatedBy", "UpdatedAt", "UpdatedBy"}, names,
		"embedded audit block should flatten, untagged fields should be skipped")

	assert.NotNil(t, d.createdAt)
	assert.NotNil(t, d.updatedBy)
}

func TestDescribe_NaturalKey(t *testing.T) {
	d, err := Describe(reflect.TypeOf(setting{}))
	require.NoError(t, err)

	assert.False(t, d.AutoPK, "natural option should opt out of autoincrement")
	assert.Equal(t, "Key", d.PK.Name)
}

func TestDescribe_SchemaErrors(t *testing.T) {
	_, err := Describe(reflect.TypeOf(noKey{}))
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Reason, "primary key")

	_, err = Describe(reflect.TypeOf(noTable{}))
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Reason, "empty name")
}

func TestDescribe_CacheReturnsSameDescriptor(t *testing.T) {
	a := MustDescribe(reflect.TypeOf(widget{}))
	b := MustDescribe(reflect.TypeOf(widget{}))
	assert.Same(t, a, b, "descriptors are built once and shared")
}

func TestDescribe_ColumnLookupIsCaseInsensitive(t *testing.T) {
	d := MustDescribe(reflect.TypeOf(widget{}))

	col, ok := d.column("name")
	require.True(t, ok)
	assert.Equal(t, "Name", col.Name)

	col, ok = d.column("ID")
	require.True(t, ok)
	assert.Equal(t, "Id", col.Name)

	_, ok = d.column("Nope")
	assert.False(t, ok)
}

// =============================================================================
// BUILDER TESTS
// =============================================================================

func TestBuildInsert_AutoKeyReturnsIdentity(t *testing.T) {
	d := MustDescribe(reflect.TypeOf(widget{}))

	assert.Equal(t,
		"INSERT INTO [Widgets] ([Name], [CreatedAt], [CreatedBy], [UpdatedAt], [UpdatedBy]) "+
			"VALUES (?, ?, ?, ?, ?) RETURNING [Id]",
		d.insertSQL)
}

func TestBuildInsert_NaturalKeyIncludesKey(t *testing.T) {
	d := MustDescribe(reflect.TypeOf(setting{}))

	assert.Equal(t, "INSERT INTO [Settings] ([Key], [Value]) VALUES (?, ?)", d.insertSQL)
}

func TestBuildUpdate_ConcurrencyPredicate(t *testing.T) {
	d := MustDescribe(reflect.TypeOf(widget{}))

	assert.Equal(t,
		"UPDATE [Widgets] SET [Name] = ?, [UpdatedAt] = ?, [UpdatedBy] = ? "+
			"WHERE [Id] = ? AND ([UpdatedAt] = ? OR (? IS NULL AND [UpdatedAt] IS NULL))",
		d.updateSQL,
		"set-once audit columns stay out of the SET list; the NULL arm matches never-updated rows")
}

func TestBuildSelects(t *testing.T) {
	d := MustDescribe(reflect.TypeOf(setting{}))

	assert.Equal(t, "SELECT [Key], [Value] FROM [Settings] WHERE [Key] = ?", d.selectByIDSQL)
	assert.Equal(t,
		"SELECT [Key], [Value] FROM [Settings] WHERE [Value] = ?",
		buildSelectWhere(d, []string{"Value"}))
	assert.Equal(t,
		"SELECT [Key], [Value] FROM [Settings] WHERE [Value] IN (?, ?, ?)",
		buildSelectWhereIn(d, "Value", 3))
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT 1)", buildCount("SELECT 1"))
}

// =============================================================================
// ENCODING TESTS
// =============================================================================

func TestTimeFormat_FixedWidthKeepsOrdering(t *testing.T) {
	// Lexicographic order on the stored text must match chronological
	// order, including sub-second values that RFC3339Nano would trim.
	early := time.Date(2026, 3, 10, 12, 0, 0, 500_000_000, time.UTC)
	late := time.Date(2026, 3, 10, 12, 0, 0, 550_000_000, time.UTC)

	a := bindValue(early).(string)
	b := bindValue(late).(string)
	assert.Less(t, a, b)

	parsed, err := time.Parse(time.RFC3339Nano, a)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(early), "round trip must be exact")
}

func TestBindValue_NilTimePointer(t *testing.T) {
	var ts *time.Time
	assert.Nil(t, bindValue(ts))
}
