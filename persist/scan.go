/*
scan.go - Reflection-driven row scanning and parameter binding

PURPOSE:
  Maps query result columns onto entity struct fields by column name, and
  converts Go values to their stored encodings when binding parameters.

TIME ENCODING:
  Time columns are stored as fixed-width UTC text (TimeFormat). The width
  matters: trailing-zero padding keeps lexicographic order equal to
  chronological order, so expiry comparisons and the optimistic-concurrency
  equality check both work on the raw column text.

OTHER TYPES:
  decimal.Decimal implements driver.Valuer/sql.Scanner and passes straight
  through database/sql. Nullable scalars are plain pointer fields.
*/
package persist

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// TimeFormat is the stored encoding for all time columns: RFC 3339 with
// nanosecond padding, always UTC. Fixed width so string comparison in SQL
// matches chronological comparison.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// bindValue converts a Go value to its stored encoding.
func bindValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(TimeFormat)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(TimeFormat)
	}
	return v
}

var timeType = reflect.TypeOf(time.Time{})

// destFor returns the scan destination for one struct field.
func destFor(field reflect.Value) any {
	t := field.Type()
	if t == timeType || (t.Kind() == reflect.Pointer && t.Elem() == timeType) {
		return &timeScanner{dst: field}
	}
	return field.Addr().Interface()
}

// timeScanner parses stored time text back into time.Time / *time.Time.
type timeScanner struct {
	dst reflect.Value
}

func (s *timeScanner) Scan(src any) error {
	ptr := s.dst.Kind() == reflect.Pointer

	switch v := src.(type) {
	case nil:
		if ptr {
			s.dst.Set(reflect.Zero(s.dst.Type()))
			return nil
		}
		s.dst.Set(reflect.ValueOf(time.Time{}))
		return nil
	case time.Time:
		setTimeField(s.dst, v.UTC())
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into time field", src)
}

func (s *timeScanner) parse(raw string) error {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("invalid stored time %q: %w", raw, err)
	}
	setTimeField(s.dst, t.UTC())
	return nil
}

// collectRows scans every row into a fresh T, matching result columns to
// descriptor columns by name. Unknown result columns are discarded, which
// lets raw SQL select computed values alongside entity columns.
func collectRows[T Entity](rows *sql.Rows) ([]T, error) {
	defer rows.Close()

	d, err := descriptorOf[T]()
	if err != nil {
		return nil, err
	}

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	byName := make(map[string][]int, len(d.Columns)+1)
	byName[strings.ToLower(d.PK.Name)] = d.PK.Index
	for _, c := range d.Columns {
		byName[strings.ToLower(c.Name)] = c.Index
	}

	var out []T
	for rows.Next() {
		var item T
		v := reflect.ValueOf(&item).Elem()

		dests := make([]any, len(names))
		for i, name := range names {
			if index, ok := byName[strings.ToLower(name)]; ok {
				dests[i] = destFor(v.FieldByIndex(index))
			} else {
				dests[i] = new(any)
			}
		}

		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", d.Table, err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// fieldArgs collects bound parameter values for the given columns.
func fieldArgs(entity reflect.Value, cols []Column) []any {
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = bindValue(entity.FieldByIndex(c.Index).Interface())
	}
	return args
}
