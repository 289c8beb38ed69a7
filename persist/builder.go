/*
builder.go - SQL statement construction from entity descriptors

PURPOSE:
  Produces INSERT/UPDATE/SELECT statement text for a descriptor. Statements
  for fixed shapes (insert, update, select-by-id) are prebuilt once when the
  descriptor is cached; condition-driven shapes are built per call.

QUOTING:
  Every identifier is bracket-quoted ([Products], [UpdatedAt]) so reserved
  words never collide. SQLite accepts bracket quoting natively.

IDENTITY:
  Autoincrement inserts append RETURNING on the primary key; the executor
  reads the generated id from the same round trip. Natural keys are included
  in the column list and nothing is returned.

CONCURRENCY PREDICATE:
  UPDATE carries the optimistic check in its WHERE clause:

    WHERE [Id] = ? AND ([UpdatedAt] = ? OR (? IS NULL AND [UpdatedAt] IS NULL))

  The NULL arm covers rows that have never been updated.
*/
package persist

import "strings"

func quoteIdent(name string) string {
	return "[" + name + "]"
}

func selectColumns(d *Descriptor) string {
	parts := make([]string, 0, len(d.Columns)+1)
	parts = append(parts, quoteIdent(d.PK.Name))
	for _, c := range d.Columns {
		parts = append(parts, quoteIdent(c.Name))
	}
	return strings.Join(parts, ", ")
}

func buildInsert(d *Descriptor) string {
	cols := insertColumns(d)

	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteIdent(d.Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(marks, ", "))
	b.WriteString(")")
	if d.AutoPK {
		b.WriteString(" RETURNING ")
		b.WriteString(quoteIdent(d.PK.Name))
	}
	return b.String()
}

// insertColumns is the bound column list for INSERT: every column for
// natural keys, every non-pk column for autoincrement keys.
func insertColumns(d *Descriptor) []Column {
	if d.AutoPK {
		return d.Columns
	}
	cols := make([]Column, 0, len(d.Columns)+1)
	cols = append(cols, d.PK)
	return append(cols, d.Columns...)
}

func buildUpdate(d *Descriptor) string {
	sets := make([]string, 0, len(d.Columns))
	for _, c := range updateColumns(d) {
		sets = append(sets, quoteIdent(c.Name)+" = ?")
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(quoteIdent(d.Table))
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	b.WriteString(" WHERE ")
	b.WriteString(quoteIdent(d.PK.Name))
	b.WriteString(" = ? AND (")
	b.WriteString(quoteIdent("UpdatedAt"))
	b.WriteString(" = ? OR (? IS NULL AND ")
	b.WriteString(quoteIdent("UpdatedAt"))
	b.WriteString(" IS NULL))")
	return b.String()
}

// updateColumns is the SET list for UPDATE: non-pk columns minus the
// set-once audit pair.
func updateColumns(d *Descriptor) []Column {
	cols := make([]Column, 0, len(d.Columns))
	for _, c := range d.Columns {
		if setOnce(c.Name) {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func buildSelectByID(d *Descriptor) string {
	return "SELECT " + selectColumns(d) + " FROM " + quoteIdent(d.Table) +
		" WHERE " + quoteIdent(d.PK.Name) + " = ?"
}

func buildSelectWhere(d *Descriptor, fields []string) string {
	preds := make([]string, len(fields))
	for i, f := range fields {
		preds[i] = quoteIdent(f) + " = ?"
	}
	return "SELECT " + selectColumns(d) + " FROM " + quoteIdent(d.Table) +
		" WHERE " + strings.Join(preds, " AND ")
}

func buildSelectWhereIn(d *Descriptor, field string, n int) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	return "SELECT " + selectColumns(d) + " FROM " + quoteIdent(d.Table) +
		" WHERE " + quoteIdent(field) + " IN (" + marks + ")"
}

func buildExists(d *Descriptor, field string) string {
	return "SELECT EXISTS(SELECT 1 FROM " + quoteIdent(d.Table) +
		" WHERE " + quoteIdent(field) + " = ?)"
}

func buildCount(baseQuery string) string {
	return "SELECT COUNT(*) FROM (" + baseQuery + ")"
}

func buildPage(baseQuery string) string {
	return baseQuery + " LIMIT ? OFFSET ?"
}
