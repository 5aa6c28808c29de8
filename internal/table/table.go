// Package table holds the in-memory, column-oriented record table that flows
// from the CSV parser through the cleaning rules into the sinks.
//
// Values are untyped (any). A nil value is the missing marker everywhere in
// the pipeline: parsers emit nil for empty fields, rules emit nil for values
// they reject, and sinks write nil as an empty CSV field or SQL NULL.
package table

import (
	"fmt"
)

// Column is an ordered sequence of values, one per row.
type Column []any

// Table is an ordered set of equally long named columns.
//
// Tables are treated as immutable by the pipeline: operations that change
// the column set return a new Table that shares the untouched columns.
type Table struct {
	names []string
	cols  map[string]Column
	rows  int
}

// New builds a table from column names and their columns.
//
// Errors:
//   - names and cols differ in length
//   - a column name is empty or duplicated
//   - columns differ in length
func New(names []string, cols []Column) (*Table, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("table: %d names for %d columns", len(names), len(cols))
	}
	t := &Table{
		names: make([]string, 0, len(names)),
		cols:  make(map[string]Column, len(names)),
	}
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("table: column %d has an empty name", i)
		}
		if _, dup := t.cols[n]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", n)
		}
		if i == 0 {
			t.rows = len(cols[i])
		} else if len(cols[i]) != t.rows {
			return nil, fmt.Errorf("table: column %q has %d rows, want %d", n, len(cols[i]), t.rows)
		}
		t.names = append(t.names, n)
		t.cols[n] = cols[i]
	}
	return t, nil
}

// FromRows builds a table from row-major values aligned to names.
// Short rows are padded with nil; rows longer than names are an error.
func FromRows(names []string, rows [][]any) (*Table, error) {
	cols := make([]Column, len(names))
	for i := range cols {
		cols[i] = make(Column, len(rows))
	}
	for r, row := range rows {
		if len(row) > len(names) {
			return nil, fmt.Errorf("table: row %d has %d values, want at most %d", r, len(row), len(names))
		}
		for c, v := range row {
			cols[c][r] = v
		}
	}
	return New(names, cols)
}

// Len returns the row count.
func (t *Table) Len() int { return t.rows }

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.names...)
}

// Has reports whether the table contains the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Column returns the named column. The returned slice must not be modified.
func (t *Table) Column(name string) (Column, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// Row copies row i into dst (grown as needed) in column order and returns it.
func (t *Table) Row(i int, dst []any) []any {
	dst = dst[:0]
	for _, n := range t.names {
		dst = append(dst, t.cols[n][i])
	}
	return dst
}

// Replace returns a table where the named column holds col.
// The column keeps its position.
func (t *Table) Replace(name string, col Column) (*Table, error) {
	if _, ok := t.cols[name]; !ok {
		return nil, fmt.Errorf("table: replace unknown column %q", name)
	}
	if len(col) != t.rows {
		return nil, fmt.Errorf("table: replace %q with %d rows, want %d", name, len(col), t.rows)
	}
	out := t.clone()
	out.cols[name] = col
	return out, nil
}

// Prepend returns a table with col inserted as the first column. An existing
// column of the same name is removed first.
func (t *Table) Prepend(name string, col Column) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("table: prepend with empty name")
	}
	if len(col) != t.rows && len(t.names) > 0 {
		return nil, fmt.Errorf("table: prepend %q with %d rows, want %d", name, len(col), t.rows)
	}
	out := t.Drop(name)
	out.names = append([]string{name}, out.names...)
	out.cols[name] = col
	out.rows = len(col)
	return out, nil
}

// Drop returns a table without the named columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) *Table {
	out := t.clone()
	if len(names) == 0 {
		return out
	}
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
		delete(out.cols, n)
	}
	kept := out.names[:0]
	for _, n := range out.names {
		if _, ok := drop[n]; !ok {
			kept = append(kept, n)
		}
	}
	out.names = kept
	return out
}

func (t *Table) clone() *Table {
	out := &Table{
		names: append([]string(nil), t.names...),
		cols:  make(map[string]Column, len(t.cols)),
		rows:  t.rows,
	}
	for k, v := range t.cols {
		out.cols[k] = v
	}
	return out
}
