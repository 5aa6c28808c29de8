package storage

import (
	"fmt"
	"strings"

	"trafficstops/internal/table"
)

// ColumnSpec is one destination column. Backends map Kind to a native type.
type ColumnSpec struct {
	Name string
	Kind table.Kind
}

// TableSpec describes the destination table.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// NewTableSpec pairs column names with their kinds.
func NewTableSpec(name string, columns []string, kinds []table.Kind) (TableSpec, error) {
	if strings.TrimSpace(name) == "" {
		return TableSpec{}, fmt.Errorf("table name is empty")
	}
	if len(columns) != len(kinds) {
		return TableSpec{}, fmt.Errorf("table %s: %d columns but %d kinds", name, len(columns), len(kinds))
	}
	spec := TableSpec{Name: name, Columns: make([]ColumnSpec, len(columns))}
	for i, c := range columns {
		spec.Columns[i] = ColumnSpec{Name: c, Kind: kinds[i]}
	}
	return spec, nil
}

// ColumnNames returns the spec's column names in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// SplitQualifiedName splits "schema.table" into its parts. Names without
// exactly one dot are returned as an unqualified table.
func SplitQualifiedName(name string) (schema, tbl string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
