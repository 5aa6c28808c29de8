package cleaning

import (
	"sort"

	"trafficstops/internal/table"
)

// Column names with a dedicated rule.
const (
	ColTimestamp   = "timestamp"
	ColStopCause   = "stop_cause"
	ColServiceArea = "service_area"
	ColSubjectAge  = "subject_age"
	ColSubjectSex  = "subject_sex"
)

// YesNoColumns are the Y/N flag columns cleaned by YesNo.
var YesNoColumns = []string{
	"sd_resident",
	"arrested",
	"searched",
	"obtained_consent",
	"contraband_found",
	"property_seized",
}

// Entry binds a rule to the kind of values it produces.
type Entry struct {
	Rule Rule
	Kind table.Kind
}

// Registry maps a column name to its cleaning entry.
type Registry map[string]Entry

// NewRegistry returns the fixed rule set for the vehicle stops dataset.
// Each call returns a fresh map, so callers may extend it for tests.
func NewRegistry() Registry {
	r := Registry{
		ColTimestamp:   {Rule: CleanTimestamp, Kind: table.KindTimestamp},
		ColStopCause:   {Rule: CleanStopCause, Kind: table.KindText},
		ColServiceArea: {Rule: CleanServiceArea, Kind: table.KindText},
		ColSubjectAge:  {Rule: CleanSubjectAge, Kind: table.KindInteger},
		ColSubjectSex:  {Rule: CleanSubjectSex, Kind: table.KindInteger},
	}
	for _, c := range YesNoColumns {
		r[c] = Entry{Rule: YesNo(c), Kind: table.KindInteger}
	}
	return r
}

// Lookup returns the entry for column, if any.
func (r Registry) Lookup(column string) (Entry, bool) {
	e, ok := r[column]
	return e, ok && e.Rule != nil
}

// Names returns the registered column names in sorted order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Kinds returns the value kind of each named column of a cleaned table.
// The derived id column is an integer; unregistered columns are text.
func (r Registry) Kinds(columns []string) []table.Kind {
	out := make([]table.Kind, len(columns))
	for i, c := range columns {
		if c == IDColumn {
			out[i] = table.KindInteger
			continue
		}
		if e, ok := r.Lookup(c); ok {
			out[i] = e.Kind
		}
	}
	return out
}
