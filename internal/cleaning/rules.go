// Package cleaning holds the per-column cleaning rules for the vehicle stops
// dataset and the dispatcher that applies them to a table.
//
// Every rule is a pure function from a raw column to a cleaned column of the
// same length. Rules never fail: a value they cannot normalize becomes nil,
// the pipeline-wide missing marker.
//
// Rounding convention: subject_age uses math.RoundToEven, so ties go to the
// even multiple (12.5 -> 10, 17.5 -> 20).
package cleaning

import (
	"math"
	"strings"
	"time"

	"trafficstops/internal/table"
	"trafficstops/internal/transformer/builtin"
)

// Rule cleans one column. Implementations must return a column of the same
// length and must not modify their input.
type Rule func(in table.Column) table.Column

// TimestampInterval is the bucket width timestamps are rounded up to.
const TimestampInterval = 5 * time.Minute

// Age outlier bounds. The predicate is (age >= AgeLowerBound) OR
// (age < AgeUpperBound), which admits every finite age.
const (
	AgeLowerBound = 15
	AgeUpperBound = 100
	ageBucket     = 5
)

// Stop causes kept by CleanStopCause.
const (
	StopCauseMoving    = "Moving Violation"
	StopCauseEquipment = "Equipment Violation"
)

const unknownServiceArea = "Unknown"

// CleanTimestamp parses each value to an instant and rounds it strictly
// forward to the next TimestampInterval boundary:
//
//	(floor(ns / interval) + 1) * interval
//
// A value already on a boundary moves to the next one. Instants at or before
// the Unix epoch, instants whose rounded value does not fit in int64
// nanoseconds (after 2262-04-11 23:42:16 UTC) and unparseable values become
// nil.
func CleanTimestamp(in table.Column) table.Column {
	const interval = int64(TimestampInterval)
	out := make(table.Column, len(in))
	for i, v := range in {
		ts, ok := builtin.ParseTimestamp(v)
		if !ok {
			continue
		}
		// UnixNano is undefined outside the int64 range; check bounds first.
		if !ts.After(epoch) || ts.After(lastRoundable) {
			continue
		}
		ns := ts.UnixNano()
		out[i] = time.Unix(0, (ns/interval+1)*interval).UTC()
	}
	return out
}

var (
	epoch = time.Unix(0, 0)
	// lastRoundable is the latest instant that can move forward one interval
	// without leaving the int64 nanosecond range.
	lastRoundable = time.Unix(0, math.MaxInt64-int64(TimestampInterval))
)

// CleanStopCause keeps only moving and equipment violations.
func CleanStopCause(in table.Column) table.Column {
	out := make(table.Column, len(in))
	for i, v := range in {
		s, ok := builtin.AsString(v)
		if !ok {
			continue
		}
		if s == StopCauseMoving || s == StopCauseEquipment {
			out[i] = s
		}
	}
	return out
}

// CleanServiceArea replaces the literal "Unknown" with nil.
func CleanServiceArea(in table.Column) table.Column {
	out := make(table.Column, len(in))
	for i, v := range in {
		if s, ok := builtin.AsString(v); ok && s == unknownServiceArea {
			continue
		}
		out[i] = v
	}
	return out
}

// CleanSubjectAge coerces ages to numbers, applies the outlier predicate and
// rounds to the nearest multiple of five (half-to-even). Results are int64;
// ages whose rounded value does not fit in int64 become nil.
func CleanSubjectAge(in table.Column) table.Column {
	out := make(table.Column, len(in))
	for i, v := range in {
		age, ok := builtin.ToFloat(v)
		if !ok {
			continue
		}
		if !(age >= AgeLowerBound || age < AgeUpperBound) {
			continue
		}
		if r, ok := roundToBucket(age); ok {
			out[i] = r
		}
	}
	return out
}

// roundToBucket rounds v to a multiple of ageBucket. ok is false when the
// result lies outside [MinInt64, MaxInt64].
func roundToBucket(v float64) (int64, bool) {
	r := math.RoundToEven(v/ageBucket) * ageBucket
	// float64(math.MaxInt64) is 2^63, one past the largest int64.
	if r >= math.MaxInt64 || r < math.MinInt64 {
		return 0, false
	}
	return int64(r), true
}

// CleanSubjectSex maps M to 1 and F to 0, case-insensitively. Anything that is
// not exactly one of those letters becomes nil.
func CleanSubjectSex(in table.Column) table.Column {
	out := make(table.Column, len(in))
	for i, v := range in {
		s, ok := builtin.AsString(v)
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(s, "M"):
			out[i] = int64(1)
		case strings.EqualFold(s, "F"):
			out[i] = int64(0)
		}
	}
	return out
}

// YesNo returns the rule for a Y/N flag column. Y maps to 1 and N to 0,
// matched against the whole value, case-insensitively; anything else is nil.
//
// Every yes/no column shares the same mapping. The column name is not
// consulted; it is the registry key the rule is bound to (see NewRegistry).
func YesNo(string) Rule {
	return cleanYesNo
}

func cleanYesNo(in table.Column) table.Column {
	out := make(table.Column, len(in))
	for i, v := range in {
		s, ok := builtin.AsString(v)
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(s, "Y"):
			out[i] = int64(1)
		case strings.EqualFold(s, "N"):
			out[i] = int64(0)
		}
	}
	return out
}
