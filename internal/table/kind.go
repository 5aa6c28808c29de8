package table

// Kind is the logical type of a column's non-nil values. Sinks with typed
// storage use it to pick column types.
type Kind int

const (
	// KindText columns hold strings. Unknown columns default to text.
	KindText Kind = iota
	// KindInteger columns hold int64 values.
	KindInteger
	// KindTimestamp columns hold time.Time values in UTC.
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}
