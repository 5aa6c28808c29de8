// Package transformer holds the pooled row container that carries parsed
// records from the CSV reader goroutine to the table collector.
package transformer

import "sync"

// Row is a pooled positional record aligned to the header of its source.
//
// Ownership:
//   - Exactly one goroutine owns a Row at a time; sending it on a channel
//     transfers ownership.
//   - The final consumer calls Free once it no longer references r.V.
//   - Cancellation paths call Drop instead, so a Row a slow consumer may still
//     be reading is never handed out again by the pool.
type Row struct {
	V    []any
	Line int // 1-based physical record number in the source, header included
}

var rowPool sync.Pool

// GetRow returns a Row with len(V) == colCount and every value nil.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Detach copies the values out of r so the caller can Free r and keep the
// copy.
func (r *Row) Detach() []any {
	return append([]any(nil), r.V...)
}

// Free returns the Row to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop releases the Row without pooling it.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}
