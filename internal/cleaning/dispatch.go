package cleaning

import (
	"context"
	"fmt"
	"sync"

	"trafficstops/internal/table"
)

// IDColumn is the derived row identifier inserted as the first output column.
const IDColumn = "id"

// DroppedColumns are raw columns superseded by the cleaned timestamp.
var DroppedColumns = []string{"stop_date", "stop_time"}

// ColumnReport summarizes what a rule did to one column.
type ColumnReport struct {
	Column string
	// Missing counts values that were already nil on input.
	Missing int
	// Nulled counts non-nil input values the rule turned into nil.
	Nulled int
}

// Report summarizes a Clean call. Columns follow the input column order and
// only include columns a rule ran on.
type Report struct {
	Rows    int
	Columns []ColumnReport
}

// Dispatcher applies registry rules to a table and assembles the output.
type Dispatcher struct {
	Registry Registry

	// Workers bounds how many columns are cleaned concurrently.
	// Values <= 1 clean sequentially.
	Workers int
}

// NewDispatcher returns a dispatcher over the default registry.
func NewDispatcher(workers int) *Dispatcher {
	return &Dispatcher{Registry: NewRegistry(), Workers: workers}
}

type job struct {
	slot   int
	column string
	rule   Rule
}

// Clean returns a new table where:
//   - every column with a registered rule holds the rule's output, in place
//   - IDColumn (0..n-1) is the first column, replacing any input column of that name
//   - DroppedColumns are removed
//
// All other columns and the row order are unchanged. The input table is not
// modified. Errors are limited to context cancellation and rules that break
// the length contract.
func (d *Dispatcher) Clean(ctx context.Context, in *table.Table) (*table.Table, Report, error) {
	reg := d.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	var jobs []job
	for _, c := range in.Columns() {
		if c == IDColumn || isDropped(c) {
			continue
		}
		if e, ok := reg.Lookup(c); ok {
			jobs = append(jobs, job{slot: len(jobs), column: c, rule: e.Rule})
		}
	}

	results := make([]table.Column, len(jobs))
	reports := make([]ColumnReport, len(jobs))
	if err := d.run(ctx, in, jobs, results, reports); err != nil {
		return nil, Report{}, err
	}

	out := in
	for _, j := range jobs {
		next, err := out.Replace(j.column, results[j.slot])
		if err != nil {
			return nil, Report{}, fmt.Errorf("clean %s: %w", j.column, err)
		}
		out = next
	}

	out, err := out.Drop(DroppedColumns...).Prepend(IDColumn, rowIDs(in.Len()))
	if err != nil {
		return nil, Report{}, err
	}
	return out, Report{Rows: in.Len(), Columns: reports}, nil
}

// run evaluates jobs, in parallel when Workers > 1. Each job writes only its
// own slot, so no locking is needed on results.
func (d *Dispatcher) run(ctx context.Context, in *table.Table, jobs []job, results []table.Column, reports []ColumnReport) error {
	workers := d.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers <= 1 {
		for _, j := range jobs {
			if err := ctx.Err(); err != nil {
				return err
			}
			apply(in, j, results, reports)
		}
		return nil
	}

	jobCh := make(chan job)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobCh {
				apply(in, j, results, reports)
			}
		}()
	}

	var err error
feed:
	for _, j := range jobs {
		select {
		case jobCh <- j:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobCh)
	wg.Wait()
	return err
}

func apply(in *table.Table, j job, results []table.Column, reports []ColumnReport) {
	raw, _ := in.Column(j.column)
	cleaned := j.rule(raw)
	results[j.slot] = cleaned
	reports[j.slot] = summarize(j.column, raw, cleaned)
}

func summarize(column string, raw, cleaned table.Column) ColumnReport {
	rep := ColumnReport{Column: column}
	for i, v := range raw {
		if v == nil {
			rep.Missing++
			continue
		}
		if i < len(cleaned) && cleaned[i] == nil {
			rep.Nulled++
		}
	}
	return rep
}

func rowIDs(n int) table.Column {
	ids := make(table.Column, n)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids
}

func isDropped(c string) bool {
	for _, d := range DroppedColumns {
		if c == d {
			return true
		}
	}
	return false
}
