package csv

import (
	"context"
	"io"

	"trafficstops/internal/config"
	"trafficstops/internal/table"
	"trafficstops/internal/transformer"
)

// ReadTable parses src into a table. The reader runs in its own goroutine and
// hands pooled rows to the collector over a channel of size buffer.
//
// Any parse error is fatal and no table is returned.
func ReadTable(ctx context.Context, src io.ReadCloser, opt config.Options, buffer int) (*table.Table, error) {
	if buffer <= 0 {
		buffer = config.DefaultBuffer
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh := make(chan *transformer.Row, buffer)
	var columns []string
	headerSeen := make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		defer close(rowCh)
		errCh <- StreamCSVRows(ctx, src, opt, func(cols []string) {
			columns = cols
			close(headerSeen)
		}, rowCh)
	}()

	var rows [][]any
	for r := range rowCh {
		rows = append(rows, r.Detach())
		r.Free()
	}

	if err := <-errCh; err != nil {
		return nil, err
	}

	// The header callback runs before the first row is sent and before the
	// reader returns, so columns is set whenever err is nil.
	<-headerSeen
	return table.FromRows(columns, rows)
}
