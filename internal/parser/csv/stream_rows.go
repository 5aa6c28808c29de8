// Package csv streams a delimited-text source into pooled rows and collects
// them into a column-oriented table.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"trafficstops/internal/config"
	"trafficstops/internal/transformer"
	"trafficstops/internal/transformer/builtin"
)

// ErrNoHeader is returned when the source has no header record.
var ErrNoHeader = errors.New("csv: missing header")

// StreamCSVRows reads the header, reports it through onHeader, then streams
// every record as a pooled *transformer.Row aligned to that header.
//
// Options (parser.options):
//   - comma (string, default ","), lazy_quotes (bool, default false)
//   - trim_space (bool, default false): trim edge whitespace from values
//   - header_map (map): rename source headers before use
//
// Empty fields become nil. Records shorter than the header are padded with
// nil; records longer than the header are a fatal parse error, as is any
// syntax error. Header names have a UTF-8 BOM and edge whitespace removed;
// blank names become "column_<i>" and repeats get a ".<n>" suffix.
//
// On ctx cancellation in-flight rows are dropped rather than pooled, since a
// consumer may still hold them.
func StreamCSVRows(
	ctx context.Context,
	src io.ReadCloser,
	opt config.Options,
	onHeader func(columns []string),
	out chan<- *transformer.Row,
) error {
	defer src.Close()

	trim := opt.Bool("trim_space", false)
	hm := opt.StringMap("header_map")

	cr := csv.NewReader(src)
	cr.Comma = opt.Rune("comma", ',')
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	line := 0
	hdr, err := cr.Read()
	line++
	if err == io.EOF {
		return ErrNoHeader
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	columns := normalizeHeader(hdr, hm)
	if onHeader != nil {
		onHeader(columns)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := cr.Read()
		line++
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("csv read at line %d: %w", line, err)
		}
		if len(rec) > len(columns) {
			return fmt.Errorf("csv read at line %d: %d fields, header has %d", line, len(rec), len(columns))
		}

		row := transformer.GetRow(len(columns))
		row.Line = line
		for i, v := range rec {
			if trim && builtin.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				row.V[i] = v
			}
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}

func normalizeHeader(hdr []string, headerMap map[string]string) []string {
	out := make([]string, len(hdr))
	seen := make(map[string]int, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if builtin.HasEdgeSpace(h) {
			h = strings.TrimSpace(h)
		}
		if mapped, ok := headerMap[h]; ok {
			h = mapped
		}
		if h == "" {
			h = "column_" + strconv.Itoa(i)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = h + "." + strconv.Itoa(n)
		} else {
			seen[h] = 1
		}
		out[i] = h
	}
	return out
}
