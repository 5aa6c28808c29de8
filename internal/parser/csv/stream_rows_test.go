package csv

import (
	"context"
	"io"
	"reflect"
	"strings"
	"testing"

	"trafficstops/internal/config"
	"trafficstops/internal/table"
	"trafficstops/internal/transformer"
)

func src(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }

func TestReadTable_BasicShape(t *testing.T) {
	in := "\uFEFFstop_id, stop_cause ,subject_age\n" +
		"1,Moving Violation,30\n" +
		"2,,abc\n" +
		"3\n"

	tb, err := ReadTable(context.Background(), src(in), config.Options{}, 2)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if got := tb.Columns(); !reflect.DeepEqual(got, []string{"stop_id", "stop_cause", "subject_age"}) {
		t.Fatalf("columns=%v", got)
	}
	if tb.Len() != 3 {
		t.Fatalf("rows=%d, want 3", tb.Len())
	}
	cause, _ := tb.Column("stop_cause")
	if !reflect.DeepEqual(cause, table.Column{"Moving Violation", nil, nil}) {
		t.Fatalf("stop_cause=%#v", cause)
	}
	age, _ := tb.Column("subject_age")
	if !reflect.DeepEqual(age, table.Column{"30", "abc", nil}) {
		t.Fatalf("subject_age=%#v", age)
	}
}

func TestReadTable_PreservesValueBytesByDefault(t *testing.T) {
	in := "note\n\"  padded  \"\n"
	tb, err := ReadTable(context.Background(), src(in), config.Options{}, 0)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	note, _ := tb.Column("note")
	if note[0] != "  padded  " {
		t.Fatalf("note=%q", note[0])
	}

	tb, err = ReadTable(context.Background(), src(in), config.Options{"trim_space": true}, 0)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	note, _ = tb.Column("note")
	if note[0] != "padded" {
		t.Fatalf("trimmed note=%q", note[0])
	}
}

func TestReadTable_OptionsAndHeaderHygiene(t *testing.T) {
	in := "Stop ID;;x;x\n1;a;b;c\n"
	opt := config.Options{
		"comma":      ";",
		"header_map": map[string]any{"Stop ID": "stop_id"},
	}
	tb, err := ReadTable(context.Background(), src(in), opt, 0)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	want := []string{"stop_id", "column_1", "x", "x.1"}
	if got := tb.Columns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("columns=%v, want %v", got, want)
	}
}

func TestReadTable_FatalErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "too_many_fields", in: "a,b\n1,2,3\n"},
		{name: "bad_quote", in: "a\n\"unterminated\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ReadTable(context.Background(), src(tc.in), config.Options{}, 0); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestStreamCSVRows_HeaderBeforeRowsAndLineNumbers(t *testing.T) {
	out := make(chan *transformer.Row, 4)
	var header []string
	err := StreamCSVRows(context.Background(), src("a,b\n1,2\n3,4\n"), nil, func(c []string) {
		if len(out) != 0 {
			t.Fatalf("header reported after rows")
		}
		header = c
	}, out)
	close(out)
	if err != nil {
		t.Fatalf("StreamCSVRows: %v", err)
	}
	if !reflect.DeepEqual(header, []string{"a", "b"}) {
		t.Fatalf("header=%v", header)
	}
	var lines []int
	for r := range out {
		lines = append(lines, r.Line)
		r.Free()
	}
	if !reflect.DeepEqual(lines, []int{2, 3}) {
		t.Fatalf("lines=%v", lines)
	}
}

func TestStreamCSVRows_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan *transformer.Row)
	err := StreamCSVRows(ctx, src("a\n1\n"), nil, nil, out)
	if err != context.Canceled {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}
