package builtin

import (
	"math"
	"testing"
	"time"
)

func TestHasEdgeSpace(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"a":     false,
		" a":    true,
		"a\t":   true,
		"a b":   false,
		"\tab ": true,
	}
	for in, want := range cases {
		if got := HasEdgeSpace(in); got != want {
			t.Fatalf("HasEdgeSpace(%q)=%v, want %v", in, got, want)
		}
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{in: "30", want: 30, wantOK: true},
		{in: " 17.5 ", want: 17.5, wantOK: true},
		{in: []byte("4"), want: 4, wantOK: true},
		{in: int64(12), want: 12, wantOK: true},
		{in: "abc", wantOK: false},
		{in: "", wantOK: false},
		{in: nil, wantOK: false},
		{in: "NaN", wantOK: false},
		{in: "Inf", wantOK: false},
		{in: math.NaN(), wantOK: false},
		{in: true, wantOK: false},
	}
	for _, tc := range tests {
		got, ok := ToFloat(tc.in)
		if ok != tc.wantOK {
			t.Fatalf("ToFloat(%#v) ok=%v, want %v", tc.in, ok, tc.wantOK)
		}
		if ok && got != tc.want {
			t.Fatalf("ToFloat(%#v)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2016, 1, 1, 0, 6, 0, 0, time.UTC)
	for _, in := range []string{
		"2016-01-01 00:06:00",
		"2016-01-01T00:06:00",
		"2016-01-01T00:06:00Z",
		"2016-01-01 00:06",
		"1/1/2016 0:06",
		" 2016-01-01 00:06:00 ",
	} {
		got, ok := ParseTimestamp(in)
		if !ok {
			t.Fatalf("ParseTimestamp(%q) failed", in)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseTimestamp(%q)=%v, want %v", in, got, want)
		}
	}

	if _, ok := ParseTimestamp("not a date"); ok {
		t.Fatalf("expected failure for garbage")
	}
	if _, ok := ParseTimestamp(nil); ok {
		t.Fatalf("expected failure for nil")
	}
	if got, ok := ParseTimestamp(want); !ok || !got.Equal(want) {
		t.Fatalf("time.Time must pass through")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{in: nil, want: ""},
		{in: "Central", want: "Central"},
		{in: int64(30), want: "30"},
		{in: 2.5, want: "2.5"},
		{in: time.Date(2016, 1, 1, 0, 10, 0, 0, time.UTC), want: "2016-01-01 00:10:00"},
	}
	for _, tc := range tests {
		if got := FormatValue(tc.in); got != tc.want {
			t.Fatalf("FormatValue(%#v)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
