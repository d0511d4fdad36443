package core

import (
	"fmt"
	"testing"

	"github.com/JonMunkholm/mapexport/internal/record"
)

func TestResolve_Priority(t *testing.T) {
	cols := []string{"Name", "Id", "city"}
	row := record.FromMap([]string{"1", "Name", "Id", "city"}, map[string]any{
		"1":    "literal",
		"Name": "Ada",
		"Id":   int64(7),
		"city": "Oslo",
	})

	tests := []struct {
		name   string
		ref    any
		want   any
		wantOK bool
	}{
		// Literal key beats index interpretation.
		{name: "literal key int", ref: 1, want: "literal", wantOK: true},
		{name: "literal key string", ref: "1", want: "literal", wantOK: true},
		{name: "literal key float", ref: 1.0, want: "literal", wantOK: true},

		// 0-based index.
		{name: "index int", ref: 0, want: "Ada", wantOK: true},
		{name: "index string", ref: "2", want: "Oslo", wantOK: true},
		{name: "index float", ref: float64(2), want: "Oslo", wantOK: true},
		{name: "index out of range", ref: 9, wantOK: false},

		// Letters.
		{name: "letter upper", ref: "A", want: "Ada", wantOK: true},
		{name: "letter lower", ref: "c", want: "Oslo", wantOK: true},

		// Names.
		{name: "exact name", ref: "city", want: "Oslo", wantOK: true},
		{name: "case-insensitive name", ref: "CITY", want: "Oslo", wantOK: true},
		{name: "letters out of range fall through to name", ref: "iD", want: int64(7), wantOK: true},

		// Misses.
		{name: "negative number", ref: -1, wantOK: false},
		{name: "fractional number", ref: 1.5, wantOK: false},
		{name: "unknown name", ref: "country", wantOK: false},
		{name: "letters beyond columns", ref: "Q", wantOK: false},
		{name: "nil ref", ref: nil, wantOK: false},
		{name: "unsupported ref type", ref: []string{"Name"}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(row, cols, tt.ref)
			if ok != tt.wantOK {
				t.Fatalf("Resolve(%v) ok = %v, want %v", tt.ref, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Resolve(%v) = %#v, want %#v", tt.ref, got, tt.want)
			}
		})
	}
}

func TestResolve_LiteralKeyWinsOverIndex(t *testing.T) {
	row := record.FromMap([]string{"1", "Name"}, map[string]any{"1": "literal", "Name": "x"})
	got, ok := Resolve(row, []string{"Name"}, 1)
	if !ok || got != "literal" {
		t.Errorf("Resolve(1) = %v, %v; want literal, true", got, ok)
	}
}

func TestResolve_DoubleLetterColumn(t *testing.T) {
	cols := make([]string, 27)
	values := make(map[string]any, 27)
	for i := range cols {
		cols[i] = fmt.Sprintf("field_%d", i)
		values[cols[i]] = fmt.Sprintf("v%d", i)
	}
	row := record.FromMap(cols, values)

	got, ok := Resolve(row, cols, "AA")
	if !ok || got != "v26" {
		t.Errorf("Resolve(AA) = %v, %v; want v26, true", got, ok)
	}
	got, ok = Resolve(row, cols, "aa")
	if !ok || got != "v26" {
		t.Errorf("Resolve(aa) = %v, %v; want v26, true", got, ok)
	}
}

func TestResolve_NilValueIsFound(t *testing.T) {
	row := record.FromMap([]string{"memo"}, map[string]any{})
	got, ok := Resolve(row, []string{"memo"}, "memo")
	if !ok || got != nil {
		t.Errorf("Resolve(memo) = %v, %v; want nil, true", got, ok)
	}
}

func TestResolve_NilRow(t *testing.T) {
	if _, ok := Resolve(nil, []string{"a"}, "a"); ok {
		t.Error("Resolve on nil row should not match")
	}
}

func TestColumnIndex(t *testing.T) {
	tests := []struct {
		letters string
		want    int
	}{
		{"A", 0},
		{"a", 0},
		{"Z", 25},
		{"AA", 26},
		{"AZ", 51},
		{"BA", 52},
		{"ZZ", 701},
		{"AAA", 702},
		{"", -1},
		{"A1", -1},
		{"É", -1},
		{"A B", -1},
	}
	for _, tt := range tests {
		if got := ColumnIndex(tt.letters); got != tt.want {
			t.Errorf("ColumnIndex(%q) = %d, want %d", tt.letters, got, tt.want)
		}
	}
}

func TestColumnLetter_RoundTrip(t *testing.T) {
	if got := ColumnLetter(-1); got != "" {
		t.Errorf("ColumnLetter(-1) = %q, want empty", got)
	}
	for i := 0; i < 2000; i++ {
		letters := ColumnLetter(i)
		if got := ColumnIndex(letters); got != i {
			t.Fatalf("ColumnIndex(ColumnLetter(%d)=%q) = %d", i, letters, got)
		}
	}
	if got := ColumnLetter(26); got != "AA" {
		t.Errorf("ColumnLetter(26) = %q, want AA", got)
	}
}
