package tables

import (
	"testing"
	"time"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   float64
		wantOK bool
	}{
		// Valid: Basic
		{name: "positive integer", input: "123", want: 123, wantOK: true},
		{name: "zero", input: "0", want: 0, wantOK: true},
		{name: "negative integer", input: "-456", want: -456, wantOK: true},
		{name: "decimal number", input: "123.45", want: 123.45, wantOK: true},
		{name: "leading decimal point", input: ".99", want: 0.99, wantOK: true},
		{name: "trailing decimal point", input: "99.", want: 99, wantOK: true},
		{name: "scientific notation", input: "1e3", want: 1000, wantOK: true},

		// Valid: Currency and separators
		{name: "dollar sign", input: "$1,234.56", want: 1234.56, wantOK: true},
		{name: "euro sign", input: "€1234.56", want: 1234.56, wantOK: true},
		{name: "pound sign", input: "£1234.56", want: 1234.56, wantOK: true},
		{name: "thousands separators", input: "1,000,000", want: 1000000, wantOK: true},
		{name: "surrounding whitespace", input: "  42  ", want: 42, wantOK: true},

		// Valid: Accounting negatives
		{name: "parentheses", input: "(12.00)", want: -12, wantOK: true},
		{name: "parentheses with currency", input: "($1,500)", want: -1500, wantOK: true},

		// Invalid
		{name: "empty", input: "", wantOK: false},
		{name: "whitespace only", input: "   ", wantOK: false},
		{name: "letters", input: "abc", wantOK: false},
		{name: "trailing text", input: "12kg", wantOK: false},
		{name: "two decimal points", input: "1.2.3", wantOK: false},
		{name: "lone sign", input: "-", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseNumber(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "ISO", input: "2024-03-15", want: "2024-03-15", wantOK: true},
		{name: "US slash", input: "3/15/2024", want: "2024-03-15", wantOK: true},
		{name: "US slash padded", input: "03/15/2024", want: "2024-03-15", wantOK: true},
		{name: "dashes", input: "3-15-2024", want: "2024-03-15", wantOK: true},
		{name: "dots", input: "3.15.2024", want: "2024-03-15", wantOK: true},
		{name: "year first slash", input: "2024/03/15", want: "2024-03-15", wantOK: true},
		{name: "compact", input: "20240315", want: "2024-03-15", wantOK: true},
		{name: "month name", input: "Mar 15, 2024", want: "2024-03-15", wantOK: true},
		{name: "day month name", input: "15 Mar 2024", want: "2024-03-15", wantOK: true},
		{name: "RFC3339", input: "2024-03-15T00:00:00Z", want: "2024-03-15", wantOK: true},

		// Two-digit years pivot around now + 20
		{name: "two digit recent", input: "3/15/24", want: "2024-03-15", wantOK: true},
		{name: "two digit near future", input: "3/15/40", want: "2040-03-15", wantOK: true},
		{name: "two digit past pivot", input: "3/15/50", want: "1950-03-15", wantOK: true},
		{name: "two digit old", input: "3/15/99", want: "1999-03-15", wantOK: true},

		{name: "empty", input: "", wantOK: false},
		{name: "day first", input: "15/03/2024", wantOK: false},
		{name: "garbage", input: "yesterday", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input, now)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got.Format("2006-01-02") != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input  string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{" yes ", true, true},
		{"Y", true, true},
		{"1", true, true},
		{"false", false, true},
		{"No", false, true},
		{"f", false, true},
		{"0", false, true},
		{"", false, false},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		got, ok := ParseBool(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseBool(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizeUsState(t *testing.T) {
	tests := map[string]string{
		"california":     "CA",
		"New York":       "NY",
		" texas ":        "TX",
		"ny":             "NY",
		"WA":             "WA",
		"Ontario":        "Ontario",
		"":               "",
		"north carolina": "NC",
	}
	for in, want := range tests {
		if got := NormalizeUsState(in); got != want {
			t.Errorf("NormalizeUsState(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"5551234567":        "(555) 123-4567",
		"555-123-4567":      "(555) 123-4567",
		"+1 (555) 123 4567": "(555) 123-4567",
		"1.555.123.4567":    "(555) 123-4567",
		" 12345 ":           "12345",
		"":                  "",
	}
	for in, want := range tests {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"jOHN o'brien-smith": "John O'Brien-Smith",
		"  ada lovelace ":    "Ada Lovelace",
		"ÉMILE zola":         "Émile Zola",
		"":                   "",
	}
	for in, want := range tests {
		if got := TitleCase(in); got != want {
			t.Errorf("TitleCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDigits(t *testing.T) {
	if got := Digits("a1b2-c3 "); got != "123" {
		t.Errorf("Digits = %q, want 123", got)
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`="00123"`, "00123"},
		{`=SUM`, "SUM"},
		{`"quoted"`, "quoted"},
		{`'single'`, "single"},
		{"  padded  ", "padded"},
		{`="`, ""},
		{`=`, ""},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
