package dbf

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloat = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// coerce converts a trimmed field value to its typed form.
func coerce(t FieldType, s string) any {
	switch t {
	case Number, Memo:
		if s == "" {
			return nil
		}
		return parseInteger(s)
	case Float:
		if s == "" {
			return nil
		}
		return parseFloat(s)
	case Logical:
		switch strings.ToUpper(s) {
		case "T", "Y", "1":
			return true
		}
		return false
	case Date:
		if s == "" {
			return nil
		}
		return parseDate(s)
	default:
		return s
	}
}

// parseInteger reads the leading integer of s, ignoring any fraction or
// trailing text. Returns nil when s does not start with a digit run.
func parseInteger(s string) any {
	m := leadingInt.FindString(s)
	if m == "" {
		return nil
	}
	if i, err := strconv.ParseInt(m, 10, 64); err == nil {
		return i
	}
	// Out of int64 range
	if f, err := strconv.ParseFloat(m, 64); err == nil {
		return f
	}
	return nil
}

// parseFloat reads the leading decimal number of s.
func parseFloat(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	m := leadingFloat.FindString(s)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return f
}

// parseDate interprets YYYYMMDD. Out-of-range months and days roll over the
// way time.Date normalizes them; non-digit input and all-zero dates are nil.
func parseDate(s string) any {
	if len(s) < 8 || s[:8] == "00000000" {
		return nil
	}
	year, err := strconv.Atoi(s[0:4])
	if err != nil {
		return nil
	}
	month, err := strconv.Atoi(s[4:6])
	if err != nil {
		return nil
	}
	day, err := strconv.Atoi(s[6:8])
	if err != nil {
		return nil
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
