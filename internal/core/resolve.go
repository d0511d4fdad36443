package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/JonMunkholm/mapexport/internal/record"
)

// Resolve maps a column reference to a value of row. A reference may be a
// literal row key, a 0-based column index, spreadsheet letters ("A", "AA")
// or a source column name matched case-sensitively, then case-insensitively.
// The first rule that matches wins. The bool is false when nothing matched,
// which is distinct from a matched column holding nil.
func Resolve(row *record.Row, sourceColumns []string, ref any) (any, bool) {
	if row == nil || ref == nil {
		return nil, false
	}

	key, ok := refString(ref)
	if !ok {
		return nil, false
	}

	// 1. Literal key always wins, so {"1": x} with ref 1 yields x.
	if v, ok := row.Get(key); ok {
		return v, true
	}

	// 2. Numeric index.
	if idx, ok := refIndex(ref, key); ok {
		if idx < len(sourceColumns) {
			return row.Get(sourceColumns[idx])
		}
		return nil, false
	}

	// 3. Spreadsheet letters.
	if idx := ColumnIndex(key); idx >= 0 {
		if idx < len(sourceColumns) {
			if v, ok := row.Get(sourceColumns[idx]); ok {
				return v, true
			}
		}
		// Fall through: a header named "ID" must still be reachable by name.
	}

	// 4. Exact source column name.
	for _, c := range sourceColumns {
		if c == key {
			if v, ok := row.Get(c); ok {
				return v, true
			}
		}
	}

	// 5. Case-insensitive source column name.
	for _, c := range sourceColumns {
		if strings.EqualFold(c, key) {
			if v, ok := row.Get(c); ok {
				return v, true
			}
		}
	}

	return nil, false
}

// refString renders a reference as the text used for key lookups.
func refString(ref any) (string, bool) {
	switch r := ref.(type) {
	case string:
		return r, true
	case int:
		return strconv.Itoa(r), true
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return record.FormatValue(r), true
	case float32:
		return strconv.FormatFloat(float64(r), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(r, 'f', -1, 64), true
	default:
		return "", false
	}
}

// refIndex reports whether ref is a non-negative integer index. Strings
// qualify only when they are all digits.
func refIndex(ref any, key string) (int, bool) {
	switch r := ref.(type) {
	case float64:
		if r < 0 || r != math.Trunc(r) || r > math.MaxInt32 {
			return 0, false
		}
		return int(r), true
	case float32:
		f := float64(r)
		if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
			return 0, false
		}
		return int(f), true
	}

	if key == "" {
		return 0, false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(key)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// ColumnIndex converts spreadsheet letters to a 0-based index using
// bijective base-26: A=0, Z=25, AA=26, AZ=51, BA=52. Case-insensitive.
// Returns -1 for anything that is not a non-empty run of ASCII letters.
func ColumnIndex(letters string) int {
	if letters == "" {
		return -1
	}
	n := 0
	for i := 0; i < len(letters); i++ {
		c := letters[i]
		switch {
		case c >= 'A' && c <= 'Z':
			n = n*26 + int(c-'A') + 1
		case c >= 'a' && c <= 'z':
			n = n*26 + int(c-'a') + 1
		default:
			return -1
		}
		if n > math.MaxInt32 {
			return -1
		}
	}
	return n - 1
}

// ColumnLetter is the inverse of ColumnIndex. Negative indexes yield "".
func ColumnLetter(index int) string {
	return record.ColumnLetter(index)
}
