package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Table is the decoded form of any source file: ordered column names plus
// rows in source order.
type Table struct {
	Columns []string
	Rows    []*Row
	Sheet   string // Worksheet name for spreadsheet sources
	Format  string // "csv", "xlsx", "dbf"
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// IsBlank reports whether v is nil or formats to an empty string after trimming.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return strings.TrimSpace(FormatValue(v)) == ""
}

// FormatValue returns the text form of a decoded value.
// Dates without a clock part format as YYYY-MM-DD.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	case []byte:
		return string(val)
	case interface{ String() string }:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// ColumnLetter returns the spreadsheet letter for a 0-based column index:
// 0 is A, 25 is Z, 26 is AA. Negative indexes yield "".
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	var buf []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		buf = append(buf, byte('A'+(n-1)%26))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
