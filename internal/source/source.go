// Package source decodes uploaded files into the format-agnostic
// record.Table shape consumed by the export pipeline.
//
// CSV files are read through the streaming readers in this package
// (BOM skipping, UTF-8 sanitizing, byte counting), Excel workbooks through
// excelize, and DBF tables through internal/dbf.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/mapexport/internal/record"
)

// Format names a supported source file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
	FormatDBF   Format = "dbf"
)

// ErrUnsupportedFormat is returned for files no decoder accepts.
var ErrUnsupportedFormat = errors.New("unsupported source format")

// DecodeError wraps a decoder failure with the format and file name.
type DecodeError struct {
	Format Format
	File   string
	Err    error
}

func (e *DecodeError) Error() string {
	format := string(e.Format)
	if format == "" {
		format = "source"
	}
	if e.File != "" {
		return fmt.Sprintf("decode %s file %s: %v", format, e.File, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// File is an uploaded source file. Memo holds the companion memo store of a
// DBF table (.dbt/.fpt) when there is one.
type File struct {
	Name string
	Data []byte
	Memo []byte
}

// Options controls decoding.
type Options struct {
	// Sheet selects a worksheet. Empty means the first sheet.
	Sheet string

	// Codepage names the DBF codepage, e.g. "cp850" or "windows-1252".
	// Empty means dbf.DefaultEncoding.
	Codepage string

	// TextEncoding names a single-byte encoding for CSV files that are not
	// UTF-8. Empty or "utf-8" reads the text as UTF-8.
	TextEncoding string

	// DetectCodePage honours the DBF header language driver mark.
	DetectCodePage bool

	// Delimiter overrides CSV delimiter detection.
	Delimiter rune

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Decode detects the format of f and decodes it.
func Decode(ctx context.Context, f File, opts Options) (*record.Table, error) {
	format, err := DetectFormat(f.Name, f.Data)
	if err != nil {
		return nil, &DecodeError{File: f.Name, Err: err}
	}

	var tbl *record.Table
	switch format {
	case FormatCSV:
		tbl, err = DecodeCSV(ctx, bytes.NewReader(f.Data), int64(len(f.Data)), opts)
	case FormatExcel:
		tbl, err = DecodeExcel(ctx, bytes.NewReader(f.Data), opts)
	case FormatDBF:
		tbl, err = DecodeDBF(f.Data, f.Memo, opts)
	}
	if err != nil {
		return nil, &DecodeError{Format: format, File: f.Name, Err: err}
	}

	opts.logger().Debug("source decoded",
		"file", f.Name,
		"format", format,
		"columns", len(tbl.Columns),
		"rows", tbl.Len(),
	)
	return tbl, nil
}

// DetectFormat picks a decoder by file extension, falling back to the
// content for unknown extensions.
func DetectFormat(name string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatExcel, nil
	case ".dbf":
		return FormatDBF, nil
	case ".xls":
		return "", fmt.Errorf("%w: legacy .xls workbooks must be saved as .xlsx", ErrUnsupportedFormat)
	}

	switch {
	case len(data) == 0:
		return "", fmt.Errorf("%w: empty file", ErrUnsupportedFormat)
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return FormatExcel, nil
	case looksLikeDBF(data):
		return FormatDBF, nil
	case looksLikeText(data):
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
}

// dbfVersions are the version bytes of dBase III, FoxPro and Visual FoxPro
// tables, with and without memo.
var dbfVersions = map[byte]bool{
	0x02: true, 0x03: true, 0x30: true, 0x31: true,
	0x83: true, 0x8B: true, 0xF5: true, 0xFB: true,
}

func looksLikeDBF(data []byte) bool {
	if len(data) < 33 || !dbfVersions[data[0]] {
		return false
	}
	headerLen := int(data[8]) | int(data[9])<<8
	recordLen := int(data[10]) | int(data[11])<<8
	return headerLen >= 33 && headerLen <= len(data) && recordLen > 0 && data[headerLen-1] == 0x0D
}

func looksLikeText(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	return bytes.IndexByte(sample, 0) < 0
}

// uniqueHeaders trims header cells, names blank ones after their column
// letter and suffixes repeats with _2, _3 and so on.
func uniqueHeaders(cells []string) []string {
	out := make([]string, len(cells))
	seen := make(map[string]int, len(cells))
	for i, c := range cells {
		name := strings.TrimSpace(c)
		if name == "" {
			name = "Column " + record.ColumnLetter(i)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

// rowFromCells builds a row keyed by columns. Short rows get blank strings;
// cells beyond the header get generated column names appended to columns.
func rowFromCells(columns *[]string, cells []string) *record.Row {
	for len(cells) > len(*columns) {
		*columns = append(*columns, "Column "+record.ColumnLetter(len(*columns)))
	}
	row := record.NewRow(len(*columns))
	for i, c := range *columns {
		v := ""
		if i < len(cells) {
			v = cells[i]
		}
		row.Set(c, v)
	}
	return row
}

func blankCells(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
