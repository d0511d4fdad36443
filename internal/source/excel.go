package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/mapexport/internal/record"
)

// ErrSheetNotFound is returned when Options.Sheet names no worksheet.
var ErrSheetNotFound = errors.New("worksheet not found")

// DecodeExcel reads one worksheet of an .xlsx workbook. The first non-blank
// row is the header. Cells are read as their formatted text.
func DecodeExcel(ctx context.Context, r io.Reader, opts Options) (*record.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet, err := pickSheet(f.GetSheetList(), opts.Sheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", sheet, err)
	}
	defer rows.Close()

	tbl := &record.Table{Format: string(FormatExcel), Sheet: sheet}
	for n := 0; rows.Next(); n++ {
		if n%ctxCheckRows == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cells, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read worksheet %s row %d: %w", sheet, n+1, err)
		}

		if tbl.Columns == nil {
			if blankCells(cells) {
				continue
			}
			tbl.Columns = uniqueHeaders(cells)
			continue
		}
		tbl.Rows = append(tbl.Rows, rowFromCells(&tbl.Columns, cells))
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", sheet, err)
	}

	if tbl.Columns == nil {
		return nil, fmt.Errorf("worksheet %s has no header row", sheet)
	}
	return tbl, nil
}

// SheetNames lists the worksheets of an .xlsx workbook in order.
func SheetNames(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func pickSheet(sheets []string, want string) (string, error) {
	if len(sheets) == 0 {
		return "", errors.New("workbook has no worksheets")
	}
	if want == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if s == want {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSheetNotFound, want)
}
