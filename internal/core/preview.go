package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/mapexport/internal/record"
)

// maxPreviewScan bounds how many input rows a preview looks at to fill its
// sample when most rows are filtered out or empty.
const maxPreviewScan = 5000

// MappingPreview shows what an export would produce for the first rows.
type MappingPreview struct {
	Columns          []string   `json:"columns"`
	Rows             [][]string `json:"rows"`
	Scanned          int        `json:"scanned"`
	Filtered         int        `json:"filtered"`
	Empty            int        `json:"empty"`
	Warnings         []string   `json:"warnings,omitempty"`
	ProcessingTimeMs int64      `json:"processingTimeMs"`
}

// Preview builds up to limit output rows without serializing. A filter
// evaluation failure is returned as an error, as it would fail the export.
func (x *Exporter) Preview(rows []*record.Row, limit int) (*MappingPreview, error) {
	start := time.Now()
	st := &runState{}

	p := &MappingPreview{Columns: x.Columns()}
	values := make([]any, len(x.columns))

	for i, row := range rows {
		if len(p.Rows) >= limit || i >= maxPreviewScan {
			break
		}
		p.Scanned++

		keep, err := x.filter.Test(row)
		if err != nil {
			return nil, &ExportError{Stage: StageFilter, File: x.opts.SourceFilename, Row: i + 1, Err: err}
		}
		if !keep {
			p.Filtered++
			continue
		}

		x.buildRow(st, row, i+1, values)
		if allBlank(values) {
			p.Empty++
			continue
		}

		out := make([]string, len(values))
		for j, v := range values {
			out[j] = record.FormatValue(v)
		}
		p.Rows = append(p.Rows, out)
	}

	p.Warnings = append(x.Warnings(), st.warnings...)
	p.ProcessingTimeMs = time.Since(start).Milliseconds()
	return p, nil
}

// PreviewMapping compiles cfg and previews it against table. A non-positive
// limit uses the configured preview size.
func (s *Service) PreviewMapping(ctx context.Context, table *record.Table, cfg MappingConfig, limit int) (*MappingPreview, error) {
	if table == nil {
		return nil, fmt.Errorf("preview: no source table")
	}
	if limit <= 0 {
		limit = s.cfg.PreviewRows
	}

	x, err := NewExporter(cfg, ExportOptions{Columns: table.Columns, Sheet: table.Sheet})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := x.Preview(table.Rows, limit)
	if err != nil {
		return nil, err
	}

	if schema, ok := Get(cfg.TargetKey); ok {
		p.Warnings = append(p.Warnings, ValidateConfig(cfg, schema)...)
	}
	return p, nil
}

// ExpressionTest is the outcome of evaluating one expression against a row.
type ExpressionTest struct {
	Result    any    `json:"result"`
	Formatted string `json:"formatted"`
	Type      string `json:"type"`
}

// TestExpression compiles source and evaluates it once. It backs the
// expression editor so users can check a transform before exporting.
func (s *Service) TestExpression(source string, columns []string, row *record.Row, value any) (*ExpressionTest, error) {
	e, err := CompileExpression(source, columns)
	if err != nil {
		return nil, err
	}
	out, err := e.Eval(row, value)
	if err != nil {
		return nil, err
	}
	return &ExpressionTest{
		Result:    out,
		Formatted: record.FormatValue(out),
		Type:      fmt.Sprintf("%T", out),
	}, nil
}
