package core

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/mapexport/internal/record"
)

const (
	// ProgressChunkSize is how many rows are processed between progress
	// notifications and cancellation checks.
	ProgressChunkSize = 10000

	// CSVDelimiter separates output fields. Fields are never quoted.
	CSVDelimiter = ";"

	// maxWarnings caps the transform warnings kept for the report.
	maxWarnings = 20
)

// Export stages reported by ExportError.
const (
	StageCompile   = "compile"
	StageFilter    = "filter"
	StageBuild     = "build"
	StageSerialize = "serialize"
	StageCancelled = "cancelled"
)

// MappingConfig is the persisted mapping, transform and filter setup.
//
// Mapping keys are source column names, optionally suffixed with "#n" where
// n is the connection counter at the time the connection was made. This lets
// one source column feed several targets.
type MappingConfig struct {
	Mapping           map[string]string `json:"mapping"`
	ColumnTransforms  map[string]string `json:"columnTransforms,omitempty"`
	SourceColumns     []string          `json:"sourceColumns"`
	ConnectionCounter int               `json:"connectionCounter"`
	ActiveFilter      *FilterSpec       `json:"activeFilter,omitempty"`

	// TargetKey names the target schema the mapping was built for.
	TargetKey string `json:"targetKey,omitempty"`
	// DropUnmapped excludes source columns without a mapping from the output
	// instead of passing them through under their own name.
	DropUnmapped bool `json:"dropUnmapped,omitempty"`
}

// MappingKey builds the mapping key for a connection made when the
// connection counter was n. Counter 0 yields the bare source name.
func MappingKey(source string, n int) string {
	if n <= 0 {
		return source
	}
	return source + "#" + strconv.Itoa(n)
}

// SourceOfKey splits a mapping key into its source column and counter.
func SourceOfKey(key string) (string, int) {
	i := strings.LastIndexByte(key, '#')
	if i < 0 || i == len(key)-1 {
		return key, 0
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil || n < 0 {
		return key, 0
	}
	return key[:i], n
}

// ExportMetadata carries counts from an upstream stage that already dropped
// rows. When present it is trusted for the total and skipped counts.
type ExportMetadata struct {
	TotalRows   int `json:"totalRows"`
	SkippedRows int `json:"skippedRows"`
}

// Stats is the per-run row accounting.
// At completion ExportedRows + SkippedRows == TotalRows and
// SkippedRows == EmptyRows + FilteredRows + UpstreamSkipped.
type Stats struct {
	TotalRows       int `json:"totalRows"`
	ExportedRows    int `json:"exportedRows"`
	SkippedRows     int `json:"skippedRows"`
	EmptyRows       int `json:"emptyRows"`
	FilteredRows    int `json:"filteredRows"`
	UpstreamSkipped int `json:"upstreamSkipped"`
	TransformErrors int `json:"transformErrors"`
}

// Percent returns processed rows as a percentage of expected.
func (s Stats) Percent(expected int) int {
	if expected <= 0 {
		return 0
	}
	p := s.TotalRows * 100 / expected
	if p > 100 {
		p = 100
	}
	return p
}

// ProgressFunc receives a stats snapshot at every chunk boundary and once
// when processing completes.
type ProgressFunc func(Stats)

// ExportError is a failure that aborts an export run.
type ExportError struct {
	Stage string
	File  string
	Row   int // 1-based input row, 0 when not row specific
	Err   error
}

func (e *ExportError) Error() string {
	msg := "export " + e.Stage + " failed"
	if e.File != "" {
		msg += " for " + e.File
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(" at row %d", e.Row)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// ExportOptions holds per-run inputs that are not part of the saved mapping.
type ExportOptions struct {
	SourceFilename string
	Sheet          string
	Metadata       *ExportMetadata

	// Columns is used as the source column order when the config has none.
	Columns []string

	Logger *slog.Logger
	Now    func() time.Time
}

// ExportResult is the outcome of a successful run.
type ExportResult struct {
	Stats    Stats
	Columns  []string
	CSV      []byte
	Filename string
	Report   string
	Warnings []string
	Duration time.Duration
}

// outputColumn is one column of the output, fed by a single source column.
type outputColumn struct {
	key       string
	source    string
	target    string
	counter   int
	transform *Expression
}

// Exporter applies a compiled mapping configuration to rows.
// An Exporter can run many times; each Run has its own stats.
type Exporter struct {
	opts          ExportOptions
	sourceColumns []string
	columns       []outputColumn
	filter        *Filter
	warnings      []string
	log           *slog.Logger
}

// NewExporter compiles the transforms and filter of cfg. Compile failures
// are returned as *ExportError with StageCompile before any row is touched.
func NewExporter(cfg MappingConfig, opts ExportOptions) (*Exporter, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sourceColumns := cfg.SourceColumns
	if len(sourceColumns) == 0 {
		sourceColumns = opts.Columns
	}

	x := &Exporter{
		opts:          opts,
		sourceColumns: sourceColumns,
		log:           opts.Logger,
	}

	if err := x.planColumns(cfg); err != nil {
		return nil, &ExportError{Stage: StageCompile, File: opts.SourceFilename, Err: err}
	}

	filter, err := CompileFilter(cfg.ActiveFilter, sourceColumns)
	if err != nil {
		return nil, &ExportError{Stage: StageCompile, File: opts.SourceFilename, Err: err}
	}
	x.filter = filter

	return x, nil
}

// planColumns resolves the mapping into the ordered output columns and
// compiles their transforms.
func (x *Exporter) planColumns(cfg MappingConfig) error {
	known := make(map[string]bool, len(x.sourceColumns))
	for _, c := range x.sourceColumns {
		known[c] = true
	}

	mapped := make(map[string][]outputColumn)
	for key, target := range cfg.Mapping {
		if strings.TrimSpace(target) == "" {
			continue
		}
		source, counter := key, 0
		if !known[key] {
			source, counter = SourceOfKey(key)
		}
		if !known[source] {
			x.warnings = append(x.warnings, fmt.Sprintf("mapping %q references unknown source column %q", key, source))
			continue
		}
		mapped[source] = append(mapped[source], outputColumn{key: key, source: source, target: target, counter: counter})
	}

	for _, cols := range mapped {
		sort.Slice(cols, func(i, j int) bool {
			if cols[i].counter != cols[j].counter {
				return cols[i].counter < cols[j].counter
			}
			return cols[i].key < cols[j].key
		})
	}

	for _, source := range x.sourceColumns {
		if cols, ok := mapped[source]; ok {
			x.columns = append(x.columns, cols...)
			continue
		}
		if !cfg.DropUnmapped {
			x.columns = append(x.columns, outputColumn{key: source, source: source, target: source})
		}
	}

	compiled := make(map[string]*Expression)
	for i := range x.columns {
		src, ok := cfg.ColumnTransforms[x.columns[i].key]
		if !ok || strings.TrimSpace(src) == "" {
			continue
		}
		if e, ok := compiled[src]; ok {
			x.columns[i].transform = e
			continue
		}
		e, err := CompileExpression(src, x.sourceColumns)
		if err != nil {
			return fmt.Errorf("transform for %q: %w", x.columns[i].key, err)
		}
		compiled[src] = e
		x.columns[i].transform = e
	}

	return nil
}

// Columns returns the output header in order. Duplicates are kept.
func (x *Exporter) Columns() []string {
	out := make([]string, len(x.columns))
	for i, c := range x.columns {
		out[i] = c.target
	}
	return out
}

// Warnings returns configuration warnings found while planning.
func (x *Exporter) Warnings() []string {
	return append([]string(nil), x.warnings...)
}

// runState is the mutable accounting of one Run.
type runState struct {
	stats    Stats
	warnings []string
}

func (s *runState) warn(msg string) {
	if len(s.warnings) < maxWarnings {
		s.warnings = append(s.warnings, msg)
	}
}

// Run filters, maps and transforms rows, then serializes the survivors.
// progress may be nil. The context is checked at chunk boundaries.
func (x *Exporter) Run(ctx context.Context, rows []*record.Row, progress ProgressFunc) (*ExportResult, error) {
	start := x.opts.Now()
	st := &runState{}

	var body strings.Builder
	header := x.Columns()
	body.WriteString(strings.Join(header, CSVDelimiter))
	body.WriteByte('\n')

	values := make([]any, len(x.columns))
	fields := make([]string, len(x.columns))

	for i, row := range rows {
		if i > 0 && i%ProgressChunkSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &ExportError{Stage: StageCancelled, File: x.opts.SourceFilename, Row: i, Err: err}
			}
			if progress != nil {
				progress(st.stats)
			}
		}

		st.stats.TotalRows++

		keep, err := x.filter.Test(row)
		if err != nil {
			return nil, &ExportError{Stage: StageFilter, File: x.opts.SourceFilename, Row: i + 1, Err: err}
		}
		if !keep {
			st.stats.FilteredRows++
			st.stats.SkippedRows++
			continue
		}

		x.buildRow(st, row, i+1, values)

		if allBlank(values) {
			st.stats.EmptyRows++
			st.stats.SkippedRows++
			continue
		}

		for j, v := range values {
			fields[j] = record.FormatValue(v)
		}
		body.WriteString(strings.Join(fields, CSVDelimiter))
		body.WriteByte('\n')
		st.stats.ExportedRows++
	}

	if err := ctx.Err(); err != nil {
		return nil, &ExportError{Stage: StageCancelled, File: x.opts.SourceFilename, Err: err}
	}

	x.applyMetadata(&st.stats)

	if progress != nil {
		progress(st.stats)
	}

	if st.stats.TransformErrors > len(st.warnings) {
		x.log.Warn("transform errors truncated in report",
			"total", st.stats.TransformErrors,
			"kept", len(st.warnings),
		)
	}

	now := x.opts.Now()
	filename := AddTimestampToFilename(x.opts.SourceFilename, now)
	warnings := append(x.Warnings(), st.warnings...)

	report := BuildReport(ReportInfo{
		ExportedAt:     now,
		SourceFilename: x.opts.SourceFilename,
		Sheet:          x.opts.Sheet,
		OutputFilename: filename,
		Stats:          st.stats,
		Warnings:       warnings,
	})

	return &ExportResult{
		Stats:    st.stats,
		Columns:  header,
		CSV:      []byte(body.String()),
		Filename: filename,
		Report:   report,
		Warnings: warnings,
		Duration: now.Sub(start),
	}, nil
}

// buildRow fills values with the output cells for row. A transform that
// fails leaves the raw value in place and is recorded as a warning.
func (x *Exporter) buildRow(st *runState, row *record.Row, rowNum int, values []any) {
	for j, c := range x.columns {
		raw, _ := row.Get(c.source)
		values[j] = raw
		if c.transform == nil {
			continue
		}
		v, err := c.transform.Eval(row, raw)
		if err != nil {
			st.stats.TransformErrors++
			msg := fmt.Sprintf("row %d, column %s: %v", rowNum, c.target, err)
			if st.stats.TransformErrors <= maxWarnings {
				x.log.Warn("transform failed, raw value kept",
					"row", rowNum,
					"column", c.key,
					"target", c.target,
					"error", err,
				)
			}
			st.warn(msg)
			continue
		}
		values[j] = v
	}
}

// applyMetadata folds counts from an upstream stage into stats so the
// accounting invariant holds against the upstream total.
func (x *Exporter) applyMetadata(s *Stats) {
	md := x.opts.Metadata
	if md == nil {
		return
	}

	upstream := md.SkippedRows
	if upstream < 0 {
		upstream = 0
	}
	total := s.TotalRows + upstream
	if md.TotalRows > total {
		upstream += md.TotalRows - total
		total = md.TotalRows
	} else if md.TotalRows > 0 && md.TotalRows < total {
		x.log.Warn("export metadata total below processed rows, using processed count",
			"metadata_total", md.TotalRows,
			"processed", total,
		)
	}

	s.UpstreamSkipped = upstream
	s.SkippedRows += upstream
	s.TotalRows = total
}

func allBlank(values []any) bool {
	for _, v := range values {
		if !record.IsBlank(v) {
			return false
		}
	}
	return true
}

// AddTimestampToFilename derives the download name: the extension and any
// "_export" suffix are removed and "-<unix seconds>.CSV" is appended.
func AddTimestampToFilename(name string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if strings.HasSuffix(strings.ToLower(base), "_export") {
		base = base[:len(base)-len("_export")]
	}
	if base == "" {
		base = "export"
	}
	return fmt.Sprintf("%s-%d.CSV", base, now.Unix())
}
