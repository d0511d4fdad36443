// Command mapexport converts a CSV, Excel or DBF file with a saved mapping
// configuration, without running the web server.
//
// Usage:
//
//	mapexport -in orders.dbf [-memo orders.dbt] [-sheet S] -config cfg.json [-out dir]
//
// The CSV and its report are written to the output directory. Progress goes
// to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/mapexport/internal/config"
	"github.com/JonMunkholm/mapexport/internal/core"
	_ "github.com/JonMunkholm/mapexport/internal/core/tables" // Register all targets
	"github.com/JonMunkholm/mapexport/internal/logging"
	"github.com/JonMunkholm/mapexport/internal/source"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "mapexport:", err)
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		}
		os.Exit(1)
	}
}

type options struct {
	in        string
	memo      string
	sheet     string
	config    string
	out       string
	codepage  string
	encoding  string
	delimiter string
	logLevel  string
	quiet     bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("mapexport", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.in, "in", "", "source file (.csv, .xlsx, .dbf)")
	fs.StringVar(&o.memo, "memo", "", "DBF memo file (.dbt, .fpt)")
	fs.StringVar(&o.sheet, "sheet", "", "worksheet name (default: first sheet)")
	fs.StringVar(&o.config, "config", "", "mapping configuration JSON")
	fs.StringVar(&o.out, "out", ".", "output directory")
	fs.StringVar(&o.codepage, "codepage", "", "DBF codepage, overrides the header mark")
	fs.StringVar(&o.encoding, "encoding", "", "CSV text encoding (default utf-8)")
	fs.StringVar(&o.delimiter, "delimiter", "", "CSV delimiter (default: detected)")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn, error")
	fs.BoolVar(&o.quiet, "q", false, "no progress output")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.in == "" || o.config == "" {
		fs.Usage()
		return o, errors.New("-in and -config are required")
	}
	return o, nil
}

// run executes one conversion. stdout receives the written file paths.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	log := slog.New(logging.NewHandler(stderr, level, cfg.Logging.Format))

	mapping, err := readMapping(o.config)
	if err != nil {
		return err
	}

	file, err := readSource(o)
	if err != nil {
		return err
	}

	decodeOpts := source.Options{
		Sheet:          o.sheet,
		Codepage:       cfg.Decode.Codepage,
		TextEncoding:   cfg.Decode.CSVEncoding,
		DetectCodePage: cfg.Decode.DetectCodePage,
		Logger:         log,
	}
	if o.codepage != "" {
		decodeOpts.Codepage = o.codepage
		decodeOpts.DetectCodePage = false
	}
	if o.encoding != "" {
		decodeOpts.TextEncoding = o.encoding
	}
	if o.delimiter != "" {
		decodeOpts.Delimiter, _ = utf8.DecodeRuneInString(o.delimiter)
	}

	table, err := source.Decode(ctx, file, decodeOpts)
	if err != nil {
		return err
	}
	log.Info("source decoded", "file", file.Name, "rows", table.Len(), "columns", len(table.Columns))

	if schema, ok := core.Get(mapping.TargetKey); ok {
		for _, w := range core.ValidateConfig(mapping, schema) {
			log.Warn("mapping", "warning", w)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Export.Timeout)
	defer cancel()

	var progress core.ProgressFunc
	if !o.quiet {
		expected := table.Len()
		progress = func(st core.Stats) {
			fmt.Fprintf(stderr, "\rprocessed %d/%d rows (%d%%)", st.TotalRows, expected, st.Percent(expected))
		}
	}

	res, err := core.RunExport(ctx, table, mapping, core.ExportOptions{
		SourceFilename: filepath.Base(o.in),
		Logger:         log,
	}, progress)
	if progress != nil {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		return err
	}

	csvPath, reportPath, err := writeOutputs(o.out, res)
	if err != nil {
		return err
	}

	log.Info("export written",
		"csv", csvPath,
		"exported", res.Stats.ExportedRows,
		"skipped", res.Stats.SkippedRows,
		"transform_errors", res.Stats.TransformErrors,
	)
	fmt.Fprintln(stdout, csvPath)
	fmt.Fprintln(stdout, reportPath)
	return nil
}

func readMapping(path string) (core.MappingConfig, error) {
	var cfg core.MappingConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read mapping: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	return cfg, nil
}

func readSource(o options) (source.File, error) {
	data, err := os.ReadFile(o.in)
	if err != nil {
		return source.File{}, fmt.Errorf("read source: %w", err)
	}
	f := source.File{Name: filepath.Base(o.in), Data: data}
	if o.memo != "" {
		if f.Memo, err = os.ReadFile(o.memo); err != nil {
			return source.File{}, fmt.Errorf("read memo: %w", err)
		}
	}
	return f, nil
}

// writeOutputs writes the CSV and the report beside it.
func writeOutputs(dir string, res *core.ExportResult) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output directory: %w", err)
	}

	csvPath := filepath.Join(dir, res.Filename)
	if err := os.WriteFile(csvPath, res.CSV, 0o644); err != nil {
		return "", "", fmt.Errorf("write csv: %w", err)
	}

	reportPath := filepath.Join(dir, strings.TrimSuffix(res.Filename, filepath.Ext(res.Filename))+"_report.txt")
	if err := os.WriteFile(reportPath, []byte(res.Report), 0o644); err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}
	return csvPath, reportPath, nil
}
