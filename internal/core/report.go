package core

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ReportInfo is everything BuildReport renders.
type ReportInfo struct {
	ExportedAt     time.Time
	SourceFilename string
	Sheet          string
	OutputFilename string
	Stats          Stats
	Warnings       []string

	// Language selects digit grouping. Defaults to English.
	Language language.Tag
}

// BuildReport renders the human-readable export summary.
func BuildReport(info ReportInfo) string {
	tag := info.Language
	if tag == language.Und {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	s := info.Stats

	var b strings.Builder
	b.WriteString("Export Report\n")
	b.WriteString("=============\n")
	p.Fprintf(&b, "Exported at:    %s\n", info.ExportedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	p.Fprintf(&b, "Source file:    %s\n", info.SourceFilename)
	if info.Sheet != "" {
		p.Fprintf(&b, "Worksheet:      %s\n", info.Sheet)
	}
	b.WriteString("\n")
	p.Fprintf(&b, "Total rows:     %d\n", s.TotalRows)
	p.Fprintf(&b, "Exported rows:  %d\n", s.ExportedRows)
	p.Fprintf(&b, "Skipped rows:   %d\n", s.SkippedRows)
	if s.SkippedRows > 0 {
		p.Fprintf(&b, "  empty:        %d\n", s.EmptyRows)
		p.Fprintf(&b, "  filtered:     %d\n", s.FilteredRows)
		if s.UpstreamSkipped > 0 {
			p.Fprintf(&b, "  upstream:     %d\n", s.UpstreamSkipped)
		}
	}
	if s.TransformErrors > 0 {
		p.Fprintf(&b, "Transform errors: %d (raw values kept)\n", s.TransformErrors)
	}
	b.WriteString("\n")
	p.Fprintf(&b, "Output file:    %s\n", info.OutputFilename)

	if len(info.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range info.Warnings {
			b.WriteString("  - ")
			b.WriteString(w)
			b.WriteByte('\n')
		}
		if extra := s.TransformErrors - countTransformWarnings(info.Warnings); extra > 0 {
			p.Fprintf(&b, "  ... and %d more\n", extra)
		}
	}

	return b.String()
}

// countTransformWarnings counts the row-level entries among warnings.
func countTransformWarnings(warnings []string) int {
	n := 0
	for _, w := range warnings {
		if strings.HasPrefix(w, "row ") {
			n++
		}
	}
	return n
}
