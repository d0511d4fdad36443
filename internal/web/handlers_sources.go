package web

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/mapexport/internal/core"
	"github.com/JonMunkholm/mapexport/internal/logging"
	"github.com/JonMunkholm/mapexport/internal/record"
	"github.com/JonMunkholm/mapexport/internal/source"
)

// sourcePreviewRows is how many raw rows a source summary includes.
const sourcePreviewRows = 10

// multipartMemory is the part of a multipart form kept in memory.
const multipartMemory = 32 << 20

// SourceSummary describes a decoded source.
type SourceSummary struct {
	SourceID string     `json:"sourceId"`
	Filename string     `json:"filename"`
	Format   string     `json:"format"`
	Size     int64      `json:"size"`
	Sheet    string     `json:"sheet,omitempty"`
	Sheets   []string   `json:"sheets,omitempty"`
	Columns  []string   `json:"columns"`
	RowCount int        `json:"rowCount"`
	Preview  [][]string `json:"preview"`
}

func summarize(src *cachedSource) SourceSummary {
	tbl := src.Table
	n := min(sourcePreviewRows, tbl.Len())

	preview := make([][]string, 0, n)
	for _, row := range tbl.Rows[:n] {
		cells := make([]string, len(tbl.Columns))
		for i, c := range tbl.Columns {
			v, _ := row.Get(c)
			cells[i] = record.FormatValue(v)
		}
		preview = append(preview, cells)
	}

	return SourceSummary{
		SourceID: src.ID,
		Filename: src.Filename,
		Format:   src.Format,
		Size:     src.Size,
		Sheet:    tbl.Sheet,
		Sheets:   src.Sheets,
		Columns:  tbl.Columns,
		RowCount: tbl.Len(),
		Preview:  preview,
	}
}

// handleUploadSource decodes an uploaded CSV, Excel or DBF file and keeps it
// for previews and exports.
//
// Form fields: file (required), memo (DBF memo store), sheet, codepage,
// encoding, delimiter.
func (s *Server) handleUploadSource(w http.ResponseWriter, r *http.Request) {
	// The memo store may be as large as the table.
	r.Body = http.MaxBytesReader(w, r.Body, 2*s.cfg.Export.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, errors.Join(errFileTooLarge, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	if header.Size > s.cfg.Export.MaxFileSize {
		respondError(w, r, errFileTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	memo, err := readOptionalFile(r, "memo")
	if err != nil {
		respondError(w, r, err)
		return
	}

	opts := source.Options{
		Sheet:          r.FormValue("sheet"),
		Codepage:       s.cfg.Decode.Codepage,
		TextEncoding:   s.cfg.Decode.CSVEncoding,
		DetectCodePage: s.cfg.Decode.DetectCodePage,
		Logger:         logging.FromContext(r.Context()),
	}
	if cp := r.FormValue("codepage"); cp != "" {
		opts.Codepage = cp
		opts.DetectCodePage = false
	}
	if enc := r.FormValue("encoding"); enc != "" {
		opts.TextEncoding = enc
	}
	if d := r.FormValue("delimiter"); d != "" {
		opts.Delimiter, _ = utf8.DecodeRuneInString(d)
	}

	start := time.Now()
	tbl, err := source.Decode(r.Context(), source.File{Name: header.Filename, Data: data, Memo: memo}, opts)
	s.observeDecode(tbl, time.Since(start), err)
	if err != nil {
		respondError(w, r, err)
		return
	}

	src := &cachedSource{
		Filename: header.Filename,
		Format:   tbl.Format,
		Size:     int64(len(data)),
		Table:    tbl,
	}
	if tbl.Format == string(source.FormatExcel) {
		src.Sheets, _ = source.SheetNames(bytes.NewReader(data))
	}
	s.sources.Put(src)

	logging.FromContext(r.Context()).Info("source decoded",
		"source_id", src.ID,
		"file", src.Filename,
		"format", src.Format,
		"rows", tbl.Len(),
		"columns", len(tbl.Columns),
	)
	writeJSON(w, r, http.StatusCreated, summarize(src))
}

func (s *Server) observeDecode(tbl *record.Table, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	format := ""
	if tbl != nil {
		format = tbl.Format
	}
	var de *source.DecodeError
	if errors.As(err, &de) {
		format = string(de.Format)
	}
	s.metrics.ObserveDecode(format, elapsed, err)
}

// readOptionalFile returns the named form file, or nil when absent.
func readOptionalFile(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func(f multipart.File) { _ = f.Close() }(f)
	return io.ReadAll(f)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.sources.Get(chi.URLParam(r, "sourceID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summarize(src))
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.sources.Delete(chi.URLParam(r, "sourceID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreviewMapping runs a MappingConfig against the first rows of a
// source. Query parameter limit overrides the configured row count.
func (s *Server) handlePreviewMapping(w http.ResponseWriter, r *http.Request) {
	src, err := s.sources.Get(chi.URLParam(r, "sourceID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var cfg core.MappingConfig
	if err := decodeJSON(r, &cfg); err != nil {
		respondError(w, r, err)
		return
	}

	preview, err := s.service.PreviewMapping(r.Context(), src.Table, cfg, parseIntParam(r, "limit", 0))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, preview)
}
