package web

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/mapexport/internal/core"
	"github.com/JonMunkholm/mapexport/internal/logging"
)

// StartExportRequest is the body of POST /api/exports. MappingID loads a
// saved mapping when Config is omitted.
type StartExportRequest struct {
	SourceID  string               `json:"sourceId"`
	SessionID string               `json:"sessionId,omitempty"`
	MappingID string               `json:"mappingId,omitempty"`
	Sheet     string               `json:"sheet,omitempty"`
	Config    *core.MappingConfig  `json:"config,omitempty"`
	Metadata  *core.ExportMetadata `json:"metadata,omitempty"`
}

// StartExportResponse acknowledges a started export.
type StartExportResponse struct {
	ExportID string   `json:"exportId"`
	Warnings []string `json:"warnings,omitempty"`
}

// handleStartExport queues an export of a cached source.
func (s *Server) handleStartExport(w http.ResponseWriter, r *http.Request) {
	var req StartExportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	src, err := s.sources.Get(req.SourceID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var cfg core.MappingConfig
	switch {
	case req.Config != nil:
		cfg = *req.Config
	case req.MappingID != "":
		tmpl, err := s.service.GetTemplate(r.Context(), req.MappingID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		cfg = tmpl.Config
	default:
		respondError(w, r, fmt.Errorf("%w: config or mappingId is required", errBadJSON))
		return
	}

	var warnings []string
	if schema, ok := core.Get(cfg.TargetKey); ok {
		warnings = core.ValidateConfig(cfg, schema)
	}

	ctx := withRequestMetadata(r.Context(), r)
	exportID, err := s.service.StartExport(ctx, core.ExportRequest{
		SessionID:      req.SessionID,
		SourceFilename: src.Filename,
		Sheet:          req.Sheet,
		Table:          src.Table,
		Config:         cfg,
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("export queued",
		"export_id", exportID,
		"source_id", src.ID,
		"target", cfg.TargetKey,
	)
	writeJSON(w, r, http.StatusAccepted, StartExportResponse{ExportID: exportID, Warnings: warnings})
}

// handleExportProgress streams export events via Server-Sent Events.
// Progress events carry the percentage as their ID; a reconnecting client
// passes lastEventId to skip progress it already has.
func (s *Server) handleExportProgress(w http.ResponseWriter, r *http.Request) {
	exportID := chi.URLParam(r, "exportID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	events, err := s.service.SubscribeExport(exportID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			percent := ev.Progress.Percent()
			if ev.Type == core.EventProgress {
				if percent <= lastEventID {
					continue
				}
				lastEventID = percent
			}

			data, err := json.Marshal(ev)
			if err != nil {
				logging.FromContext(r.Context()).Error("sse encode error", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", percent, ev.Type, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleExportLimiterStatus reports worker slot usage.
func (s *Server) handleExportLimiterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.Limiter().Status())
}

func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.ExportStatus(chi.URLParam(r, "exportID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, progress)
}

// handleExportResult waits for the export and returns its summary.
func (s *Server) handleExportResult(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.ExportSummaryFor(r.Context(), chi.URLParam(r, "exportID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

// handleExportDownload serves the exported CSV as an attachment.
func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.GetExportResult(r.Context(), chi.URLParam(r, "exportID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.CSV)))
	if _, err := w.Write(res.CSV); err != nil {
		logging.FromContext(r.Context()).Warn("download interrupted", "error", err)
	}
}

// handleExportReport serves the plain text export report.
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.GetExportResult(r.Context(), chi.URLParam(r, "exportID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(res.Report))
}

func (s *Server) handleCancelExport(w http.ResponseWriter, r *http.Request) {
	exportID := chi.URLParam(r, "exportID")
	if err := s.service.CancelExport(exportID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "cancelled", "exportId": exportID})
}
