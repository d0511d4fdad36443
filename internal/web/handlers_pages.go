package web

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/mapexport/internal/core"
	"github.com/JonMunkholm/mapexport/internal/logging"
	"github.com/JonMunkholm/mapexport/internal/web/templates"
)

// handleDashboard renders the main page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, templates.Dashboard(templates.DashboardParams{
		Groups:    core.Groups(),
		Targets:   s.service.ListTargetsByGroup(),
		Limiter:   s.service.Limiter().Status(),
		Functions: core.FunctionNames(),
		Sources:   s.sources.Len(),
	}))
}

// handleExportPage renders an export's progress, or its summary and report
// once finished.
func (s *Server) handleExportPage(w http.ResponseWriter, r *http.Request) {
	exportID := chi.URLParam(r, "exportID")

	progress, err := s.service.ExportStatus(exportID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	params := templates.ExportPageParams{Progress: progress}
	switch {
	case progress.Phase == core.PhaseComplete:
		summary, err := s.service.ExportSummaryFor(r.Context(), exportID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		res, err := s.service.GetExportResult(r.Context(), exportID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		params.Summary = summary
		params.Report = res.Report
	case progress.Phase.Terminal():
		params.Error = progress.Error
	}

	s.renderPage(w, r, templates.ExportPage(params))
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render error", "error", err)
	}
}
