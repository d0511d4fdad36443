package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/mapexport/internal/core"
	"github.com/JonMunkholm/mapexport/internal/record"
)

// TargetsResponse lists target schemas by group.
type TargetsResponse struct {
	Groups  []string                       `json:"groups"`
	Targets map[string][]core.TargetSchema `json:"targets"`
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, TargetsResponse{
		Groups:  core.Groups(),
		Targets: s.service.ListTargetsByGroup(),
	})
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	schema, ok := core.Get(chi.URLParam(r, "targetKey"))
	if !ok {
		respondError(w, r, errUnknownTgt)
		return
	}
	writeJSON(w, r, http.StatusOK, schema)
}

// ValidationResponse lists problems with a mapping against its target.
type ValidationResponse struct {
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings"`
}

// handleValidateMapping checks a MappingConfig against a target schema.
func (s *Server) handleValidateMapping(w http.ResponseWriter, r *http.Request) {
	schema, ok := core.Get(chi.URLParam(r, "targetKey"))
	if !ok {
		respondError(w, r, errUnknownTgt)
		return
	}

	var cfg core.MappingConfig
	if err := decodeJSON(r, &cfg); err != nil {
		respondError(w, r, err)
		return
	}

	warnings := core.ValidateConfig(cfg, schema)
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, r, http.StatusOK, ValidationResponse{Valid: len(warnings) == 0, Warnings: warnings})
}

func (s *Server) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string][]string{"functions": core.FunctionNames()})
}

// TestExpressionRequest evaluates an expression once. The row comes either
// from Row or from row RowIndex (1-based) of a cached source.
type TestExpressionRequest struct {
	Expression string         `json:"expression"`
	Columns    []string       `json:"columns,omitempty"`
	Row        map[string]any `json:"row,omitempty"`
	Value      any            `json:"value,omitempty"`
	SourceID   string         `json:"sourceId,omitempty"`
	RowIndex   int            `json:"rowIndex,omitempty"`
	Column     string         `json:"column,omitempty"`
}

func (s *Server) handleTestExpression(w http.ResponseWriter, r *http.Request) {
	var req TestExpressionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	columns := req.Columns
	row := record.FromMap(columns, req.Row)
	value := req.Value

	if req.SourceID != "" {
		src, err := s.sources.Get(req.SourceID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		columns = src.Table.Columns
		idx := max(req.RowIndex, 1) - 1
		if idx < src.Table.Len() {
			row = src.Table.Rows[idx]
		} else {
			row = record.NewRow(0)
		}
		if req.Column != "" {
			value, _ = row.Get(req.Column)
		}
	} else if len(columns) == 0 {
		for k := range req.Row {
			columns = append(columns, k)
		}
		row = record.FromMap(columns, req.Row)
	}

	out, err := s.service.TestExpression(req.Expression, columns, row, value)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

// MappingRequest is the body of mapping create and update calls.
type MappingRequest struct {
	TargetKey string             `json:"targetKey"`
	Name      string             `json:"name"`
	Config    core.MappingConfig `json:"config"`
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListTemplates(r.Context(), r.URL.Query().Get("target"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if list == nil {
		list = []core.MappingTemplate{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

// handleMatchMappings finds saved mappings for a target whose source
// columns fit the given headers. Headers come from a cached source
// (sourceId) or a comma separated headers parameter.
func (s *Server) handleMatchMappings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("target")
	if _, ok := core.Get(target); !ok {
		respondError(w, r, errUnknownTgt)
		return
	}

	var headers []string
	if id := q.Get("sourceId"); id != "" {
		src, err := s.sources.Get(id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		headers = src.Table.Columns
	} else {
		headers = splitList(q.Get("headers"))
	}

	matches, err := s.service.MatchTemplates(r.Context(), target, headers)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if matches == nil {
		matches = []core.TemplateMatch{}
	}
	writeJSON(w, r, http.StatusOK, matches)
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	t, err := s.service.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	var req MappingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.TargetKey == "" {
		req.TargetKey = req.Config.TargetKey
	}

	t, err := s.service.CreateTemplate(r.Context(), req.TargetKey, req.Name, req.Config)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, t)
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	var req MappingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	t, err := s.service.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), req.Name, req.Config)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// splitList splits a comma separated parameter, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
