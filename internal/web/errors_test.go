package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/mapexport/internal/core"
	"github.com/JonMunkholm/mapexport/internal/source"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"source not found", ErrSourceNotFound, http.StatusNotFound},
		{"export not found", fmt.Errorf("status: %w", core.ErrExportNotFound), http.StatusNotFound},
		{"template not found", fmt.Errorf("get template: %w", core.ErrTemplateNotFound), http.StatusNotFound},
		{"unknown target", errUnknownTgt, http.StatusNotFound},
		{"busy", core.ErrTooManyExports, http.StatusServiceUnavailable},
		{"template exists", fmt.Errorf("create: %w", core.ErrTemplateExists), http.StatusConflict},
		{"no store", core.ErrNoTemplateStore, http.StatusNotImplemented},
		{"too large", errors.Join(errFileTooLarge, errors.New("http: request body too large")), http.StatusRequestEntityTooLarge},
		{"no file", errNoFile, http.StatusBadRequest},
		{"bad json", errors.Join(errBadJSON, errors.New("unexpected EOF")), http.StatusBadRequest},
		{"cancelled", &core.ExportError{Stage: core.StageCancelled, Err: context.Canceled}, http.StatusConflict},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"decode", &source.DecodeError{Format: source.FormatDBF, File: "a.dbf", Err: errors.New("bad header")}, http.StatusUnprocessableEntity},
		{"expression", &core.ExpressionError{Source: "x +", Phase: core.PhaseCompile, Err: errors.New("unexpected")}, http.StatusUnprocessableEntity},
		{"export", &core.ExportError{Stage: core.StageFilter, Err: errors.New("bad")}, http.StatusUnprocessableEntity},
		{"service unknown target", errors.New("unknown target: nope"), http.StatusBadRequest},
		{"name required", errors.New("template name is required"), http.StatusBadRequest},
		{"invalid id", errors.New("invalid template ID: invalid UUID length: 3"), http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRespondError_Formats(t *testing.T) {
	t.Run("json for api routes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		respondError(rec, httptest.NewRequest(http.MethodGet, "/api/sources/x", nil), ErrSourceNotFound)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), `"code":"XPT005"`)
	})

	t.Run("htmx fragment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/exports/x", nil)
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()
		respondError(rec, req, core.ErrExportNotFound)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
		assert.Contains(t, rec.Body.String(), "XPT003")
	})

	t.Run("plain text for pages", func(t *testing.T) {
		rec := httptest.NewRecorder()
		respondError(rec, httptest.NewRequest(http.MethodGet, "/exports/x", nil), core.ErrExportNotFound)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "(XPT003)")
	})
}
