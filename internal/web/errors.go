package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//   - Formatted for the client: HTMX fragment, JSON or plain text
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err), which picks the status with statusFor
//  3. Error is mapped via core.MapError to get user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is rendered in appropriate format for the client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/mapexport/internal/core"
	"github.com/JonMunkholm/mapexport/internal/logging"
	"github.com/JonMunkholm/mapexport/internal/source"
	"github.com/JonMunkholm/mapexport/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// Request errors that are not produced by core.
var (
	errFileTooLarge = errors.New("file too large or invalid form")
	errNoFile       = errors.New("no file provided")
	errBadJSON      = errors.New("invalid request body")
	errUnknownTgt   = errors.New("unknown target")
)

var errRateLimited = core.MapError(errors.New("rate limit exceeded"))

// statusFor picks the HTTP status for an error.
func statusFor(err error) int {
	var (
		decodeErr *source.DecodeError
		exprErr   *core.ExpressionError
		filterErr *core.FilterError
		exportErr *core.ExportError
	)

	switch {
	case errors.Is(err, ErrSourceNotFound),
		errors.Is(err, core.ErrExportNotFound),
		errors.Is(err, core.ErrTemplateNotFound),
		errors.Is(err, errUnknownTgt):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyExports):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrTemplateExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoTemplateStore):
		return http.StatusNotImplemented
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errNoFile), errors.Is(err, errBadJSON):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &decodeErr),
		errors.As(err, &exprErr),
		errors.As(err, &filterErr),
		errors.As(err, &exportErr):
		return http.StatusUnprocessableEntity
	case strings.Contains(err.Error(), "unknown target"),
		strings.Contains(err.Error(), "invalid template ID"),
		strings.Contains(err.Error(), "name is required"):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns an appropriate response
// based on the request type (HTMX, JSON, or plain text).
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusFor(err)
	userMsg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	switch {
	case isHTMX(r):
		renderErrorPartial(w, r, userMsg, statusCode)
	case wantsJSON(r):
		respondErrorJSON(w, userMsg, statusCode)
	default:
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// renderErrorPartial renders an HTMX-compatible error fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// writeJSON encodes v with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadJSON, err)
	}
	return nil
}
