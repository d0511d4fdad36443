// Package web provides the HTTP server and handlers for uploading sources,
// previewing mappings and running exports.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/mapexport/internal/config"
	"github.com/JonMunkholm/mapexport/internal/core"
	"github.com/JonMunkholm/mapexport/internal/metrics"
	mw "github.com/JonMunkholm/mapexport/internal/web/middleware"
)

// sourceSweepInterval is how often expired sources are dropped.
const sourceSweepInterval = time.Minute

// Server is the HTTP server of the export application.
type Server struct {
	service *core.Service
	cfg     *config.Config
	metrics *metrics.Metrics
	sources *sourceCache
	router  *chi.Mux
	server  *http.Server

	limiters []*rateLimiter
}

// NewServer creates a Server. m may be nil when metrics are disabled.
func NewServer(service *core.Service, cfg *config.Config, m *metrics.Metrics) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		metrics: m,
		sources: newSourceCache(cfg.Export.SourceTTL, cfg.Export.MaxSources),
		router:  chi.NewRouter(),
	}
	s.sources.start(sourceSweepInterval)
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
	s.router.Use(middleware.Compress(5))

	// Security hardening
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	timeout := middleware.Timeout(s.cfg.Server.RequestTimeout)

	// Heavy endpoints get their own, lower limit.
	heavy := func(next http.Handler) http.Handler { return next }
	if s.cfg.Rate.Enabled {
		heavy = s.newLimiter(s.cfg.Rate.UploadLimit).middleware
	}

	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(timeout)
		r.Get("/", s.handleDashboard)
		r.Get("/exports/{exportID}", s.handleExportPage)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security.RequireAPIKey, s.cfg.Security.APIKeys))

		// Server-sent events outlive the request timeout.
		r.Get("/exports/{exportID}/progress", s.handleExportProgress)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			// Targets
			r.Get("/targets", s.handleListTargets)
			r.Get("/targets/{targetKey}", s.handleGetTarget)
			r.Post("/targets/{targetKey}/validate", s.handleValidateMapping)

			// Sources
			r.With(heavy).Post("/sources", s.handleUploadSource)
			r.Get("/sources/{sourceID}", s.handleGetSource)
			r.Delete("/sources/{sourceID}", s.handleDeleteSource)
			r.Post("/sources/{sourceID}/preview", s.handlePreviewMapping)

			// Expressions
			r.Get("/expressions/functions", s.handleListFunctions)
			r.Post("/expressions/test", s.handleTestExpression)

			// Exports
			r.With(heavy).Post("/exports", s.handleStartExport)
			r.Get("/exports/status", s.handleExportLimiterStatus)
			r.Get("/exports/{exportID}", s.handleExportStatus)
			r.Get("/exports/{exportID}/result", s.handleExportResult)
			r.Get("/exports/{exportID}/download", s.handleExportDownload)
			r.Get("/exports/{exportID}/report", s.handleExportReport)
			r.Post("/exports/{exportID}/cancel", s.handleCancelExport)

			// Saved mappings
			r.Get("/mappings", s.handleListMappings)
			r.Get("/mappings/match", s.handleMatchMappings)
			r.Get("/mappings/{id}", s.handleGetMapping)
			r.Post("/mappings", s.handleCreateMapping)
			r.Put("/mappings/{id}", s.handleUpdateMapping)
			r.Delete("/mappings/{id}", s.handleDeleteMapping)
		})
	})
}

func (s *Server) newLimiter(perMinute int) *rateLimiter {
	rl := newRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its background sweepers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Close stops background goroutines without touching the listener.
func (s *Server) Close() {
	s.sources.Close()
	for _, rl := range s.limiters {
		rl.Close()
	}
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"targets": core.TargetCount(),
		"exports": s.service.Limiter().Status(),
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(csp bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME type sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			if csp {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}

			// Control referrer information
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}
