package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrExportNotFound is returned for unknown or expired export IDs.
var ErrExportNotFound = errors.New("export not found")

// ServiceConfig holds tunables for the export service.
type ServiceConfig struct {
	// ExportTimeout bounds a single export run.
	ExportTimeout time.Duration
	// Retention is how long a finished export stays downloadable.
	Retention time.Duration
	// PreviewRows is the default row count for PreviewMapping.
	PreviewRows int
	// MaxConcurrent and MaxWait configure the export limiter.
	MaxConcurrent int
	MaxWait       time.Duration
}

// Defaults used when ServiceConfig fields are zero.
const (
	DefaultExportTimeout = 10 * time.Minute
	DefaultRetention     = 30 * time.Minute
	DefaultPreviewRows   = 20
)

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = DefaultExportTimeout
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.PreviewRows <= 0 {
		c.PreviewRows = DefaultPreviewRows
	}
	return c
}

// ExportObserver receives export lifecycle notifications, typically to
// update metrics. All methods must be safe for concurrent use.
type ExportObserver interface {
	ExportStarted()
	ExportFinished(phase ExportPhase, stats Stats, elapsed time.Duration)
	ActiveExports(n int)
}

// Service provides the core business logic for mapping and export.
type Service struct {
	cfg       ServiceConfig
	templates TemplateStore
	limiter   *ExportLimiter
	observer  ExportObserver

	mu       sync.RWMutex
	exports  map[string]*activeExport
	sessions map[string]string // session ID -> latest export ID
}

// NewService creates a Service. templates may be nil when saved mappings
// are not needed; the template methods then return ErrNoTemplateStore.
func NewService(templates TemplateStore, cfg ServiceConfig) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:       cfg,
		templates: templates,
		limiter:   NewExportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		exports:   make(map[string]*activeExport),
		sessions:  make(map[string]string),
	}
}

// SetObserver installs an observer for export lifecycle events.
// Call before the first StartExport.
func (s *Service) SetObserver(o ExportObserver) {
	s.observer = o
	if o != nil {
		s.limiter.OnChange(o.ActiveExports)
	}
}

// Limiter returns the export limiter for status reporting and shutdown.
func (s *Service) Limiter() *ExportLimiter {
	return s.limiter
}

// Config returns the effective service configuration.
func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// ListTargets returns all registered target schemas.
func (s *Service) ListTargets() []TargetSchema {
	return All()
}

// ListTargetsByGroup returns target schemas organized by group.
func (s *Service) ListTargetsByGroup() map[string][]TargetSchema {
	result := make(map[string][]TargetSchema)
	for _, group := range Groups() {
		result[group] = ByGroup(group)
	}
	return result
}

// Shutdown cancels every running export and waits for the workers to exit.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, exp := range s.exports {
		exp.Cancel()
	}
	s.mu.RUnlock()

	if err := s.limiter.WaitForDrain(ctx); err != nil {
		return fmt.Errorf("wait for exports: %w", err)
	}
	return nil
}

func (s *Service) lookup(exportID string) (*activeExport, error) {
	s.mu.RLock()
	exp, ok := s.exports[exportID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExportNotFound, exportID)
	}
	return exp, nil
}

// cleanup removes the export from tracking after a delay.
func (s *Service) cleanup(exportID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		exp, ok := s.exports[exportID]
		if !ok {
			return
		}
		delete(s.exports, exportID)
		if s.sessions[exp.SessionID] == exportID {
			delete(s.sessions, exp.SessionID)
		}
	})
}
