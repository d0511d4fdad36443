package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/mapexport/internal/logging"
	"github.com/JonMunkholm/mapexport/internal/record"
)

const (
	// listenerBuffer is the channel size handed to subscribers.
	listenerBuffer = 16
	// terminalReserve is buffer space progress events never use, so the
	// closing events always fit.
	terminalReserve = 3
)

type activeExport struct {
	ID        string
	SessionID string
	FileName  string
	Expected  int
	Cancel    context.CancelFunc
	Done      chan struct{}

	mu        sync.Mutex
	progress  ExportProgress
	result    *ExportResult
	err       error
	final     []ExportEvent
	listeners []chan ExportEvent
	finished  time.Time
}

// StartExport runs req on a background worker and returns the export ID
// immediately. Use SubscribeExport for events and GetExportResult for the
// outcome. A request with the SessionID of a running export cancels and
// replaces it.
//
// Returns ErrTooManyExports if no worker slot frees up in time.
func (s *Service) StartExport(ctx context.Context, req ExportRequest) (string, error) {
	if req.Table == nil {
		return "", errors.New("export request has no table")
	}

	if req.SessionID == "" {
		req.SessionID = SessionIDFromContext(ctx)
	}
	if req.SessionID != "" {
		s.replaceSession(req.SessionID)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	exportID := uuid.New().String()
	exportCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ExportTimeout)

	expected := req.Table.Len()
	exp := &activeExport{
		ID:        exportID,
		SessionID: req.SessionID,
		FileName:  req.SourceFilename,
		Expected:  expected,
		Cancel:    cancel,
		Done:      make(chan struct{}),
		progress: ExportProgress{
			ExportID:     exportID,
			SessionID:    req.SessionID,
			Phase:        PhaseQueued,
			FileName:     req.SourceFilename,
			ExpectedRows: expected,
		},
	}

	s.mu.Lock()
	s.exports[exportID] = exp
	if req.SessionID != "" {
		s.sessions[req.SessionID] = exportID
	}
	s.mu.Unlock()

	log := logging.WithFields(ctx,
		"export_id", exportID,
		"session_id", req.SessionID,
		"file", req.SourceFilename,
	)
	if ip := ClientIPFromContext(ctx); ip != "" {
		log = log.With("client_ip", ip)
	}

	if s.observer != nil {
		s.observer.ExportStarted()
	}

	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in export", "panic", r)
				exp.fail(PhaseFailed, fmt.Errorf("internal error: %v", r))
				s.finish(exp, time.Time{})
			}
		}()
		s.processExport(exportCtx, exp, req, log)
	}()

	return exportID, nil
}

// replaceSession cancels the session's previous export, if still running.
func (s *Service) replaceSession(sessionID string) {
	s.mu.RLock()
	prevID, ok := s.sessions[sessionID]
	var prev *activeExport
	if ok {
		prev = s.exports[prevID]
	}
	s.mu.RUnlock()

	if prev == nil {
		return
	}
	select {
	case <-prev.Done:
	default:
		prev.Cancel()
	}
}

func (s *Service) processExport(ctx context.Context, exp *activeExport, req ExportRequest, log *slog.Logger) {
	start := time.Now()
	log.Info("export started", "rows", exp.Expected)

	exp.setPhase(PhaseRunning)

	x, err := NewExporter(req.Config, ExportOptions{
		SourceFilename: req.SourceFilename,
		Sheet:          sheetOf(req),
		Metadata:       req.Metadata,
		Columns:        req.Table.Columns,
		Logger:         log,
	})
	if err != nil {
		log.Warn("export rejected", "error", err)
		exp.fail(PhaseFailed, err)
		s.finish(exp, start)
		return
	}

	result, err := x.Run(ctx, req.Table.Rows, exp.reportProgress)
	if err != nil {
		phase := PhaseFailed
		if errors.Is(err, context.Canceled) {
			phase = PhaseCancelled
		}
		log.Warn("export failed", "phase", phase, "error", err)
		exp.fail(phase, err)
		s.finish(exp, start)
		return
	}

	exp.complete(result)
	log.Info("export completed",
		"total", result.Stats.TotalRows,
		"exported", result.Stats.ExportedRows,
		"skipped", result.Stats.SkippedRows,
		"transform_errors", result.Stats.TransformErrors,
		"filename", result.Filename,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.finish(exp, start)
}

func sheetOf(req ExportRequest) string {
	if req.Sheet != "" {
		return req.Sheet
	}
	return req.Table.Sheet
}

// finish closes the export and schedules its removal.
func (s *Service) finish(exp *activeExport, start time.Time) {
	exp.mu.Lock()
	exp.finished = time.Now().UTC()
	phase, stats := exp.progress.Phase, exp.progress.Stats
	exp.mu.Unlock()

	if s.observer != nil {
		var elapsed time.Duration
		if !start.IsZero() {
			elapsed = time.Since(start)
		}
		s.observer.ExportFinished(phase, stats, elapsed)
	}

	exp.closeListeners()
	select {
	case <-exp.Done:
	default:
		close(exp.Done)
	}
	s.cleanup(exp.ID, s.cfg.Retention)
}

// SubscribeExport returns a channel of events for the export. The channel
// is closed after the final event. Subscribing to a finished export replays
// its final events.
func (s *Service) SubscribeExport(exportID string) (<-chan ExportEvent, error) {
	exp, err := s.lookup(exportID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ExportEvent, listenerBuffer)

	exp.mu.Lock()
	defer exp.mu.Unlock()

	ch <- ExportEvent{Type: EventProgress, Progress: exp.progress}
	if exp.final != nil {
		for _, ev := range exp.final {
			ch <- ev
		}
		close(ch)
		return ch, nil
	}

	exp.listeners = append(exp.listeners, ch)
	return ch, nil
}

// CancelExport cancels a running export.
func (s *Service) CancelExport(exportID string) error {
	exp, err := s.lookup(exportID)
	if err != nil {
		return err
	}
	exp.Cancel()
	return nil
}

// GetExportResult waits for the export to finish and returns its result.
// A failed export returns its error.
func (s *Service) GetExportResult(ctx context.Context, exportID string) (*ExportResult, error) {
	exp, err := s.lookup(exportID)
	if err != nil {
		return nil, err
	}

	select {
	case <-exp.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	exp.mu.Lock()
	defer exp.mu.Unlock()
	if exp.err != nil {
		return nil, exp.err
	}
	return exp.result, nil
}

// ExportStatus returns the current progress without blocking.
func (s *Service) ExportStatus(exportID string) (ExportProgress, error) {
	exp, err := s.lookup(exportID)
	if err != nil {
		return ExportProgress{}, err
	}

	exp.mu.Lock()
	defer exp.mu.Unlock()
	return exp.progress, nil
}

// ExportSummaryFor describes a finished export.
func (s *Service) ExportSummaryFor(ctx context.Context, exportID string) (*ExportSummary, error) {
	res, err := s.GetExportResult(ctx, exportID)
	if err != nil {
		return nil, err
	}
	exp, err := s.lookup(exportID)
	if err != nil {
		return nil, err
	}

	exp.mu.Lock()
	finished := exp.finished
	exp.mu.Unlock()

	return &ExportSummary{
		ExportID:       exp.ID,
		SessionID:      exp.SessionID,
		SourceFilename: exp.FileName,
		Filename:       res.Filename,
		Columns:        res.Columns,
		Stats:          res.Stats,
		Warnings:       res.Warnings,
		Duration:       res.Duration.Round(time.Millisecond).String(),
		FinishedAt:     finished,
	}, nil
}

// RunExport runs an export synchronously on the caller's goroutine,
// without the limiter or event stream. Used by the command line tool.
func RunExport(ctx context.Context, table *record.Table, cfg MappingConfig, opts ExportOptions, progress ProgressFunc) (*ExportResult, error) {
	if opts.Sheet == "" {
		opts.Sheet = table.Sheet
	}
	if len(opts.Columns) == 0 {
		opts.Columns = table.Columns
	}
	x, err := NewExporter(cfg, opts)
	if err != nil {
		return nil, err
	}
	return x.Run(ctx, table.Rows, progress)
}

func (exp *activeExport) setPhase(phase ExportPhase) {
	exp.mu.Lock()
	defer exp.mu.Unlock()
	exp.progress.Phase = phase
	exp.broadcast(ExportEvent{Type: EventProgress, Progress: exp.progress}, false)
}

// reportProgress is the pipeline's progress callback.
func (exp *activeExport) reportProgress(st Stats) {
	exp.mu.Lock()
	defer exp.mu.Unlock()
	exp.progress.Stats = st
	exp.broadcast(ExportEvent{Type: EventProgress, Progress: exp.progress}, false)
}

func (exp *activeExport) complete(res *ExportResult) {
	exp.mu.Lock()
	defer exp.mu.Unlock()

	exp.result = res
	exp.progress.Phase = PhaseComplete
	exp.progress.Stats = res.Stats
	exp.final = []ExportEvent{
		{Type: EventReport, Progress: exp.progress, Report: res.Report, Filename: res.Filename},
		{Type: EventReady, Progress: exp.progress, Filename: res.Filename},
	}
	for _, ev := range exp.final {
		exp.broadcast(ev, true)
	}
}

func (exp *activeExport) fail(phase ExportPhase, err error) {
	exp.mu.Lock()
	defer exp.mu.Unlock()

	if exp.final != nil {
		return
	}
	exp.err = err
	exp.progress.Phase = phase
	exp.progress.Error = err.Error()
	exp.final = []ExportEvent{{Type: EventFailed, Progress: exp.progress, Error: err.Error()}}
	exp.broadcast(exp.final[0], true)
}

// broadcast sends ev to every listener. Progress is dropped for slow
// listeners; final events use the reserved buffer space. Caller holds mu.
func (exp *activeExport) broadcast(ev ExportEvent, final bool) {
	for _, ch := range exp.listeners {
		if !final && len(ch) >= cap(ch)-terminalReserve {
			continue
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeListeners closes all listener channels.
func (exp *activeExport) closeListeners() {
	exp.mu.Lock()
	defer exp.mu.Unlock()

	for _, ch := range exp.listeners {
		close(ch)
	}
	exp.listeners = nil
}
