package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/mapexport/internal/record"
)

// gate blocks the "waitGate" expression helper until released, so tests can
// hold an export mid-run.
type gate struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

var (
	gateMu  sync.Mutex
	current *gate
)

func init() {
	RegisterFunction("waitGate", func(args ...any) (any, error) {
		gateMu.Lock()
		g := current
		gateMu.Unlock()
		if g != nil {
			g.once.Do(func() { close(g.entered) })
			<-g.release
		}
		return args[0], nil
	})
}

func newGate(t *testing.T) *gate {
	t.Helper()
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	gateMu.Lock()
	current = g
	gateMu.Unlock()
	t.Cleanup(func() {
		gateMu.Lock()
		current = nil
		gateMu.Unlock()
	})
	return g
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("export never reached the gate")
	}
}

func simpleTable(n int) *record.Table {
	cols := []string{"id", "name"}
	tbl := &record.Table{Columns: cols, Format: "csv"}
	for i := 0; i < n; i++ {
		name := "n"
		if i%3 == 1 {
			name = ""
		}
		id := ""
		if name != "" {
			id = "x"
		}
		tbl.Rows = append(tbl.Rows, record.FromMap(cols, map[string]any{"id": id, "name": name}))
	}
	return tbl
}

func collect(t *testing.T, ch <-chan ExportEvent) []ExportEvent {
	t.Helper()
	var events []ExportEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("subscription not closed")
			return nil
		}
	}
}

type countingObserver struct {
	started  atomic.Int32
	finished atomic.Int32
	lastPh   atomic.Value
}

func (o *countingObserver) ExportStarted() { o.started.Add(1) }
func (o *countingObserver) ExportFinished(phase ExportPhase, _ Stats, _ time.Duration) {
	o.lastPh.Store(phase)
	o.finished.Add(1)
}
func (o *countingObserver) ActiveExports(int) {}

func TestService_StartExportAndResult(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	obs := &countingObserver{}
	svc.SetObserver(obs)

	tbl := simpleTable(6)
	tbl.Sheet = "Sheet1"
	id, err := svc.StartExport(context.Background(), ExportRequest{
		SourceFilename: "people_export.xlsx",
		Table:          tbl,
		Config:         MappingConfig{Mapping: map[string]string{"name": "Name"}},
	})
	if err != nil {
		t.Fatalf("StartExport: %v", err)
	}

	res, err := svc.GetExportResult(context.Background(), id)
	if err != nil {
		t.Fatalf("GetExportResult: %v", err)
	}
	if res.Stats.TotalRows != 6 || res.Stats.ExportedRows != 4 || res.Stats.SkippedRows != 2 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if string(res.CSV[:8]) != "id;Name\n" {
		t.Errorf("CSV header = %q", res.CSV[:8])
	}

	status, err := svc.ExportStatus(id)
	if err != nil {
		t.Fatal(err)
	}
	if status.Phase != PhaseComplete || status.Percent() != 100 {
		t.Errorf("status = %+v", status)
	}

	if obs.started.Load() != 1 || obs.finished.Load() != 1 {
		t.Errorf("observer started=%d finished=%d", obs.started.Load(), obs.finished.Load())
	}
	if ph, _ := obs.lastPh.Load().(ExportPhase); ph != PhaseComplete {
		t.Errorf("observer phase = %v", ph)
	}

	summary, err := svc.ExportSummaryFor(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if summary.SourceFilename != "people_export.xlsx" || summary.FinishedAt.IsZero() {
		t.Errorf("summary = %+v", summary)
	}
	if !strings.Contains(res.Report, "Worksheet:") || !strings.Contains(res.Report, "Sheet1") {
		t.Errorf("report missing worksheet:\n%s", res.Report)
	}
}

func TestService_EventOrder(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	g := newGate(t)

	id, err := svc.StartExport(context.Background(), ExportRequest{
		SourceFilename: "big.csv",
		Table:          simpleTable(2*ProgressChunkSize + 10),
		Config:         MappingConfig{ColumnTransforms: map[string]string{"id": "waitGate(value)"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	g.waitEntered(t)

	ch, err := svc.SubscribeExport(id)
	if err != nil {
		t.Fatal(err)
	}
	close(g.release)

	events := collect(t, ch)
	if len(events) < 3 {
		t.Fatalf("got %d events, want at least 3", len(events))
	}

	n := len(events)
	if events[n-2].Type != EventReport || events[n-1].Type != EventReady {
		t.Fatalf("last events = %s, %s; want report, ready", events[n-2].Type, events[n-1].Type)
	}
	if events[n-2].Report == "" || events[n-1].Filename == "" {
		t.Error("report or filename missing from terminal events")
	}

	last := -1
	for _, ev := range events[:n-2] {
		if ev.Type != EventProgress {
			t.Fatalf("unexpected %s before report", ev.Type)
		}
		if ev.Progress.Stats.TotalRows < last {
			t.Errorf("progress went backwards: %d after %d", ev.Progress.Stats.TotalRows, last)
		}
		last = ev.Progress.Stats.TotalRows
	}
}

func TestService_SubscribeAfterFinishReplaysFinalEvents(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	id, err := svc.StartExport(context.Background(), ExportRequest{Table: simpleTable(3)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetExportResult(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	ch, err := svc.SubscribeExport(id)
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, ch)
	if len(events) != 3 {
		t.Fatalf("got %d events, want progress, report, ready", len(events))
	}
	if events[0].Progress.Phase != PhaseComplete || events[1].Type != EventReport || events[2].Type != EventReady {
		t.Errorf("events = %+v", events)
	}
}

func TestService_CompileFailure(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	obs := &countingObserver{}
	svc.SetObserver(obs)

	id, err := svc.StartExport(context.Background(), ExportRequest{
		SourceFilename: "in.csv",
		Table:          simpleTable(3),
		Config:         MappingConfig{ColumnTransforms: map[string]string{"id": "value +"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.GetExportResult(context.Background(), id)
	var xe *ExportError
	if !errors.As(err, &xe) || xe.Stage != StageCompile {
		t.Fatalf("error = %v, want compile ExportError", err)
	}

	events := collect(t, mustSubscribe(t, svc, id))
	if last := events[len(events)-1]; last.Type != EventFailed || last.Error == "" {
		t.Errorf("last event = %+v, want failed", last)
	}
	if ph, _ := obs.lastPh.Load().(ExportPhase); ph != PhaseFailed {
		t.Errorf("observer phase = %v", ph)
	}
}

func mustSubscribe(t *testing.T, svc *Service, id string) <-chan ExportEvent {
	t.Helper()
	ch, err := svc.SubscribeExport(id)
	if err != nil {
		t.Fatal(err)
	}
	return ch
}

func TestService_SessionReplacementCancelsPrevious(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	g := newGate(t)

	first, err := svc.StartExport(context.Background(), ExportRequest{
		SessionID: "s1",
		Table:     simpleTable(ProgressChunkSize + 5),
		Config:    MappingConfig{ColumnTransforms: map[string]string{"id": "waitGate(value)"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	g.waitEntered(t)

	ctx := ContextWithSessionID(context.Background(), "s1")
	second, err := svc.StartExport(ctx, ExportRequest{Table: simpleTable(3)})
	if err != nil {
		t.Fatal(err)
	}
	close(g.release)

	_, err = svc.GetExportResult(context.Background(), first)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("first export error = %v, want context.Canceled", err)
	}
	status, _ := svc.ExportStatus(first)
	if status.Phase != PhaseCancelled {
		t.Errorf("first export phase = %s, want cancelled", status.Phase)
	}

	res, err := svc.GetExportResult(context.Background(), second)
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	if res.Stats.TotalRows != 3 {
		t.Errorf("second export stats = %+v", res.Stats)
	}
}

func TestService_CancelExport(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	g := newGate(t)

	id, err := svc.StartExport(context.Background(), ExportRequest{
		Table:  simpleTable(ProgressChunkSize + 5),
		Config: MappingConfig{ColumnTransforms: map[string]string{"id": "waitGate(value)"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	g.waitEntered(t)

	if err := svc.CancelExport(id); err != nil {
		t.Fatal(err)
	}
	close(g.release)

	if _, err := svc.GetExportResult(context.Background(), id); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestService_LimiterRejectsWhenBusy(t *testing.T) {
	svc := NewService(nil, ServiceConfig{MaxConcurrent: 1, MaxWait: 50 * time.Millisecond})
	g := newGate(t)

	id, err := svc.StartExport(context.Background(), ExportRequest{
		Table:  simpleTable(3),
		Config: MappingConfig{ColumnTransforms: map[string]string{"id": "waitGate(value)"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	g.waitEntered(t)

	_, err = svc.StartExport(context.Background(), ExportRequest{Table: simpleTable(1)})
	if !errors.Is(err, ErrTooManyExports) {
		t.Errorf("error = %v, want ErrTooManyExports", err)
	}

	close(g.release)
	if _, err := svc.GetExportResult(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if err := svc.Limiter().WaitForDrain(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestService_ResultsExpire(t *testing.T) {
	svc := NewService(nil, ServiceConfig{Retention: 30 * time.Millisecond})
	id, err := svc.StartExport(context.Background(), ExportRequest{Table: simpleTable(1)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetExportResult(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := svc.ExportStatus(id); errors.Is(err, ErrExportNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("export still tracked after retention period")
}

func TestService_Errors(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})

	if _, err := svc.StartExport(context.Background(), ExportRequest{}); err == nil {
		t.Error("StartExport without table should fail")
	}
	if _, err := svc.ExportStatus("nope"); !errors.Is(err, ErrExportNotFound) {
		t.Errorf("ExportStatus error = %v", err)
	}
	if _, err := svc.SubscribeExport("nope"); !errors.Is(err, ErrExportNotFound) {
		t.Errorf("SubscribeExport error = %v", err)
	}
	if err := svc.CancelExport("nope"); !errors.Is(err, ErrExportNotFound) {
		t.Errorf("CancelExport error = %v", err)
	}
}

func TestService_GetExportResultHonoursContext(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	g := newGate(t)

	id, err := svc.StartExport(context.Background(), ExportRequest{
		Table:  simpleTable(1),
		Config: MappingConfig{ColumnTransforms: map[string]string{"id": "waitGate(value)"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	g.waitEntered(t)
	defer close(g.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := svc.GetExportResult(ctx, id); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestService_Shutdown(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	g := newGate(t)

	_, err := svc.StartExport(context.Background(), ExportRequest{
		Table:  simpleTable(ProgressChunkSize + 5),
		Config: MappingConfig{ColumnTransforms: map[string]string{"id": "waitGate(value)"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	g.waitEntered(t)

	done := make(chan error, 1)
	go func() { done <- svc.Shutdown(context.Background()) }()
	close(g.release)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}

func TestRunExport(t *testing.T) {
	tbl := simpleTable(3)
	tbl.Sheet = "Data"
	var calls int
	res, err := RunExport(context.Background(), tbl, MappingConfig{}, ExportOptions{SourceFilename: "a.xlsx"}, func(Stats) { calls++ })
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.TotalRows != 3 || calls != 1 {
		t.Errorf("stats = %+v, progress calls = %d", res.Stats, calls)
	}
	if !strings.Contains(res.Report, "Data") {
		t.Errorf("report missing worksheet:\n%s", res.Report)
	}
}
