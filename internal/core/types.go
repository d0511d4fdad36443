package core

import (
	"time"

	"github.com/JonMunkholm/mapexport/internal/record"
)

// TargetColumn is one column of a target schema.
type TargetColumn struct {
	Name        string `json:"name"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// TargetSchema is a fixed set of output columns users map sources onto.
type TargetSchema struct {
	Key         string         `json:"key"`   // Unique identifier: "crm_contacts"
	Group       string         `json:"group"` // Display group: "CRM", "Commerce"
	Label       string         `json:"label"` // Display name: "Contacts"
	Description string         `json:"description,omitempty"`
	Columns     []TargetColumn `json:"columns"`
}

// ColumnNames returns the target column names in order.
func (t TargetSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named target column.
func (t TargetSchema) Column(name string) (TargetColumn, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return TargetColumn{}, false
}

// ExportPhase indicates the current stage of an export.
type ExportPhase string

const (
	PhaseQueued    ExportPhase = "queued"
	PhaseRunning   ExportPhase = "running"
	PhaseComplete  ExportPhase = "complete"
	PhaseFailed    ExportPhase = "failed"
	PhaseCancelled ExportPhase = "cancelled"
)

// Terminal reports whether no further events follow this phase.
func (p ExportPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// ExportProgress is a progress snapshot of a running export.
type ExportProgress struct {
	ExportID     string      `json:"exportId"`
	SessionID    string      `json:"sessionId,omitempty"`
	Phase        ExportPhase `json:"phase"`
	FileName     string      `json:"fileName"`
	ExpectedRows int         `json:"expectedRows"`
	Stats        Stats       `json:"stats"`
	Error        string      `json:"error,omitempty"`
}

// Percent returns the progress as a percentage (0-100).
func (p ExportProgress) Percent() int {
	if p.Phase == PhaseComplete {
		return 100
	}
	return p.Stats.Percent(p.ExpectedRows)
}

// ExportEventType discriminates ExportEvent.
type ExportEventType string

const (
	EventProgress ExportEventType = "progress"
	EventReport   ExportEventType = "report"
	EventReady    ExportEventType = "ready"
	EventFailed   ExportEventType = "failed"
)

// ExportEvent is one message on an export subscription. Progress events
// arrive in increasing row order; a successful run ends with report then
// ready, a failed one with failed.
type ExportEvent struct {
	Type     ExportEventType `json:"type"`
	Progress ExportProgress  `json:"progress"`
	Report   string          `json:"report,omitempty"`
	Filename string          `json:"filename,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ExportRequest starts an export of an already decoded table.
type ExportRequest struct {
	// SessionID groups requests from one client; a new request replaces the
	// session's previous export.
	SessionID      string
	SourceFilename string
	Sheet          string
	Table          *record.Table
	Config         MappingConfig
	Metadata       *ExportMetadata
}

// ExportSummary describes a finished export without its CSV body.
type ExportSummary struct {
	ExportID       string    `json:"exportId"`
	SessionID      string    `json:"sessionId,omitempty"`
	SourceFilename string    `json:"sourceFilename"`
	Filename       string    `json:"filename"`
	Columns        []string  `json:"columns"`
	Stats          Stats     `json:"stats"`
	Warnings       []string  `json:"warnings,omitempty"`
	Duration       string    `json:"duration"`
	FinishedAt     time.Time `json:"finishedAt"`
}
