/*
feeds.go - Interfaces to the engine's external collaborators

PURPOSE:
  The engine computes; it does not own the raw data. Task records, pay
  rates, the downtime reason list and persisted records all come from
  collaborators behind these interfaces.

KEY INTERFACES:
  TaskFeed:     Pilots and their task records for a date
  DefaultsFeed: Pay rates for a date (ErrDefaultsNotFound when absent)
  ReasonFeed:   The fixed list of downtime reasons
  RecordStore:  Saved records for a date, and the persistence sink
  AuditLog:     Append-only trail of approval decisions and saves

IMPLEMENTATIONS:
  - earnings/store/memory.go: In-memory, for tests and demos
  - store/sqlite/sqlite.go: SQLite
*/
package earnings

import (
	"context"
	"time"
)

// =============================================================================
// FEEDS
// =============================================================================

type TaskFeed interface {
	// TasksForDate returns one PilotDayInput per pilot with tasks on date.
	TasksForDate(ctx context.Context, date Date) ([]PilotDayInput, error)
}

type DefaultsFeed interface {
	// DefaultsForDate returns the pay rates for date, or ErrDefaultsNotFound.
	DefaultsForDate(ctx context.Context, date Date) (*DefaultParameters, error)
}

type ReasonFeed interface {
	DowntimeReasons(ctx context.Context) ([]DowntimeReason, error)
}

// =============================================================================
// RECORD STORE - Baseline and persistence sink
// =============================================================================

type RecordStore interface {
	// SavedRecords returns the persisted records for date keyed by pilot.
	SavedRecords(ctx context.Context, date Date) (map[PilotID]SavedRecord, error)

	// UpsertRecord creates or overwrites the record for its pilot-day.
	UpsertRecord(ctx context.Context, rec SavedRecord) error
}

// =============================================================================
// AUDIT LOG
// =============================================================================

type AuditAction string

const (
	AuditApprovalChanged AuditAction = "approval_changed"
	AuditApprovalRefused AuditAction = "approval_refused"
	AuditSaveRefused     AuditAction = "save_refused"
	AuditSaveFailed      AuditAction = "save_failed"
	AuditSaveSucceeded   AuditAction = "save_succeeded"
)

// AuditEntry records who did what to which pilot-day.
type AuditEntry struct {
	ID      string
	At      time.Time
	Actor   string
	Action  AuditAction
	Date    Date
	PilotID PilotID
	Payload map[string]any
}

type AuditFilter struct {
	Date    *Date
	PilotID *PilotID
	Actions []AuditAction
	Limit   int
}

// AuditLog is append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// Matches reports whether e passes f. Stores without a query language use it.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.Date != nil && !f.Date.Equal(e.Date) {
		return false
	}
	if f.PilotID != nil && *f.PilotID != e.PilotID {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if a == e.Action {
			return true
		}
	}
	return false
}

// FeedWriter seeds the read feeds. Both stores implement it; ingest and the
// demo scenarios write through it.
type FeedWriter interface {
	PutTasks(ctx context.Context, date Date, inputs []PilotDayInput) error
	PutDefaults(ctx context.Context, d DefaultParameters) error
	DeleteDefaults(ctx context.Context, date Date) error
	PutReasons(ctx context.Context, reasons []DowntimeReason) error
	AddReason(ctx context.Context, r DowntimeReason) error
	Reset(ctx context.Context) error
}

// =============================================================================
// OBSERVER - Metrics hooks
// =============================================================================

// Observer receives engine events for metrics. Implementations must be safe
// for concurrent use.
type Observer interface {
	GateEvaluated(label GateLabel)
	SaveFinished(mode SaveMode, err error)
	DriftDetected(date Date, count int)
}

type nopObserver struct{}

func (nopObserver) GateEvaluated(GateLabel)     {}
func (nopObserver) SaveFinished(SaveMode, error) {}
func (nopObserver) DriftDetected(Date, int)     {}
