// Package store provides in-memory implementations of the earnings feeds.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/earnings-engine/earnings"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every earnings collaborator interface.
type Memory struct {
	mu       sync.RWMutex
	tasks    map[earnings.Date][]earnings.PilotDayInput
	defaults map[earnings.Date]earnings.DefaultParameters
	reasons  []earnings.DowntimeReason
	records  map[earnings.Key]earnings.SavedRecord
	audit    []earnings.AuditEntry
}

var (
	_ earnings.TaskFeed     = (*Memory)(nil)
	_ earnings.DefaultsFeed = (*Memory)(nil)
	_ earnings.ReasonFeed   = (*Memory)(nil)
	_ earnings.RecordStore  = (*Memory)(nil)
	_ earnings.AuditLog     = (*Memory)(nil)
	_ earnings.FeedWriter   = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		tasks:    make(map[earnings.Date][]earnings.PilotDayInput),
		defaults: make(map[earnings.Date]earnings.DefaultParameters),
		records:  make(map[earnings.Key]earnings.SavedRecord),
	}
}

// =============================================================================
// WRITERS - Stand in for the external feeds
// =============================================================================

// PutTasks replaces the task feed for date.
func (m *Memory) PutTasks(_ context.Context, date earnings.Date, inputs []earnings.PilotDayInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[date] = clonePilotInputs(inputs)
	return nil
}

func (m *Memory) PutDefaults(_ context.Context, d earnings.DefaultParameters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[d.Date] = d
	return nil
}

func (m *Memory) DeleteDefaults(_ context.Context, date earnings.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.defaults, date)
	return nil
}

func (m *Memory) PutReasons(_ context.Context, reasons []earnings.DowntimeReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasons = append([]earnings.DowntimeReason(nil), reasons...)
	return nil
}

func (m *Memory) AddReason(_ context.Context, r earnings.DowntimeReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reasons {
		if existing.ID == r.ID || existing.Text == r.Text {
			return fmt.Errorf("%w: %q", earnings.ErrDuplicateReason, r.Text)
		}
	}
	m.reasons = append(m.reasons, r)
	return nil
}

// =============================================================================
// FEEDS
// =============================================================================

func (m *Memory) TasksForDate(_ context.Context, date earnings.Date) ([]earnings.PilotDayInput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clonePilotInputs(m.tasks[date]), nil
}

func (m *Memory) DefaultsForDate(_ context.Context, date earnings.Date) (*earnings.DefaultParameters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.defaults[date]
	if !ok {
		return nil, earnings.ErrDefaultsNotFound
	}
	return &d, nil
}

func (m *Memory) DowntimeReasons(_ context.Context) ([]earnings.DowntimeReason, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]earnings.DowntimeReason(nil), m.reasons...), nil
}

// =============================================================================
// RECORD STORE
// =============================================================================

func (m *Memory) SavedRecords(_ context.Context, date earnings.Date) (map[earnings.PilotID]earnings.SavedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[earnings.PilotID]earnings.SavedRecord)
	for k, rec := range m.records {
		if k.Date == date {
			result[k.PilotID] = rec
		}
	}
	return result, nil
}

func (m *Memory) UpsertRecord(_ context.Context, rec earnings.SavedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key()] = rec
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry earnings.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

// QueryAudit returns matching entries, newest first.
func (m *Memory) QueryAudit(_ context.Context, filter earnings.AuditFilter) ([]earnings.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []earnings.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		if filter.Matches(m.audit[i]) {
			result = append(result, m.audit[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].At.After(result[j].At) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Reset clears everything.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[earnings.Date][]earnings.PilotDayInput)
	m.defaults = make(map[earnings.Date]earnings.DefaultParameters)
	m.records = make(map[earnings.Key]earnings.SavedRecord)
	m.reasons = nil
	m.audit = nil
	return nil
}

func clonePilotInputs(in []earnings.PilotDayInput) []earnings.PilotDayInput {
	if in == nil {
		return nil
	}
	out := make([]earnings.PilotDayInput, len(in))
	for i, p := range in {
		out[i] = p
		out[i].Tasks = append([]earnings.TaskRecord(nil), p.Tasks...)
	}
	return out
}
