/*
service.go - Earnings service: feeds in, board out, guarded saves

PURPOSE:
  Joins the pure pieces of the engine with the external collaborators:

    task feed ─┐
    defaults ──┼─▶ Aggregate ─▶ CalculateRevenue ─▶ Reconcile ─▶ Decide
    reasons  ──┤        ▲               ▲               ▲
    records  ──┘        │          ApprovalBook     saved record
                        │
                   PilotDayInput

SAVE FLOW:
  1. Take the in-flight flag for the pilot-day (refuse with "saving")
  2. Recompute the entry and evaluate the gate
  3. Refuse if the gate is disabled (no sink call is made)
  4. Upsert the verified record through the RecordStore
  5. Release the flag on every path, then re-evaluate the entry

CONCURRENCY:
  Feeds for a date are fetched concurrently and pilots are evaluated in
  parallel. The only shared mutable state is the ApprovalBook and the
  InFlight tracker, both keyed per pilot-day.

EXAMPLE:
  svc := earnings.NewService(earnings.Deps{Tasks: st, Defaults: st, ...})
  board, err := svc.Board(ctx, date)
  _, err = svc.SetApprovalStatus(ctx, key, earnings.ApprovalApproved, "ops")
  _, err = svc.SelectReason(ctx, key, "weather", "ops")
  result, err := svc.Save(ctx, key, "ops")
*/
package earnings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// BOARD - What the earnings view shows for a date
// =============================================================================

type BoardEntry struct {
	Key            Key
	PilotName      string
	TaskCount      int
	Stats          ComputedStats
	Approval       ApprovalState
	Saved          *SavedRecord
	Reconciliation Reconciliation
	Gate           GateDecision
}

type BoardTotals struct {
	Assigned     decimal.Decimal
	Covered      decimal.Decimal
	Canceled     decimal.Decimal
	DailyEarning decimal.Decimal
}

type Board struct {
	Date          Date
	Defaults      *DefaultParameters
	DefaultsFound bool
	Entries       []BoardEntry
	Totals        BoardTotals
}

type SaveResult struct {
	Mode   SaveMode
	Record SavedRecord
	Entry  BoardEntry
}

// =============================================================================
// SERVICE
// =============================================================================

type Deps struct {
	Tasks    TaskFeed
	Defaults DefaultsFeed
	Reasons  ReasonFeed
	Records  RecordStore
	Audit    AuditLog
	Observer Observer
	Logger   *zap.SugaredLogger

	// Parallelism bounds concurrent pilot evaluation. Zero means 8.
	Parallelism int
}

type Service struct {
	tasks    TaskFeed
	defaults DefaultsFeed
	reasons  ReasonFeed
	records  RecordStore
	audit    AuditLog
	observer Observer
	log      *zap.SugaredLogger

	parallelism int
	approvals   *ApprovalBook
	inFlight    *InFlight
	now         func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		tasks:       d.Tasks,
		defaults:    d.Defaults,
		reasons:     d.Reasons,
		records:     d.Records,
		audit:       d.Audit,
		observer:    d.Observer,
		log:         d.Logger,
		parallelism: d.Parallelism,
		approvals:   NewApprovalBook(),
		inFlight:    NewInFlight(),
		now:         time.Now,
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.parallelism <= 0 {
		s.parallelism = 8
	}
	return s
}

// Approvals exposes the keyed approval store.
func (s *Service) Approvals() *ApprovalBook { return s.approvals }

// InFlight exposes the per pilot-day saving flags.
func (s *Service) InFlight() *InFlight { return s.inFlight }

// ResetState forgets every approval decision held in memory. Call it after
// the stores were wiped so stale decisions are not applied to new data.
func (s *Service) ResetState() {
	s.approvals.Clear()
	s.log.Infow("approval state cleared")
}

// =============================================================================
// LOADING
// =============================================================================

type dayData struct {
	inputs   []PilotDayInput
	defaults *DefaultParameters
	saved    map[PilotID]SavedRecord
	reasons  []DowntimeReason
}

func (s *Service) loadDay(ctx context.Context, date Date) (*dayData, error) {
	var day dayData
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		inputs, err := s.tasks.TasksForDate(gctx, date)
		if err != nil {
			return fmt.Errorf("failed to load tasks for %s: %w", date, err)
		}
		day.inputs = inputs
		return nil
	})
	g.Go(func() error {
		d, err := s.defaults.DefaultsForDate(gctx, date)
		if errors.Is(err, ErrDefaultsNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load default parameters for %s: %w", date, err)
		}
		day.defaults = d
		return nil
	})
	g.Go(func() error {
		saved, err := s.records.SavedRecords(gctx, date)
		if err != nil {
			return fmt.Errorf("failed to load saved records for %s: %w", date, err)
		}
		day.saved = saved
		return nil
	})
	g.Go(func() error {
		reasons, err := s.reasons.DowntimeReasons(gctx)
		if err != nil {
			return fmt.Errorf("failed to load downtime reasons: %w", err)
		}
		day.reasons = reasons
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if day.defaults == nil {
		s.log.Debugw("no default parameters, figures will be zero", "date", date.String())
	}
	s.restoreApprovals(date, &day)
	return &day, nil
}

// restoreApprovals seeds the approval book from persisted decisions the
// first time a pilot-day is seen.
func (s *Service) restoreApprovals(date Date, day *dayData) {
	for pilotID, rec := range day.saved {
		key := Key{Date: date, PilotID: pilotID}
		if s.approvals.Has(key) {
			continue
		}
		var reason *DowntimeReason
		if rec.DowntimeApproval == ApprovalApproved {
			// A reason retired from the list cannot back an approval.
			if r, ok := lookupReasonByText(day.reasons, rec.DowntimeReason); ok {
				reason = &r
			}
		}
		if _, err := s.approvals.Restore(key, rec.DowntimeApproval, reason); err != nil {
			s.log.Warnw("refusing persisted approval, pilot-day left pending",
				"key", key.String(), "status", rec.DowntimeApproval.String(), "error", err)
		}
	}
}

func lookupReasonByText(reasons []DowntimeReason, text string) (DowntimeReason, bool) {
	for _, r := range reasons {
		if r.Text == text {
			return r, true
		}
	}
	return DowntimeReason{}, false
}

func lookupReasonByID(reasons []DowntimeReason, id string) (DowntimeReason, bool) {
	for _, r := range reasons {
		if r.ID == id {
			return r, true
		}
	}
	return DowntimeReason{}, false
}

// =============================================================================
// EVALUATION
// =============================================================================

func (s *Service) evaluate(key Key, input PilotDayInput, day *dayData, inFlight bool) BoardEntry {
	state := s.approvals.Get(key)
	stats := Compute(input, day.defaults, state.Approval)

	var saved *SavedRecord
	if rec, ok := day.saved[key.PilotID]; ok {
		saved = &rec
	}
	rec := Reconcile(stats, state.Approval, saved)
	gate := Decide(GateInput{
		InFlight:       inFlight,
		Approval:       state.Approval,
		Saved:          saved,
		Reconciliation: rec,
	})
	s.observer.GateEvaluated(gate.Label)

	return BoardEntry{
		Key:            key,
		PilotName:      input.PilotName,
		TaskCount:      len(input.Tasks),
		Stats:          stats,
		Approval:       state,
		Saved:          saved,
		Reconciliation: rec,
		Gate:           gate,
	}
}

// Board evaluates every pilot the task feed returns for date.
func (s *Service) Board(ctx context.Context, date Date) (*Board, error) {
	day, err := s.loadDay(ctx, date)
	if err != nil {
		return nil, err
	}

	entries := make([]BoardEntry, len(day.inputs))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, input := range day.inputs {
		i, input := i, input
		g.Go(func() error {
			key := Key{Date: date, PilotID: input.PilotID}
			entries[i] = s.evaluate(key, input, day, s.inFlight.Busy(key))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].PilotName != entries[j].PilotName {
			return entries[i].PilotName < entries[j].PilotName
		}
		return entries[i].Key.PilotID < entries[j].Key.PilotID
	})

	board := &Board{
		Date:          date,
		Defaults:      day.defaults,
		DefaultsFound: day.defaults != nil,
		Entries:       entries,
		Totals: BoardTotals{
			Assigned:     decimal.Zero,
			Covered:      decimal.Zero,
			Canceled:     decimal.Zero,
			DailyEarning: decimal.Zero,
		},
	}
	for _, e := range entries {
		board.Totals.Assigned = board.Totals.Assigned.Add(e.Stats.Assigned)
		board.Totals.Covered = board.Totals.Covered.Add(e.Stats.OpsRoomCovered)
		board.Totals.Canceled = board.Totals.Canceled.Add(e.Stats.Canceled)
		board.Totals.DailyEarning = board.Totals.DailyEarning.Add(e.Stats.DailyEarning)
	}
	return board, nil
}

// Entry evaluates a single pilot-day.
func (s *Service) Entry(ctx context.Context, key Key) (*BoardEntry, error) {
	entry, _, err := s.entry(ctx, key, s.inFlight.Busy(key))
	return entry, err
}

func (s *Service) entry(ctx context.Context, key Key, inFlight bool) (*BoardEntry, *dayData, error) {
	day, err := s.loadDay(ctx, key.Date)
	if err != nil {
		return nil, nil, err
	}
	for _, input := range day.inputs {
		if input.PilotID == key.PilotID {
			e := s.evaluate(key, input, day, inFlight)
			return &e, day, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrPilotNotFound, key)
}

// Drift returns the verified entries of date whose saved record no longer
// matches the current computation.
func (s *Service) Drift(ctx context.Context, date Date) ([]BoardEntry, error) {
	board, err := s.Board(ctx, date)
	if err != nil {
		return nil, err
	}
	var drifted []BoardEntry
	for _, e := range board.Entries {
		if e.Saved != nil && e.Saved.IsVerified() && !e.Reconciliation.IsMatch {
			drifted = append(drifted, e)
		}
	}
	s.observer.DriftDetected(date, len(drifted))
	return drifted, nil
}

// =============================================================================
// APPROVAL OPERATIONS
// =============================================================================

// SetApprovalStatus applies the operator's status choice. Choosing Approved
// only enters the awaiting-reason sub-state; SelectReason completes it.
func (s *Service) SetApprovalStatus(ctx context.Context, key Key, status ApprovalStatus, actor string) (ApprovalState, error) {
	ev, err := EventForStatus(status)
	if err != nil {
		return s.approvals.Get(key), err
	}
	return s.applyApproval(ctx, key, ev, actor)
}

// SelectReason completes a pending approve-intent with the reason reasonID.
func (s *Service) SelectReason(ctx context.Context, key Key, reasonID string, actor string) (ApprovalState, error) {
	reasons, err := s.reasons.DowntimeReasons(ctx)
	if err != nil {
		return s.approvals.Get(key), fmt.Errorf("failed to load downtime reasons: %w", err)
	}
	reason, ok := lookupReasonByID(reasons, reasonID)
	if !ok {
		return s.approvals.Get(key), fmt.Errorf("%w: %q", ErrUnknownReason, reasonID)
	}
	return s.applyApproval(ctx, key, Event{Type: EventSelectReason, Reason: &reason}, actor)
}

// CancelApproval abandons a pending approve-intent.
func (s *Service) CancelApproval(ctx context.Context, key Key, actor string) (ApprovalState, error) {
	return s.applyApproval(ctx, key, Event{Type: EventCancelApproval}, actor)
}

func (s *Service) applyApproval(ctx context.Context, key Key, ev Event, actor string) (ApprovalState, error) {
	// Loading the day both validates the pilot and seeds the book from the
	// saved record before the first transition.
	if _, _, err := s.entry(ctx, key, false); err != nil {
		return s.approvals.Get(key), err
	}

	prev, next, err := s.approvals.Apply(key, ev)
	if err != nil {
		s.log.Infow("approval transition refused", "key", key.String(), "event", ev.Type, "error", err)
		s.recordAudit(ctx, key, actor, AuditApprovalRefused, map[string]any{
			"event": string(ev.Type),
			"from":  prev.Status().String(),
			"error": err.Error(),
		})
		return next, err
	}

	s.log.Infow("approval transition",
		"key", key.String(), "event", ev.Type,
		"from", prev.Approval.String(), "to", next.Approval.String(),
		"awaiting_reason", next.AwaitingReason)
	s.recordAudit(ctx, key, actor, AuditApprovalChanged, map[string]any{
		"event":           string(ev.Type),
		"from":            prev.Status().String(),
		"to":              next.Status().String(),
		"reason":          next.ReasonText(),
		"awaiting_reason": next.AwaitingReason,
	})
	return next, nil
}

// =============================================================================
// SAVE
// =============================================================================

// Save persists the current figures for key if the gate permits it.
func (s *Service) Save(ctx context.Context, key Key, actor string) (*SaveResult, error) {
	mode, record, err := s.persist(ctx, key, actor)
	if err != nil {
		return nil, err
	}

	// The flag is released by now; the returned entry reflects the new
	// baseline.
	entry, err := s.Entry(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("saved but failed to re-evaluate %s: %w", key, err)
	}
	return &SaveResult{Mode: mode, Record: record, Entry: *entry}, nil
}

func (s *Service) persist(ctx context.Context, key Key, actor string) (SaveMode, SavedRecord, error) {
	if !s.inFlight.TryAcquire(key) {
		s.observer.SaveFinished(ModeNone, ErrSaveInFlight)
		return ModeNone, SavedRecord{}, &GateError{Key: key, Label: LabelSaving}
	}
	defer s.inFlight.Release(key)

	entry, _, err := s.entry(ctx, key, false)
	if err != nil {
		return ModeNone, SavedRecord{}, err
	}

	if !entry.Gate.Enabled {
		gateErr := &GateError{Key: key, Label: entry.Gate.Label}
		s.observer.SaveFinished(ModeNone, gateErr)
		s.recordAudit(ctx, key, actor, AuditSaveRefused, map[string]any{
			"label": string(entry.Gate.Label),
		})
		return ModeNone, SavedRecord{}, gateErr
	}

	record := NewSavedRecord(key, entry.Stats, entry.Approval.Approval)
	record.UpdatedAt = s.now().UTC()

	if err := s.records.UpsertRecord(ctx, record); err != nil {
		s.log.Errorw("failed to persist earnings record", "key", key.String(), "mode", entry.Gate.Mode, "error", err)
		s.observer.SaveFinished(entry.Gate.Mode, err)
		s.recordAudit(ctx, key, actor, AuditSaveFailed, map[string]any{
			"mode":  string(entry.Gate.Mode),
			"error": err.Error(),
		})
		return ModeNone, SavedRecord{}, fmt.Errorf("failed to persist earnings record for %s: %w", key, err)
	}

	s.log.Infow("earnings record saved",
		"key", key.String(), "mode", entry.Gate.Mode,
		"total_revenue", record.TotalRevenue.StringFixed(2),
		"differences", len(entry.Reconciliation.Differences))
	s.observer.SaveFinished(entry.Gate.Mode, nil)
	s.recordAudit(ctx, key, actor, AuditSaveSucceeded, map[string]any{
		"mode":          string(entry.Gate.Mode),
		"total_revenue": record.TotalRevenue.StringFixed(2),
	})
	return entry.Gate.Mode, record, nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (s *Service) recordAudit(ctx context.Context, key Key, actor string, action AuditAction, payload map[string]any) {
	if s.audit == nil {
		return
	}
	if actor == "" {
		actor = "system"
	}
	entry := AuditEntry{
		ID:      uuid.NewString(),
		At:      s.now().UTC(),
		Actor:   actor,
		Action:  action,
		Date:    key.Date,
		PilotID: key.PilotID,
		Payload: payload,
	}
	// Audit failures never fail the operation they describe.
	if err := s.audit.AppendAudit(ctx, entry); err != nil {
		s.log.Warnw("failed to append audit entry", "key", key.String(), "action", action, "error", err)
	}
}

// AuditTrail queries the audit log.
func (s *Service) AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.QueryAudit(ctx, filter)
}

// DefaultParameters returns the pay rates of date, or ErrDefaultsNotFound.
func (s *Service) DefaultParameters(ctx context.Context, date Date) (*DefaultParameters, error) {
	return s.defaults.DefaultsForDate(ctx, date)
}

// DowntimeReasons returns the reason list.
func (s *Service) DowntimeReasons(ctx context.Context) ([]DowntimeReason, error) {
	return s.reasons.DowntimeReasons(ctx)
}
