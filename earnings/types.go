/*
Package earnings provides the daily pilot-earnings engine.

PURPOSE:
  Turns raw per-field task records for one pilot on one day into earnings
  figures, tracks the downtime approval decision an operator makes for that
  pilot-day, and decides whether the freshly computed figures may be saved
  over the last persisted record.

KEY CONCEPTS IN THIS FILE (types.go):
  - TaskRecord: One field worked (or cancelled) by a pilot on a day
  - PilotDayInput: All task records of one pilot for one day
  - DefaultParameters: Day-level pay rates
  - ComputedStats: Everything derived from the inputs (never stored)
  - SavedRecord: The persisted, possibly verified, earnings record
  - Key: Identifies a pilot-day (date + pilot)

DESIGN PRINCIPLES:
  1. Precision: All areas and amounts are decimal.Decimal, rounded to 2 places
  2. Purity: Computation never touches storage; only saves are side effects
  3. Explicit state: Approval and in-flight flags live in keyed stores owned
     by the engine, not by the presentation layer

USAGE:
  totals := earnings.Aggregate(input.Tasks)
  stats := earnings.CalculateRevenue(totals, defaults, approval)
  rec := earnings.Reconcile(stats, approval, saved)
  decision := earnings.Decide(earnings.GateInput{...})

SEE ALSO:
  - aggregate.go: Task Aggregator
  - revenue.go: Revenue Calculator
  - approval.go: Downtime approval state machine
  - reconcile.go: Reconciliation against the saved record
  - gate.go: Persistence gate
  - service.go: Orchestration over the external feeds
*/
package earnings

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PilotID string

// Key identifies one pilot on one calendar day.
type Key struct {
	Date    Date
	PilotID PilotID
}

func (k Key) String() string { return k.Date.String() + "/" + string(k.PilotID) }

// =============================================================================
// TASK RECORDS - Raw input from the task feed
// =============================================================================

type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskCancelled TaskStatus = "x"
)

func (s TaskStatus) IsCancelled() bool { return s == TaskCancelled }

// TaskRecord is one field assigned to a pilot for a day.
// Zero-valued areas stand in for values the feed did not provide.
type TaskRecord struct {
	FieldID        string
	FieldArea      decimal.Decimal
	Status         TaskStatus
	PilotFieldArea decimal.Decimal
	DJIFieldArea   decimal.Decimal
}

// PilotDayInput is what the task feed supplies for one pilot on one date.
type PilotDayInput struct {
	PilotID   PilotID
	PilotName string
	Tasks     []TaskRecord
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// DefaultParameters are the pay rates in force for a calendar date.
type DefaultParameters struct {
	Date            Date
	AmountPerHaDay  decimal.Decimal
	MinimumHaPerDay decimal.Decimal
	AmountIfStopped decimal.Decimal
}

// DowntimeReason is one entry of the system-wide list an operator picks from
// when approving a downtime stipend.
type DowntimeReason struct {
	ID   string
	Text string
}

// =============================================================================
// COMPUTED STATS - Derived, never stored
// =============================================================================

// AreaTotals is the output of the Task Aggregator.
type AreaTotals struct {
	Assigned       decimal.Decimal
	Canceled       decimal.Decimal
	PilotCovered   decimal.Decimal
	OpsRoomCovered decimal.Decimal
}

type ComputedStats struct {
	AreaTotals

	CoveredRevenue     decimal.Decimal
	DowntimePayment    decimal.Decimal
	DailyEarning       decimal.Decimal
	IsDowntimeApproved bool
}

// =============================================================================
// SAVED RECORD - Persisted and authoritative
// =============================================================================

const (
	Unverified = 0
	Verified   = 1
)

type SavedRecord struct {
	PilotID          PilotID
	Date             Date
	Assigned         decimal.Decimal
	Covered          decimal.Decimal
	Cancel           decimal.Decimal
	CoveredRevenue   decimal.Decimal
	DowntimeReason   string
	DowntimeApproval ApprovalStatus
	DowntimePayment  decimal.Decimal
	TotalRevenue     decimal.Decimal
	Verified         int
	UpdatedAt        time.Time
}

func (r SavedRecord) Key() Key { return Key{Date: r.Date, PilotID: r.PilotID} }

func (r SavedRecord) IsVerified() bool { return r.Verified == Verified }

// NewSavedRecord builds the payload the persistence sink receives after a
// permitted save. The record is always marked verified.
func NewSavedRecord(key Key, stats ComputedStats, approval Approval) SavedRecord {
	return SavedRecord{
		PilotID:          key.PilotID,
		Date:             key.Date,
		Assigned:         stats.Assigned,
		Covered:          stats.OpsRoomCovered,
		Cancel:           stats.Canceled,
		CoveredRevenue:   stats.CoveredRevenue,
		DowntimeReason:   approval.ReasonText(),
		DowntimeApproval: approval.Status(),
		DowntimePayment:  stats.DowntimePayment,
		TotalRevenue:     stats.DailyEarning,
		Verified:         Verified,
	}
}

// =============================================================================
// ROUNDING
// =============================================================================

// Round2 rounds half away from zero to two decimal places. Every figure the
// engine produces goes through it so stored and recomputed values compare
// equal.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
