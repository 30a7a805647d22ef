/*
approval.go - Downtime approval state machine

PURPOSE:
  Tracks, per pilot-day, whether the operator approved a downtime stipend.
  Approval is human-gated: it only becomes effective once a reason from the
  system-wide reason list has been chosen.

STATES:
  ┌─────────┐  set_declined  ┌──────────┐
  │ Pending │ ─────────────▶ │ Declined │
  │   (0)   │ ◀───────────── │   (2)    │
  └─────────┘  set_pending   └──────────┘
       │  begin_approval          │
       ▼                          ▼
  ┌───────────────────────────────────┐  cancel_approval
  │ AwaitingReason (remembers prior)  │ ──────────────────▶ prior state
  └───────────────────────────────────┘
       │ select_reason(reason)
       ▼
  ┌──────────┐  set_pending / set_declined (reason dropped)
  │ Approved │ ─────────────────────────────────────────────▶
  │   (1)    │
  └──────────┘

INVARIANT:
  An Approved state always carries a non-empty reason, and a non-Approved
  state never carries one. Approval fields are unexported so the only ways
  to build one are NewApproval and Transition, both of which enforce it.

AWAITING REASON:
  The sub-state is not a business state. While awaiting, the committed state
  (and therefore the stipend) is whatever it was before the attempt.
*/
package earnings

import (
	"fmt"
	"strings"
	"sync"
)

// =============================================================================
// APPROVAL STATUS
// =============================================================================

// ApprovalStatus values are the numeric codes stored in downtime_approval.
type ApprovalStatus int

const (
	ApprovalPending  ApprovalStatus = 0
	ApprovalApproved ApprovalStatus = 1
	ApprovalDeclined ApprovalStatus = 2
)

func (s ApprovalStatus) String() string {
	switch s {
	case ApprovalPending:
		return "pending"
	case ApprovalApproved:
		return "approved"
	case ApprovalDeclined:
		return "declined"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s ApprovalStatus) Valid() bool {
	return s == ApprovalPending || s == ApprovalApproved || s == ApprovalDeclined
}

// ParseApprovalStatus accepts the lower-case names used on the wire.
func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return ApprovalPending, nil
	case "approved":
		return ApprovalApproved, nil
	case "declined":
		return ApprovalDeclined, nil
	}
	return ApprovalPending, fmt.Errorf("%w: %q", ErrUnknownApprovalStatus, s)
}

// ApprovalStatusFromCode maps a stored numeric code back to a status.
func ApprovalStatusFromCode(code int) (ApprovalStatus, error) {
	s := ApprovalStatus(code)
	if !s.Valid() {
		return ApprovalPending, fmt.Errorf("%w: %d", ErrUnknownApprovalStatus, code)
	}
	return s, nil
}

// =============================================================================
// APPROVAL - Committed decision for a pilot-day
// =============================================================================

type Approval struct {
	status ApprovalStatus
	reason *DowntimeReason
}

// PendingApproval is the initial state of every pilot-day.
func PendingApproval() Approval { return Approval{status: ApprovalPending} }

// DeclinedApproval is a declined decision.
func DeclinedApproval() Approval { return Approval{status: ApprovalDeclined} }

// NewApproval builds a committed approval. Approved requires a reason with
// non-blank text; the reason is dropped for any other status.
func NewApproval(status ApprovalStatus, reason *DowntimeReason) (Approval, error) {
	if !status.Valid() {
		return Approval{}, fmt.Errorf("%w: %d", ErrUnknownApprovalStatus, int(status))
	}
	if status != ApprovalApproved {
		return Approval{status: status}, nil
	}
	if reason == nil || strings.TrimSpace(reason.Text) == "" {
		return Approval{}, ErrReasonRequired
	}
	r := *reason
	return Approval{status: ApprovalApproved, reason: &r}, nil
}

func (a Approval) Status() ApprovalStatus { return a.status }
func (a Approval) IsApproved() bool       { return a.status == ApprovalApproved }
func (a Approval) IsPending() bool        { return a.status == ApprovalPending }

// Reason returns the chosen reason; ok is false unless Approved.
func (a Approval) Reason() (DowntimeReason, bool) {
	if a.reason == nil {
		return DowntimeReason{}, false
	}
	return *a.reason, true
}

// ReasonText is the reason text, or "" when not Approved.
func (a Approval) ReasonText() string {
	if a.reason == nil {
		return ""
	}
	return a.reason.Text
}

func (a Approval) String() string {
	if a.IsApproved() {
		return fmt.Sprintf("%s(%s)", a.status, a.reason.Text)
	}
	return a.status.String()
}

// =============================================================================
// STATE MACHINE
// =============================================================================

// ApprovalState is the committed approval plus the transient sub-state
// entered on approve-intent.
type ApprovalState struct {
	Approval
	AwaitingReason bool
}

type EventType string

const (
	EventSetPending     EventType = "set_pending"
	EventSetDeclined    EventType = "set_declined"
	EventBeginApproval  EventType = "begin_approval"
	EventSelectReason   EventType = "select_reason"
	EventCancelApproval EventType = "cancel_approval"
	// EventSetApproved commits Approved in one step. It still needs a reason;
	// it exists for restoring persisted decisions.
	EventSetApproved EventType = "set_approved"
)

type Event struct {
	Type   EventType
	Reason *DowntimeReason
}

// Transition returns the state that results from applying ev to state. On
// error the returned state is the input state, unchanged.
func Transition(state ApprovalState, ev Event) (ApprovalState, error) {
	refuse := func(err error) (ApprovalState, error) {
		return state, &TransitionError{From: state.status, Event: ev.Type, Err: err}
	}

	switch ev.Type {
	case EventSetPending:
		return ApprovalState{Approval: PendingApproval()}, nil

	case EventSetDeclined:
		return ApprovalState{Approval: DeclinedApproval()}, nil

	case EventBeginApproval:
		return ApprovalState{Approval: state.Approval, AwaitingReason: true}, nil

	case EventCancelApproval:
		return ApprovalState{Approval: state.Approval}, nil

	case EventSelectReason:
		if !state.AwaitingReason {
			return refuse(ErrNotAwaitingReason)
		}
		approved, err := NewApproval(ApprovalApproved, ev.Reason)
		if err != nil {
			return refuse(err)
		}
		return ApprovalState{Approval: approved}, nil

	case EventSetApproved:
		approved, err := NewApproval(ApprovalApproved, ev.Reason)
		if err != nil {
			return refuse(err)
		}
		return ApprovalState{Approval: approved}, nil
	}

	return refuse(fmt.Errorf("unknown event %q", ev.Type))
}

// EventForStatus maps a requested status to the event an operator means by
// it. Asking for Approved starts the two-phase flow.
func EventForStatus(status ApprovalStatus) (Event, error) {
	switch status {
	case ApprovalPending:
		return Event{Type: EventSetPending}, nil
	case ApprovalDeclined:
		return Event{Type: EventSetDeclined}, nil
	case ApprovalApproved:
		return Event{Type: EventBeginApproval}, nil
	}
	return Event{}, fmt.Errorf("%w: %d", ErrUnknownApprovalStatus, int(status))
}

// =============================================================================
// APPROVAL BOOK - Keyed store of per pilot-day states
// =============================================================================

// ApprovalBook owns the approval state of every pilot-day the engine has
// seen. All mutation goes through Transition.
type ApprovalBook struct {
	mu      sync.RWMutex
	entries map[Key]ApprovalState
}

func NewApprovalBook() *ApprovalBook {
	return &ApprovalBook{entries: make(map[Key]ApprovalState)}
}

// Get returns the state for key; unknown keys are Pending.
func (b *ApprovalBook) Get(key Key) ApprovalState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if st, ok := b.entries[key]; ok {
		return st
	}
	return ApprovalState{Approval: PendingApproval()}
}

// Has reports whether key has an entry.
func (b *ApprovalBook) Has(key Key) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[key]
	return ok
}

// Apply runs ev against the current state of key and stores the result.
// The previous state is returned alongside the new one.
func (b *ApprovalBook) Apply(key Key, ev Event) (prev, next ApprovalState, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, ok := b.entries[key]
	if !ok {
		prev = ApprovalState{Approval: PendingApproval()}
	}
	next, err = Transition(prev, ev)
	if err != nil {
		return prev, prev, err
	}
	b.entries[key] = next
	return prev, next, nil
}

// Restore seeds key from a persisted decision unless the key already has an
// entry, so in-progress operator changes survive a reload. A persisted
// Approved without reason is refused and the key stays Pending.
func (b *ApprovalBook) Restore(key Key, status ApprovalStatus, reason *DowntimeReason) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[key]; ok {
		return false, nil
	}
	approval, err := NewApproval(status, reason)
	if err != nil {
		return false, err
	}
	b.entries[key] = ApprovalState{Approval: approval}
	return true, nil
}

// Forget drops the entry for key.
func (b *ApprovalBook) Forget(key Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

// Clear drops every entry. Used when the underlying data is reset.
func (b *ApprovalBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[Key]ApprovalState)
}
