/*
reconcile.go - Reconciliation of computed figures against the saved record

PURPOSE:
  Tells the operator whether what the engine computes right now still agrees
  with what was last persisted for the same pilot-day. A verified record that
  no longer agrees has drifted and must be re-saved.

COMPARISON:
  Field by field, exact decimal equality after both sides are decimals.
  There is no tolerance: values are rounded to 2 places before they are
  stored, so a recomputation from unchanged inputs is bit-for-bit equal.

  computed            saved
  ─────────────────   ─────────────────
  Assigned            assigned
  OpsRoomCovered      covered
  Canceled            cancel
  CoveredRevenue      covered_revenue
  DowntimePayment     downtime_payment
  DailyEarning        total_revenue
  approval status     downtime_approval
  reason text         downtime_reason   (only when both sides are Approved)
*/
package earnings

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Field names reported in differences. They match the saved record columns.
const (
	FieldAssigned         = "assigned"
	FieldCovered          = "covered"
	FieldCancel           = "cancel"
	FieldCoveredRevenue   = "covered_revenue"
	FieldDowntimePayment  = "downtime_payment"
	FieldTotalRevenue     = "total_revenue"
	FieldDowntimeApproval = "downtime_approval"
	FieldDowntimeReason   = "downtime_reason"
)

type Difference struct {
	Field   string
	Current string
	Saved   string
}

type Reconciliation struct {
	IsMatch     bool
	HasSaved    bool
	Differences []Difference
}

// Reconcile diffs the current stats and approval against saved. A nil saved
// record always matches, so pilots with nothing persisted are never blocked.
func Reconcile(stats ComputedStats, approval Approval, saved *SavedRecord) Reconciliation {
	if saved == nil {
		return Reconciliation{IsMatch: true}
	}

	var diffs []Difference
	cmp := func(field string, current, stored decimal.Decimal) {
		if !current.Equal(stored) {
			diffs = append(diffs, Difference{
				Field:   field,
				Current: current.StringFixed(2),
				Saved:   stored.StringFixed(2),
			})
		}
	}

	cmp(FieldAssigned, stats.Assigned, saved.Assigned)
	cmp(FieldCovered, stats.OpsRoomCovered, saved.Covered)
	cmp(FieldCancel, stats.Canceled, saved.Cancel)
	cmp(FieldCoveredRevenue, stats.CoveredRevenue, saved.CoveredRevenue)
	cmp(FieldDowntimePayment, stats.DowntimePayment, saved.DowntimePayment)
	cmp(FieldTotalRevenue, stats.DailyEarning, saved.TotalRevenue)

	if approval.Status() != saved.DowntimeApproval {
		diffs = append(diffs, Difference{
			Field:   FieldDowntimeApproval,
			Current: strconv.Itoa(int(approval.Status())),
			Saved:   strconv.Itoa(int(saved.DowntimeApproval)),
		})
	}

	if approval.IsApproved() && saved.DowntimeApproval == ApprovalApproved &&
		approval.ReasonText() != saved.DowntimeReason {
		diffs = append(diffs, Difference{
			Field:   FieldDowntimeReason,
			Current: approval.ReasonText(),
			Saved:   saved.DowntimeReason,
		})
	}

	return Reconciliation{
		IsMatch:     len(diffs) == 0,
		HasSaved:    true,
		Differences: diffs,
	}
}

// Differs reports whether field is among the differences.
func (r Reconciliation) Differs(field string) bool {
	for _, d := range r.Differences {
		if d.Field == field {
			return true
		}
	}
	return false
}
