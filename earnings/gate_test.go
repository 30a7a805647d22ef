package earnings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/earnings-engine/earnings"
)

func TestDecide_RulesInOrder(t *testing.T) {
	verified := &earnings.SavedRecord{Verified: earnings.Verified}
	unverified := &earnings.SavedRecord{Verified: earnings.Unverified}
	match := earnings.Reconciliation{IsMatch: true, HasSaved: true}
	drift := earnings.Reconciliation{IsMatch: false, HasSaved: true}

	cases := []struct {
		name string
		in   earnings.GateInput
		want earnings.GateDecision
	}{
		{
			name: "in flight beats everything",
			in:   earnings.GateInput{InFlight: true, Approval: earnings.DeclinedApproval(), Saved: verified, Reconciliation: drift},
			want: earnings.GateDecision{Label: earnings.LabelSaving},
		},
		{
			name: "pending blocks even a drifted record",
			in:   earnings.GateInput{Approval: earnings.PendingApproval(), Saved: verified, Reconciliation: drift},
			want: earnings.GateDecision{Label: earnings.LabelApprovalPending},
		},
		{
			name: "verified and matching is completed",
			in:   earnings.GateInput{Approval: earnings.DeclinedApproval(), Saved: verified, Reconciliation: match},
			want: earnings.GateDecision{Label: earnings.LabelCompleted},
		},
		{
			name: "verified and drifted is update",
			in:   earnings.GateInput{Approval: earnings.DeclinedApproval(), Saved: verified, Reconciliation: drift},
			want: earnings.GateDecision{Enabled: true, Mode: earnings.ModeUpdate, Label: earnings.LabelUpdate},
		},
		{
			name: "unverified record is save",
			in:   earnings.GateInput{Approval: earnings.DeclinedApproval(), Saved: unverified, Reconciliation: match},
			want: earnings.GateDecision{Enabled: true, Mode: earnings.ModeSave, Label: earnings.LabelSave},
		},
		{
			name: "no record is save",
			in:   earnings.GateInput{Approval: earnings.DeclinedApproval(), Reconciliation: earnings.Reconciliation{IsMatch: true}},
			want: earnings.GateDecision{Enabled: true, Mode: earnings.ModeSave, Label: earnings.LabelSave},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, earnings.Decide(tc.in))
		})
	}
}

func TestDecide_Completed(t *testing.T) {
	stats := scenarioAStats()
	a := earnings.DeclinedApproval()
	saved := earnings.NewSavedRecord(reconcileKey, stats, a)

	got := earnings.Decide(earnings.GateInput{
		Approval:       a,
		Saved:          &saved,
		Reconciliation: earnings.Reconcile(stats, a, &saved),
	})

	assert.False(t, got.Enabled)
	assert.Equal(t, earnings.LabelCompleted, got.Label)
}
