package earnings

// =============================================================================
// PERSISTENCE GATE
// =============================================================================

type SaveMode string

const (
	ModeNone   SaveMode = ""
	ModeSave   SaveMode = "save"
	ModeUpdate SaveMode = "update"
)

type GateLabel string

const (
	LabelSaving          GateLabel = "saving"
	LabelApprovalPending GateLabel = "downtime approval pending"
	LabelCompleted       GateLabel = "completed"
	LabelUpdate          GateLabel = "update"
	LabelSave            GateLabel = "save"
)

type GateInput struct {
	InFlight       bool
	Approval       Approval
	Saved          *SavedRecord
	Reconciliation Reconciliation
}

type GateDecision struct {
	Enabled bool
	Mode    SaveMode
	Label   GateLabel
}

// Decide evaluates the gate rules in order; the first that applies wins.
//  1. a save is in flight            -> disabled, "saving"
//  2. approval still Pending         -> disabled, "downtime approval pending"
//  3. verified and matching          -> disabled, "completed"
//  4. verified and drifted           -> update
//  5. anything else                  -> save
func Decide(in GateInput) GateDecision {
	switch {
	case in.InFlight:
		return GateDecision{Label: LabelSaving}
	case in.Approval.IsPending():
		return GateDecision{Label: LabelApprovalPending}
	}

	verified := in.Saved != nil && in.Saved.IsVerified()
	switch {
	case verified && in.Reconciliation.IsMatch:
		return GateDecision{Label: LabelCompleted}
	case verified:
		return GateDecision{Enabled: true, Mode: ModeUpdate, Label: LabelUpdate}
	default:
		return GateDecision{Enabled: true, Mode: ModeSave, Label: LabelSave}
	}
}
