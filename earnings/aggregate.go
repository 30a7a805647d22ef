package earnings

import "github.com/shopspring/decimal"

// =============================================================================
// TASK AGGREGATOR
// =============================================================================

// Aggregate reduces one pilot's task records for a day into the four area
// sums. Canceled only counts tasks whose status is the cancelled code; every
// other status (active or not) contributes to Assigned alone.
func Aggregate(tasks []TaskRecord) AreaTotals {
	assigned := decimal.Zero
	canceled := decimal.Zero
	pilotCovered := decimal.Zero
	opsRoomCovered := decimal.Zero

	for _, t := range tasks {
		assigned = assigned.Add(t.FieldArea)
		if t.Status.IsCancelled() {
			canceled = canceled.Add(t.FieldArea)
		}
		pilotCovered = pilotCovered.Add(t.PilotFieldArea)
		opsRoomCovered = opsRoomCovered.Add(t.DJIFieldArea)
	}

	return AreaTotals{
		Assigned:       Round2(assigned),
		Canceled:       Round2(canceled),
		PilotCovered:   Round2(pilotCovered),
		OpsRoomCovered: Round2(opsRoomCovered),
	}
}
