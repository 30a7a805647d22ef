package earnings

import "github.com/shopspring/decimal"

// =============================================================================
// REVENUE CALCULATOR
// =============================================================================

// CalculateRevenue applies the day's default parameters to aggregated areas.
//
// Covered revenue only pays for hectares strictly above the daily minimum.
// The downtime stipend is paid only for an Approved decision. The pilot
// earns the better of the two, never their sum. With no defaults for the
// day every monetary figure is zero.
func CalculateRevenue(totals AreaTotals, defaults *DefaultParameters, approval Approval) ComputedStats {
	stats := ComputedStats{
		AreaTotals:         totals,
		CoveredRevenue:     decimal.Zero,
		DowntimePayment:    decimal.Zero,
		DailyEarning:       decimal.Zero,
		IsDowntimeApproved: approval.IsApproved(),
	}
	if defaults == nil {
		return stats
	}

	if totals.OpsRoomCovered.GreaterThan(defaults.MinimumHaPerDay) {
		excess := totals.OpsRoomCovered.Sub(defaults.MinimumHaPerDay)
		stats.CoveredRevenue = Round2(excess.Mul(defaults.AmountPerHaDay))
	}
	if approval.IsApproved() {
		stats.DowntimePayment = Round2(defaults.AmountIfStopped)
	}
	stats.DailyEarning = decimal.Max(stats.CoveredRevenue, stats.DowntimePayment)

	return stats
}

// Compute runs the Aggregator and the Revenue Calculator for one pilot-day.
func Compute(input PilotDayInput, defaults *DefaultParameters, approval Approval) ComputedStats {
	return CalculateRevenue(Aggregate(input.Tasks), defaults, approval)
}
