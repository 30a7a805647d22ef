package earnings_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/earnings-engine/earnings"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func task(area, pilotArea, djiArea string, status earnings.TaskStatus) earnings.TaskRecord {
	return earnings.TaskRecord{
		FieldArea:      dec(area),
		Status:         status,
		PilotFieldArea: dec(pilotArea),
		DJIFieldArea:   dec(djiArea),
	}
}

func scenarioDefaults() *earnings.DefaultParameters {
	return &earnings.DefaultParameters{
		Date:            earnings.MustParseDate("2025-03-10"),
		AmountPerHaDay:  dec("100"),
		MinimumHaPerDay: dec("5"),
		AmountIfStopped: dec("500"),
	}
}

func approved(t *testing.T, text string) earnings.Approval {
	t.Helper()
	a, err := earnings.NewApproval(earnings.ApprovalApproved, &earnings.DowntimeReason{ID: "r1", Text: text})
	require.NoError(t, err)
	return a
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

// =============================================================================
// AGGREGATOR
// =============================================================================

func TestAggregate_SumsAllFields(t *testing.T) {
	totals := earnings.Aggregate([]earnings.TaskRecord{
		task("10", "8", "9", earnings.TaskActive),
		task("4.5", "0", "0", earnings.TaskCancelled),
		task("2.25", "2", "2.1", "p"),
	})

	assertDec(t, "16.75", totals.Assigned, "assigned")
	assertDec(t, "4.5", totals.Canceled, "canceled")
	assertDec(t, "10", totals.PilotCovered, "pilot covered")
	assertDec(t, "11.1", totals.OpsRoomCovered, "ops room covered")
}

func TestAggregate_CanceledCountsOnlyCancelledStatus(t *testing.T) {
	tasks := []earnings.TaskRecord{
		task("1", "0", "0", earnings.TaskCancelled),
		task("2", "0", "0", earnings.TaskActive),
		task("3", "0", "0", "cancelled"), // not the cancelled code
		task("4", "0", "0", earnings.TaskCancelled),
		task("8", "0", "0", ""),
	}

	totals := earnings.Aggregate(tasks)

	want := decimal.Zero
	for _, tk := range tasks {
		if tk.Status == earnings.TaskCancelled {
			want = want.Add(tk.FieldArea)
		}
	}
	assertDec(t, want.String(), totals.Canceled, "canceled")
	assertDec(t, "5", totals.Canceled, "canceled")
	assertDec(t, "18", totals.Assigned, "assigned")
}

func TestAggregate_EmptyAndZeroValues(t *testing.T) {
	totals := earnings.Aggregate(nil)
	assert.True(t, totals.Assigned.IsZero())
	assert.True(t, totals.OpsRoomCovered.IsZero())

	// Zero-valued decimals stand in for missing feed values.
	totals = earnings.Aggregate([]earnings.TaskRecord{{Status: earnings.TaskActive}})
	assert.True(t, totals.Assigned.IsZero())
	assert.True(t, totals.PilotCovered.IsZero())
}

func TestAggregate_RoundsHalfAwayFromZero(t *testing.T) {
	totals := earnings.Aggregate([]earnings.TaskRecord{
		task("1.005", "1.004", "2.675", earnings.TaskActive),
		task("0", "0", "0", earnings.TaskActive),
	})
	assertDec(t, "1.01", totals.Assigned, "assigned")
	assertDec(t, "1", totals.PilotCovered, "pilot covered")
	assertDec(t, "2.68", totals.OpsRoomCovered, "ops room covered")

	assertDec(t, "-1.01", earnings.Round2(dec("-1.005")), "negative")
}

// =============================================================================
// REVENUE CALCULATOR
// =============================================================================

func TestCalculateRevenue_AreaBonus(t *testing.T) {
	input := earnings.PilotDayInput{
		PilotID: "p-1",
		Tasks:   []earnings.TaskRecord{task("10", "8", "9", earnings.TaskActive)},
	}

	stats := earnings.Compute(input, scenarioDefaults(), earnings.PendingApproval())

	assertDec(t, "10.00", stats.Assigned, "assigned")
	assertDec(t, "9.00", stats.OpsRoomCovered, "ops room covered")
	assertDec(t, "400.00", stats.CoveredRevenue, "covered revenue")
	assertDec(t, "0", stats.DowntimePayment, "downtime payment")
	assertDec(t, "400.00", stats.DailyEarning, "daily earning")
	assert.False(t, stats.IsDowntimeApproved)
}

func TestCalculateRevenue_ApprovedDowntimeWins(t *testing.T) {
	input := earnings.PilotDayInput{
		PilotID: "p-1",
		Tasks:   []earnings.TaskRecord{task("10", "8", "9", earnings.TaskActive)},
	}

	stats := earnings.Compute(input, scenarioDefaults(), approved(t, "Weather"))

	assertDec(t, "400.00", stats.CoveredRevenue, "covered revenue")
	assertDec(t, "500.00", stats.DowntimePayment, "downtime payment")
	assertDec(t, "500.00", stats.DailyEarning, "daily earning")
	assert.True(t, stats.IsDowntimeApproved)
}

func TestCalculateRevenue_ExactlyMinimumPaysNothing(t *testing.T) {
	totals := earnings.AreaTotals{OpsRoomCovered: dec("5")}
	stats := earnings.CalculateRevenue(totals, scenarioDefaults(), earnings.PendingApproval())
	assert.True(t, stats.CoveredRevenue.IsZero())

	totals.OpsRoomCovered = dec("5.01")
	stats = earnings.CalculateRevenue(totals, scenarioDefaults(), earnings.PendingApproval())
	assertDec(t, "1", stats.CoveredRevenue, "covered revenue")
}

func TestCalculateRevenue_DeclinedAndPendingPayNoStipend(t *testing.T) {
	totals := earnings.AreaTotals{OpsRoomCovered: dec("1")}
	for _, a := range []earnings.Approval{earnings.PendingApproval(), earnings.DeclinedApproval()} {
		stats := earnings.CalculateRevenue(totals, scenarioDefaults(), a)
		assert.True(t, stats.DowntimePayment.IsZero(), a.String())
		assert.True(t, stats.DailyEarning.IsZero(), a.String())
	}
}

func TestCalculateRevenue_NoDefaultsYieldsZero(t *testing.T) {
	totals := earnings.AreaTotals{Assigned: dec("20"), OpsRoomCovered: dec("18")}

	stats := earnings.CalculateRevenue(totals, nil, approved(t, "Rain"))

	assert.True(t, stats.CoveredRevenue.IsZero())
	assert.True(t, stats.DowntimePayment.IsZero())
	assert.True(t, stats.DailyEarning.IsZero())
	assert.True(t, stats.IsDowntimeApproved)
	assertDec(t, "20", stats.Assigned, "assigned")
}

func TestCalculateRevenue_DailyEarningIsMax(t *testing.T) {
	cases := []struct {
		covered  string
		approval earnings.Approval
	}{
		{"0", earnings.PendingApproval()},
		{"3", approved(t, "Wind")},
		{"9", approved(t, "Wind")},
		{"12", approved(t, "Wind")},
		{"12", earnings.DeclinedApproval()},
		{"5.555", approved(t, "Wind")},
	}
	for _, tc := range cases {
		totals := earnings.AreaTotals{OpsRoomCovered: dec(tc.covered)}
		stats := earnings.CalculateRevenue(totals, scenarioDefaults(), tc.approval)
		want := decimal.Max(stats.CoveredRevenue, stats.DowntimePayment)
		assert.Truef(t, want.Equal(stats.DailyEarning), "covered %s: daily %s, want %s", tc.covered, stats.DailyEarning, want)
	}
}
