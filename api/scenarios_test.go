/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario leaves the board in the state it describes:
	- Figures match the documented amounts
	- Approvals are in the documented state
	- Gate labels match for every pilot

These tests double as end-to-end checks of the engine through the HTTP API.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/earnings-engine/earnings"
)

func (ts *testServer) loadScenario(id string) {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (ts *testServer) boardByPilot() map[string]BoardEntryDTO {
	ts.t.Helper()
	rec := ts.do(http.MethodGet, "/api/earnings/"+ScenarioDate.String(), nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())

	out := make(map[string]BoardEntryDTO)
	for _, e := range decodeBody[BoardDTO](ts.t, rec).Entries {
		out[e.PilotID] = e
	}
	return out
}

func TestScenarios_Listed(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})

	rec := ts.do(http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decodeBody[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarios))
	for _, s := range list {
		assert.NotEmpty(t, s.Name, s.ID)
		assert.Equal(t, "2025-03-10", s.Date, s.ID)
	}
}

func TestScenario_Figures(t *testing.T) {
	tests := []struct {
		id           string
		dailyEarning string
		status       string
		awaiting     bool
		label        string
	}{
		{"area-bonus", "400.00", "pending", false, "downtime approval pending"},
		{"downtime-approved", "500.00", "approved", false, "save"},
		{"approval-needs-reason", "0.00", "pending", true, "downtime approval pending"},
		{"verified-completed", "400.00", "declined", false, "completed"},
		{"verified-drift", "700.00", "declined", false, "update"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ts := newTestServer(t, RouterOptions{})
			ts.loadScenario(tt.id)

			e, ok := ts.boardByPilot()["p-1"]
			require.True(t, ok)
			assert.Equal(t, tt.dailyEarning, e.Stats.DailyEarning)
			assert.Equal(t, tt.status, e.Approval.Status)
			assert.Equal(t, tt.awaiting, e.Approval.AwaitingReason)
			assert.Equal(t, tt.label, e.Gate.Label)
		})
	}
}

func TestScenario_VerifiedDriftReportsDifferences(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	ts.loadScenario("verified-drift")

	e := ts.boardByPilot()["p-1"]
	require.NotNil(t, e.Saved)
	assert.Equal(t, "400.00", e.Saved.TotalRevenue)
	assert.False(t, e.Reconciliation.IsMatch)

	fields := make(map[string]DifferenceDTO)
	for _, d := range e.Reconciliation.Differences {
		fields[d.Field] = d
	}
	assert.Equal(t, DifferenceDTO{Field: "covered", Current: "12.00", Saved: "9.00"}, fields["covered"])
	assert.Contains(t, fields, "total_revenue")

	rec := ts.do(http.MethodGet, "/api/earnings/2025-03-10/drift", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	drifted := decodeBody[[]BoardEntryDTO](t, rec)
	require.Len(t, drifted, 1)
	assert.Equal(t, "p-1", drifted[0].PilotID)

	// Updating clears the drift.
	rec = ts.do(http.MethodPost, pilotPath+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "update", decodeBody[SaveResponse](t, rec).Mode)
	assert.Equal(t, "completed", ts.boardByPilot()["p-1"].Gate.Label)
}

func TestScenario_MultiPilotDay(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	ts.loadScenario("multi-pilot-day")

	board := ts.boardByPilot()
	require.Len(t, board, 5)

	want := map[string]string{
		"p-1": "save",
		"p-2": "completed",
		"p-3": "update",
		"p-4": "save",
		"p-5": "downtime approval pending",
	}
	for id, label := range want {
		assert.Equal(t, label, board[id].Gate.Label, id)
	}
	assert.Equal(t, "500.00", board["p-4"].Stats.DailyEarning)
	assert.Equal(t, "Equipment failure", board["p-4"].Approval.Reason)
	assert.Equal(t, "5.00", board["p-4"].Stats.Canceled)
}

func TestScenario_ReloadForgetsApprovals(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	ts.loadScenario("downtime-approved")
	ts.loadScenario("area-bonus")

	e := ts.boardByPilot()["p-1"]
	assert.Equal(t, "pending", e.Approval.Status)
	assert.Nil(t, e.Saved)

	rec := ts.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "area-bonus", decodeBody[ScenarioDTO](t, rec).ID)
}

func TestLoadScenario_Refused(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})

	rec := ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.handler.ScenariosEnabled = false
	rec = ts.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "area-bonus"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// DRIFT SCANNER
// =============================================================================

func TestDriftScanner_RunNow(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})
	ctx := context.Background()

	_, err := SeedScenario(ctx, ts.svc, ts.mem, "verified-drift")
	require.NoError(t, err)

	scanner := NewDriftScanner(ts.svc, nil)
	scanner.LookbackDays = 3
	scanner.today = func() earnings.Date { return ScenarioDate.AddDays(1) }
	assert.Nil(t, scanner.LastReport())

	report := scanner.RunNow(ctx)

	assert.Len(t, report.Dates, 3)
	assert.Equal(t, 0, report.Errors)
	require.Len(t, report.Drifted, 1)
	assert.Equal(t, earnings.PilotID("p-1"), report.Drifted[0].Key.PilotID)
	require.NotNil(t, scanner.LastReport())
	assert.Len(t, scanner.LastReport().Drifted, 1)
}

func TestDriftScanner_DisabledDoesNotStart(t *testing.T) {
	ts := newTestServer(t, RouterOptions{})

	scanner := NewDriftScanner(ts.svc, nil)
	scanner.Enabled = false
	scanner.Start()
	scanner.Stop()

	assert.Nil(t, scanner.LastReport())
}
