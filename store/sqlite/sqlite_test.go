package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/earnings-engine/earnings"
)

var day = earnings.MustParseDate("2025-03-10")

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTasks_RoundTripGroupedByPilot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inputs := []earnings.PilotDayInput{
		{PilotID: "p-1", PilotName: "Amina", Tasks: []earnings.TaskRecord{
			{FieldID: "f-1", FieldArea: d("10.125"), Status: earnings.TaskActive, PilotFieldArea: d("8"), DJIFieldArea: d("9.5")},
			{FieldID: "f-2", FieldArea: d("2"), Status: earnings.TaskCancelled},
		}},
		{PilotID: "p-2", PilotName: "Bruno", Tasks: []earnings.TaskRecord{
			{FieldID: "f-3", FieldArea: d("6"), Status: earnings.TaskActive, PilotFieldArea: d("2"), DJIFieldArea: d("2")},
		}},
	}
	require.NoError(t, store.PutTasks(ctx, day, inputs))

	got, err := store.TasksForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, earnings.PilotID("p-1"), got[0].PilotID)
	assert.Equal(t, "Amina", got[0].PilotName)
	require.Len(t, got[0].Tasks, 2)
	assert.Equal(t, "f-1", got[0].Tasks[0].FieldID)
	assert.True(t, d("10.125").Equal(got[0].Tasks[0].FieldArea))
	assert.True(t, got[0].Tasks[1].Status.IsCancelled())

	// Replacing the day drops the old rows.
	require.NoError(t, store.PutTasks(ctx, day, inputs[1:]))
	got, err = store.TasksForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, earnings.PilotID("p-2"), got[0].PilotID)

	other, err := store.TasksForDate(ctx, day.AddDays(1))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDefaults_MissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.DefaultsForDate(ctx, day)
	assert.ErrorIs(t, err, earnings.ErrDefaultsNotFound)

	require.NoError(t, store.PutDefaults(ctx, earnings.DefaultParameters{
		Date: day, AmountPerHaDay: d("100"), MinimumHaPerDay: d("5"), AmountIfStopped: d("500"),
	}))
	require.NoError(t, store.PutDefaults(ctx, earnings.DefaultParameters{
		Date: day, AmountPerHaDay: d("120.50"), MinimumHaPerDay: d("5"), AmountIfStopped: d("500"),
	}))

	got, err := store.DefaultsForDate(ctx, day)
	require.NoError(t, err)
	assert.True(t, d("120.5").Equal(got.AmountPerHaDay))
	assert.Equal(t, day, got.Date)

	require.NoError(t, store.DeleteDefaults(ctx, day))
	_, err = store.DefaultsForDate(ctx, day)
	assert.ErrorIs(t, err, earnings.ErrDefaultsNotFound)
}

func TestReasons_OrderAndDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.PutReasons(ctx, []earnings.DowntimeReason{
		{ID: "weather", Text: "Weather"},
		{ID: "equipment", Text: "Equipment failure"},
	}))
	require.NoError(t, store.AddReason(ctx, earnings.DowntimeReason{ID: "permit", Text: "No permit"}))
	assert.ErrorIs(t, store.AddReason(ctx, earnings.DowntimeReason{ID: "weather-2", Text: "Weather"}), earnings.ErrDuplicateReason)

	got, err := store.DowntimeReasons(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "weather", got[0].ID)
	assert.Equal(t, "equipment", got[1].ID)
	assert.Equal(t, "permit", got[2].ID)
}

func TestRecords_UpsertKeepsExactDecimals(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	reason := &earnings.DowntimeReason{ID: "weather", Text: "Weather"}
	approval, err := earnings.NewApproval(earnings.ApprovalApproved, reason)
	require.NoError(t, err)

	stats := earnings.ComputedStats{
		AreaTotals: earnings.AreaTotals{
			Assigned:       d("10.33"),
			Canceled:       d("1.12"),
			PilotCovered:   d("2"),
			OpsRoomCovered: d("2.05"),
		},
		CoveredRevenue:     d("0"),
		DowntimePayment:    d("500"),
		DailyEarning:       d("500"),
		IsDowntimeApproved: true,
	}
	key := earnings.Key{Date: day, PilotID: "p-1"}
	rec := earnings.NewSavedRecord(key, stats, approval)
	require.NoError(t, store.UpsertRecord(ctx, rec))

	saved, err := store.SavedRecords(ctx, day)
	require.NoError(t, err)
	require.Contains(t, saved, earnings.PilotID("p-1"))

	got := saved["p-1"]
	assert.Equal(t, key, got.Key())
	assert.True(t, got.IsVerified())
	assert.Equal(t, earnings.ApprovalApproved, got.DowntimeApproval)
	assert.Equal(t, "Weather", got.DowntimeReason)
	assert.True(t, earnings.Reconcile(stats, approval, &got).IsMatch)

	// Second save is an update, not a second row.
	rec.TotalRevenue = d("700")
	require.NoError(t, store.UpsertRecord(ctx, rec))
	saved, err = store.SavedRecords(ctx, day)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, d("700").Equal(saved["p-1"].TotalRevenue))
}

func TestRecords_UpdatedAtRoundTripAndCorruption(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	at := time.Date(2025, 3, 10, 17, 45, 0, 0, time.UTC)
	rec := earnings.NewSavedRecord(earnings.Key{Date: day, PilotID: "p-1"}, earnings.ComputedStats{}, earnings.DeclinedApproval())
	rec.UpdatedAt = at
	require.NoError(t, store.UpsertRecord(ctx, rec))

	saved, err := store.SavedRecords(ctx, day)
	require.NoError(t, err)
	assert.True(t, at.Equal(saved["p-1"].UpdatedAt))

	// A timestamp that does not parse is an error, not a zero time.
	_, err = store.db.ExecContext(ctx, `UPDATE earnings_records SET updated_at = 'yesterday'`)
	require.NoError(t, err)

	_, err = store.SavedRecords(ctx, day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "updated_at")
}

func TestAudit_FilterNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	entries := []earnings.AuditEntry{
		{ID: "a1", At: base, Actor: "ops", Action: earnings.AuditApprovalChanged, Date: day, PilotID: "p-1",
			Payload: map[string]any{"to": "approved(Weather)"}},
		{ID: "a2", At: base.Add(time.Minute), Actor: "ops", Action: earnings.AuditSaveSucceeded, Date: day, PilotID: "p-1"},
		{ID: "a3", At: base.Add(2 * time.Minute), Actor: "ops", Action: earnings.AuditSaveRefused, Date: day, PilotID: "p-2"},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendAudit(ctx, e))
	}

	all, err := store.QueryAudit(ctx, earnings.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a3", all[0].ID)
	assert.Equal(t, "a1", all[2].ID)
	assert.Equal(t, "approved(Weather)", all[2].Payload["to"])

	pilot := earnings.PilotID("p-1")
	filtered, err := store.QueryAudit(ctx, earnings.AuditFilter{
		Date:    &day,
		PilotID: &pilot,
		Actions: []earnings.AuditAction{earnings.AuditSaveSucceeded},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "a2", filtered[0].ID)

	limited, err := store.QueryAudit(ctx, earnings.AuditFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestService_SaveThroughSQLite(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.PutReasons(ctx, []earnings.DowntimeReason{{ID: "weather", Text: "Weather"}}))
	require.NoError(t, store.PutDefaults(ctx, earnings.DefaultParameters{
		Date: day, AmountPerHaDay: d("100"), MinimumHaPerDay: d("5"), AmountIfStopped: d("500"),
	}))
	require.NoError(t, store.PutTasks(ctx, day, []earnings.PilotDayInput{
		{PilotID: "p-1", PilotName: "Amina", Tasks: []earnings.TaskRecord{
			{FieldID: "f-1", FieldArea: d("10"), Status: earnings.TaskActive, PilotFieldArea: d("2"), DJIFieldArea: d("2")},
		}},
	}))

	newService := func() *earnings.Service {
		return earnings.NewService(earnings.Deps{
			Tasks: store, Defaults: store, Reasons: store, Records: store, Audit: store,
		})
	}
	svc := newService()
	key := earnings.Key{Date: day, PilotID: "p-1"}

	_, err := svc.SetApprovalStatus(ctx, key, earnings.ApprovalApproved, "ops")
	require.NoError(t, err)
	_, err = svc.SelectReason(ctx, key, "weather", "ops")
	require.NoError(t, err)

	res, err := svc.Save(ctx, key, "ops")
	require.NoError(t, err)
	assert.Equal(t, earnings.ModeSave, res.Mode)
	assert.Equal(t, earnings.LabelCompleted, res.Entry.Gate.Label)

	// A fresh process restores the approval from the saved row.
	entry, err := newService().Entry(ctx, key)
	require.NoError(t, err)
	assert.True(t, entry.Approval.IsApproved())
	assert.Equal(t, "Weather", entry.Approval.ReasonText())
	assert.Equal(t, earnings.LabelCompleted, entry.Gate.Label)
}
