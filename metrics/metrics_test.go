package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/earnings-engine/earnings"
)

func TestObserver_CountsEngineEvents(t *testing.T) {
	m := NewMetricsRegistry()

	m.GateEvaluated(earnings.LabelSave)
	m.GateEvaluated(earnings.LabelSave)
	m.GateEvaluated(earnings.LabelCompleted)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateEvaluationsTotal.WithLabelValues("save")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateEvaluationsTotal.WithLabelValues("completed")))

	key := earnings.Key{Date: earnings.MustParseDate("2025-03-10"), PilotID: "p-1"}
	m.SaveFinished(earnings.ModeSave, nil)
	m.SaveFinished(earnings.ModeNone, &earnings.GateError{Key: key, Label: earnings.LabelSaving})
	m.SaveFinished(earnings.ModeNone, &earnings.GateError{Key: key, Label: earnings.LabelApprovalPending})
	m.SaveFinished(earnings.ModeUpdate, errors.New("disk full"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SavesTotal.WithLabelValues("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SavesTotal.WithLabelValues("none", "in_flight")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SavesTotal.WithLabelValues("none", "refused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SavesTotal.WithLabelValues("update", "error")))

	m.DriftDetected(key.Date, 3)
	m.DriftDetected(key.Date, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VerifiedDrift.WithLabelValues("2025-03-10")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DriftScansTotal))
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := NewMetricsRegistry()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/earnings/{date}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	for _, date := range []string{"2025-03-10", "2025-03-11"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/earnings/"+date, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues("/api/earnings/{date}", "GET", "418")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "earnings_http_requests_total"))
}
