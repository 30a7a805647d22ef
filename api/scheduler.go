/*
scheduler.go - Background drift scanner

PURPOSE:
  Periodically re-evaluates recent days and reports verified earnings
  records whose saved figures no longer match what the engine computes.
  Task feeds get corrected after the fact; without this an operator only
  notices drift by opening the day.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Scans today and the LookbackDays-1 days before it
  - Logs every drifted pilot-day with the differing fields
  - Reports per-date counts through earnings.Observer (drift gauge)
  - Never saves anything: updating is an operator decision

CONFIGURATION:
  - Interval: How often to scan (default: 1 hour)
  - LookbackDays: How many days to scan (default: 7)
  - Enabled: Whether the scanner is active (default: true)

USAGE:
  scanner := NewDriftScanner(svc, logger)
  scanner.Start()
  // ... later
  scanner.Stop()

SEE ALSO:
  - earnings/service.go: Service.Drift
  - metrics/metrics.go: earnings_verified_drift gauge
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/earnings-engine/earnings"
)

// DriftReport is the outcome of one scan.
type DriftReport struct {
	StartedAt time.Time
	Dates     []earnings.Date
	Drifted   []earnings.BoardEntry
	Errors    int
}

// DriftScanner handles periodic drift detection.
type DriftScanner struct {
	Service      *earnings.Service
	Interval     time.Duration
	LookbackDays int
	Enabled      bool
	Log          *zap.SugaredLogger

	// today is replaceable in tests.
	today func() earnings.Date

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	last   *DriftReport
}

// NewDriftScanner creates a new scanner.
func NewDriftScanner(svc *earnings.Service, log *zap.SugaredLogger) *DriftScanner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &DriftScanner{
		Service:      svc,
		Interval:     1 * time.Hour,
		LookbackDays: 7,
		Enabled:      true,
		Log:          log.With("component", "drift_scanner"),
		today:        earnings.Today,
	}
}

// Start begins the scanner.
func (ds *DriftScanner) Start() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.Enabled {
		ds.Log.Info("disabled, not starting")
		return
	}
	if ds.ticker != nil {
		return
	}

	ds.ticker = time.NewTicker(ds.Interval)
	ds.stop = make(chan struct{})
	ds.wg.Add(1)

	go ds.run(ds.ticker, ds.stop)

	ds.Log.Infow("started", "interval", ds.Interval.String(), "lookback_days", ds.LookbackDays)
}

// Stop stops the scanner and waits for an in-progress scan.
func (ds *DriftScanner) Stop() {
	ds.mu.Lock()
	ticker, stop := ds.ticker, ds.stop
	ds.ticker, ds.stop = nil, nil
	ds.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
		ds.wg.Wait()
		ds.Log.Info("stopped")
	}
}

func (ds *DriftScanner) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ds.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	ds.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			ds.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one scan synchronously and returns its report.
func (ds *DriftScanner) RunNow(ctx context.Context) DriftReport {
	report := DriftReport{StartedAt: time.Now()}

	days := ds.LookbackDays
	if days <= 0 {
		days = 1
	}
	today := ds.today()

	for i := 0; i < days; i++ {
		if ctx.Err() != nil {
			break
		}
		date := today.AddDays(-i)
		report.Dates = append(report.Dates, date)

		drifted, err := ds.Service.Drift(ctx, date)
		if err != nil {
			report.Errors++
			ds.Log.Warnw("drift scan failed", "date", date.String(), "error", err)
			continue
		}
		for _, e := range drifted {
			fields := make([]string, len(e.Reconciliation.Differences))
			for j, d := range e.Reconciliation.Differences {
				fields[j] = d.Field
			}
			ds.Log.Warnw("verified earnings drifted",
				"key", e.Key.String(),
				"pilot", e.PilotName,
				"fields", fields,
				"saved_total", e.Saved.TotalRevenue.StringFixed(2),
				"current_total", e.Stats.DailyEarning.StringFixed(2))
		}
		report.Drifted = append(report.Drifted, drifted...)
	}

	ds.Log.Infow("drift scan completed",
		"dates", len(report.Dates), "drifted", len(report.Drifted), "errors", report.Errors)

	ds.mu.Lock()
	ds.last = &report
	ds.mu.Unlock()
	return report
}

// LastReport returns the most recent scan, or nil before the first one.
func (ds *DriftScanner) LastReport() *DriftReport {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.last
}
