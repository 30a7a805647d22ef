/*
Package sqlite provides a SQLite-backed implementation of the earnings feeds.

PURPOSE:
  Implements every collaborator interface the earnings engine needs
  (TaskFeed, DefaultsFeed, ReasonFeed, RecordStore, AuditLog) on a single
  SQLite database, so the service can run standalone.

KEY TABLES:
  task_records:       Per-field task records, one row per field/pilot/day
  default_parameters: Pay rates per calendar date
  downtime_reasons:   The fixed reason list
  earnings_records:   Saved (verified) earnings, one row per pilot/day
  earnings_audit:     Append-only trail of approval decisions and saves

DECIMALS:
  Areas and amounts are stored as TEXT decimal strings, never REAL, so a
  saved value reads back bit-for-bit equal to what was computed.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode.

USAGE:
  store, err := sqlite.New("./data/earnings.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := earnings.NewService(earnings.Deps{
      Tasks: store, Defaults: store, Reasons: store, Records: store, Audit: store,
  })

SEE ALSO:
  - earnings/feeds.go: Interface definitions
  - earnings/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/earnings-engine/earnings"
)

// auditTimeLayout is fixed-width so timestamps sort as text.
const auditTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the earnings collaborator interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ earnings.TaskFeed     = (*Store)(nil)
	_ earnings.DefaultsFeed = (*Store)(nil)
	_ earnings.ReasonFeed   = (*Store)(nil)
	_ earnings.RecordStore  = (*Store)(nil)
	_ earnings.AuditLog     = (*Store)(nil)
	_ earnings.FeedWriter   = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_records (
		date TEXT NOT NULL,
		pilot_id TEXT NOT NULL,
		pilot_name TEXT NOT NULL,
		position INTEGER NOT NULL,
		field_id TEXT,
		field_area TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT '',
		pilot_field_area TEXT NOT NULL DEFAULT '0',
		dji_field_area TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (date, pilot_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_task_records_date
		ON task_records(date);

	CREATE TABLE IF NOT EXISTS default_parameters (
		date TEXT PRIMARY KEY,
		amount_per_ha_day TEXT NOT NULL,
		minimum_ha_per_day TEXT NOT NULL,
		amount_if_stopped TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS downtime_reasons (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL UNIQUE,
		position INTEGER NOT NULL DEFAULT 0
	);

	-- One saved earnings record per pilot per day
	CREATE TABLE IF NOT EXISTS earnings_records (
		pilot_id TEXT NOT NULL,
		date TEXT NOT NULL,
		assigned TEXT NOT NULL,
		covered TEXT NOT NULL,
		cancel TEXT NOT NULL,
		covered_revenue TEXT NOT NULL,
		downtime_reason TEXT NOT NULL DEFAULT '',
		downtime_approval INTEGER NOT NULL DEFAULT 0,
		downtime_payment TEXT NOT NULL,
		total_revenue TEXT NOT NULL,
		verified INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (pilot_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_earnings_records_date
		ON earnings_records(date);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS earnings_audit (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		date TEXT NOT NULL,
		pilot_id TEXT NOT NULL,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_earnings_audit_key
		ON earnings_audit(date, pilot_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TASK FEED
// =============================================================================

// PutTasks replaces every task record of date.
func (s *Store) PutTasks(ctx context.Context, date earnings.Date, inputs []earnings.PilotDayInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_records WHERE date = ?", date.String()); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}

	query := `
		INSERT INTO task_records
		(date, pilot_id, pilot_name, position, field_id, field_area, status, pilot_field_area, dji_field_area)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, in := range inputs {
		for i, t := range in.Tasks {
			_, err := tx.ExecContext(ctx, query,
				date.String(),
				in.PilotID,
				in.PilotName,
				i,
				t.FieldID,
				t.FieldArea.String(),
				string(t.Status),
				t.PilotFieldArea.String(),
				t.DJIFieldArea.String(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert task for %s: %w", in.PilotID, err)
			}
		}
	}

	return tx.Commit()
}

// TasksForDate returns the day's tasks grouped by pilot.
func (s *Store) TasksForDate(ctx context.Context, date earnings.Date) ([]earnings.PilotDayInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT pilot_id, pilot_name, field_id, field_area, status, pilot_field_area, dji_field_area
		FROM task_records
		WHERE date = ?
		ORDER BY pilot_id ASC, position ASC
	`, date.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var inputs []earnings.PilotDayInput
	index := make(map[earnings.PilotID]int)
	for rows.Next() {
		var (
			pilotID        string
			pilotName      string
			fieldID        sql.NullString
			fieldArea      string
			status         string
			pilotFieldArea string
			djiFieldArea   string
		)
		if err := rows.Scan(&pilotID, &pilotName, &fieldID, &fieldArea, &status, &pilotFieldArea, &djiFieldArea); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		t := earnings.TaskRecord{
			FieldID:        fieldID.String,
			FieldArea:      parseDecimal(fieldArea),
			Status:         earnings.TaskStatus(status),
			PilotFieldArea: parseDecimal(pilotFieldArea),
			DJIFieldArea:   parseDecimal(djiFieldArea),
		}

		id := earnings.PilotID(pilotID)
		i, ok := index[id]
		if !ok {
			i = len(inputs)
			index[id] = i
			inputs = append(inputs, earnings.PilotDayInput{PilotID: id, PilotName: pilotName})
		}
		inputs[i].Tasks = append(inputs[i].Tasks, t)
	}

	return inputs, rows.Err()
}

// =============================================================================
// DEFAULT PARAMETERS
// =============================================================================

func (s *Store) PutDefaults(ctx context.Context, d earnings.DefaultParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO default_parameters (date, amount_per_ha_day, minimum_ha_per_day, amount_if_stopped, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			amount_per_ha_day = excluded.amount_per_ha_day,
			minimum_ha_per_day = excluded.minimum_ha_per_day,
			amount_if_stopped = excluded.amount_if_stopped,
			updated_at = excluded.updated_at
	`,
		d.Date.String(),
		d.AmountPerHaDay.String(),
		d.MinimumHaPerDay.String(),
		d.AmountIfStopped.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save default parameters: %w", err)
	}
	return nil
}

func (s *Store) DefaultsForDate(ctx context.Context, date earnings.Date) (*earnings.DefaultParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var perHa, minimum, stopped string
	err := s.db.QueryRowContext(ctx, `
		SELECT amount_per_ha_day, minimum_ha_per_day, amount_if_stopped
		FROM default_parameters WHERE date = ?
	`, date.String()).Scan(&perHa, &minimum, &stopped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, earnings.ErrDefaultsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query default parameters: %w", err)
	}

	return &earnings.DefaultParameters{
		Date:            date,
		AmountPerHaDay:  parseDecimal(perHa),
		MinimumHaPerDay: parseDecimal(minimum),
		AmountIfStopped: parseDecimal(stopped),
	}, nil
}

func (s *Store) DeleteDefaults(ctx context.Context, date earnings.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM default_parameters WHERE date = ?", date.String()); err != nil {
		return fmt.Errorf("failed to delete default parameters: %w", err)
	}
	return nil
}

// =============================================================================
// DOWNTIME REASONS
// =============================================================================

// PutReasons replaces the reason list.
func (s *Store) PutReasons(ctx context.Context, reasons []earnings.DowntimeReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM downtime_reasons"); err != nil {
		return fmt.Errorf("failed to clear reasons: %w", err)
	}
	for i, r := range reasons {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO downtime_reasons (id, text, position) VALUES (?, ?, ?)",
			r.ID, r.Text, i,
		); err != nil {
			return fmt.Errorf("failed to insert reason %q: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// AddReason appends one reason to the list.
func (s *Store) AddReason(ctx context.Context, r earnings.DowntimeReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downtime_reasons (id, text, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM downtime_reasons))
	`, r.ID, r.Text)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %q", earnings.ErrDuplicateReason, r.Text)
		}
		return fmt.Errorf("failed to add reason: %w", err)
	}
	return nil
}

func (s *Store) DowntimeReasons(ctx context.Context) ([]earnings.DowntimeReason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, text FROM downtime_reasons ORDER BY position ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query reasons: %w", err)
	}
	defer rows.Close()

	var reasons []earnings.DowntimeReason
	for rows.Next() {
		var r earnings.DowntimeReason
		if err := rows.Scan(&r.ID, &r.Text); err != nil {
			return nil, fmt.Errorf("failed to scan reason: %w", err)
		}
		reasons = append(reasons, r)
	}
	return reasons, rows.Err()
}

// =============================================================================
// EARNINGS RECORDS (earnings.RecordStore)
// =============================================================================

func (s *Store) SavedRecords(ctx context.Context, date earnings.Date) (map[earnings.PilotID]earnings.SavedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT pilot_id, assigned, covered, cancel, covered_revenue, downtime_reason,
		       downtime_approval, downtime_payment, total_revenue, verified, updated_at
		FROM earnings_records
		WHERE date = ?
	`, date.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query earnings records: %w", err)
	}
	defer rows.Close()

	result := make(map[earnings.PilotID]earnings.SavedRecord)
	for rows.Next() {
		var (
			rec                                       earnings.SavedRecord
			pilotID                                   string
			assigned, covered, cancel, coveredRevenue string
			downtimePayment, totalRevenue, updatedAt  string
			approval                                  int
		)
		err := rows.Scan(&pilotID, &assigned, &covered, &cancel, &coveredRevenue, &rec.DowntimeReason,
			&approval, &downtimePayment, &totalRevenue, &rec.Verified, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan earnings record: %w", err)
		}

		rec.PilotID = earnings.PilotID(pilotID)
		rec.Date = date
		rec.Assigned = parseDecimal(assigned)
		rec.Covered = parseDecimal(covered)
		rec.Cancel = parseDecimal(cancel)
		rec.CoveredRevenue = parseDecimal(coveredRevenue)
		// Unknown codes are carried as-is; reconciliation then reports them.
		rec.DowntimeApproval = earnings.ApprovalStatus(approval)
		rec.DowntimePayment = parseDecimal(downtimePayment)
		rec.TotalRevenue = parseDecimal(totalRevenue)
		rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at of earnings record %s: %w", rec.Key(), err)
		}

		result[rec.PilotID] = rec
	}
	return result, rows.Err()
}

func (s *Store) UpsertRecord(ctx context.Context, rec earnings.SavedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO earnings_records
		(pilot_id, date, assigned, covered, cancel, covered_revenue, downtime_reason,
		 downtime_approval, downtime_payment, total_revenue, verified, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pilot_id, date) DO UPDATE SET
			assigned = excluded.assigned,
			covered = excluded.covered,
			cancel = excluded.cancel,
			covered_revenue = excluded.covered_revenue,
			downtime_reason = excluded.downtime_reason,
			downtime_approval = excluded.downtime_approval,
			downtime_payment = excluded.downtime_payment,
			total_revenue = excluded.total_revenue,
			verified = excluded.verified,
			updated_at = excluded.updated_at
	`,
		rec.PilotID,
		rec.Date.String(),
		rec.Assigned.String(),
		rec.Covered.String(),
		rec.Cancel.String(),
		rec.CoveredRevenue.String(),
		rec.DowntimeReason,
		int(rec.DowntimeApproval),
		rec.DowntimePayment.String(),
		rec.TotalRevenue.String(),
		rec.Verified,
		updatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert earnings record: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG (earnings.AuditLog)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e earnings.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO earnings_audit (id, at, actor, action, date, pilot_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.At.UTC().Format(auditTimeLayout), e.Actor, string(e.Action), e.Date.String(), e.PilotID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns matching entries, newest first.
func (s *Store) QueryAudit(ctx context.Context, f earnings.AuditFilter) ([]earnings.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Date != nil {
		where = append(where, "date = ?")
		args = append(args, f.Date.String())
	}
	if f.PilotID != nil {
		where = append(where, "pilot_id = ?")
		args = append(args, string(*f.PilotID))
	}
	if len(f.Actions) > 0 {
		placeholders := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := "SELECT id, at, actor, action, date, pilot_id, payload_json FROM earnings_audit"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY at DESC, rowid DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit: %w", err)
	}
	defer rows.Close()

	var entries []earnings.AuditEntry
	for rows.Next() {
		var (
			e                earnings.AuditEntry
			at, action, date string
			pilotID          string
			payload          sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.Actor, &action, &date, &pilotID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.At, _ = time.Parse(auditTimeLayout, at)
		e.Action = earnings.AuditAction(action)
		e.Date, _ = earnings.ParseDate(date)
		e.PilotID = earnings.PilotID(pilotID)
		if payload.Valid && payload.String != "" {
			json.Unmarshal([]byte(payload.String), &e.Payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// RESET (dev only)
// =============================================================================

// Reset clears all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"task_records", "default_parameters", "downtime_reasons", "earnings_records", "earnings_audit"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// parseDecimal reads a stored decimal string; unreadable values are zero,
// matching how missing feed values are treated.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
