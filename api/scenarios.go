/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built pilot-days that show each behaviour of the engine:
	area bonus, downtime stipend, the reason requirement, verified records
	and drift.

AVAILABLE SCENARIOS:

	area-bonus:            Covered area above the minimum, paid per hectare
	downtime-approved:     Low coverage, downtime approved with a reason
	approval-needs-reason: Approval started but no reason chosen yet
	verified-completed:    Saved record matches, gate shows completed
	verified-drift:        Saved record drifted, gate offers update
	multi-pilot-day:       Five pilots covering every gate label

HOW SCENARIOS WORK:
 1. Reset the stores and forget in-memory approvals
 2. Seed reasons, pay rates and the task feed for the scenario date
 3. Drive approvals and saves through earnings.Service, exactly as an
    operator would, so saved records are real saves
 4. Optionally change the task feed afterwards to produce drift

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "verified-drift"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Board endpoints to inspect the result
  - cmd/earnings/scenario.go: CLI loader
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/earnings-engine/earnings"
)

// ScenarioDate is the calendar day every scenario seeds.
var ScenarioDate = earnings.MustParseDate("2025-03-10")

var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, s *seeder) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "area-bonus",
			Name:        "Area Bonus",
			Description: "9 ha covered against a 5 ha minimum at 100/ha: earns 400",
		},
		load: func(ctx context.Context, s *seeder) error {
			return s.tasks(ctx, pilot("p-1", "Amina Haddad", field("f-101", "10", "8", "9")))
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "downtime-approved",
			Name:        "Downtime Approved",
			Description: "2 ha covered, downtime approved for weather: earns the 500 stipend",
		},
		load: func(ctx context.Context, s *seeder) error {
			if err := s.tasks(ctx, pilot("p-1", "Amina Haddad", field("f-101", "10", "2", "2"))); err != nil {
				return err
			}
			return s.approve(ctx, "p-1", "weather")
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "approval-needs-reason",
			Name:        "Approval Needs Reason",
			Description: "Approval started without a reason: still pending, no stipend, save blocked",
		},
		load: func(ctx context.Context, s *seeder) error {
			if err := s.tasks(ctx, pilot("p-1", "Amina Haddad", field("f-101", "10", "2", "2"))); err != nil {
				return err
			}
			key := s.key("p-1")
			_, err := s.svc.SetApprovalStatus(ctx, key, earnings.ApprovalApproved, scenarioActor)
			return err
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "verified-completed",
			Name:        "Verified Completed",
			Description: "Declined downtime, figures saved and unchanged: nothing to do",
		},
		load: func(ctx context.Context, s *seeder) error {
			if err := s.tasks(ctx, pilot("p-1", "Amina Haddad", field("f-101", "10", "8", "9"))); err != nil {
				return err
			}
			if err := s.decline(ctx, "p-1"); err != nil {
				return err
			}
			return s.save(ctx, "p-1")
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "verified-drift",
			Name:        "Verified Drift",
			Description: "Saved at 9 ha, ops room now reports 12 ha: update offered (700)",
		},
		load: func(ctx context.Context, s *seeder) error {
			if err := s.tasks(ctx, pilot("p-1", "Amina Haddad", field("f-101", "10", "8", "9"))); err != nil {
				return err
			}
			if err := s.decline(ctx, "p-1"); err != nil {
				return err
			}
			if err := s.save(ctx, "p-1"); err != nil {
				return err
			}
			return s.tasks(ctx, pilot("p-1", "Amina Haddad", field("f-101", "10", "8", "12")))
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "multi-pilot-day",
			Name:        "Multi-Pilot Day",
			Description: "Five pilots: save, update, completed, approval pending and an approved stipend",
		},
		load: loadMultiPilotDay,
	},
}

func init() {
	for i := range scenarios {
		scenarios[i].Date = ScenarioDate.String()
	}
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

// SeedScenario wipes the stores and loads scenario id.
func SeedScenario(ctx context.Context, svc *earnings.Service, w earnings.FeedWriter, id string) (ScenarioDTO, error) {
	for _, sc := range scenarios {
		if sc.ID != id {
			continue
		}
		s := &seeder{svc: svc, w: w, date: ScenarioDate}
		if err := s.base(ctx); err != nil {
			return ScenarioDTO{}, fmt.Errorf("failed to reset for scenario %s: %w", id, err)
		}
		if err := sc.load(ctx, s); err != nil {
			return ScenarioDTO{}, fmt.Errorf("failed to load scenario %s: %w", id, err)
		}
		return sc.ScenarioDTO, nil
	}
	return ScenarioDTO{}, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s.ScenarioDTO)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the stores and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if !h.ScenariosEnabled {
		writeError(w, http.StatusForbidden, "Scenario loading is disabled", nil)
		return
	}

	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.invalidateCaches()
	sc, err := SeedScenario(r.Context(), h.Service, h.Writer, req.ScenarioID)
	h.invalidateCaches()
	if errors.Is(err, ErrUnknownScenario) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		return
	}
	if err != nil {
		h.currentScenario = ""
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = sc.ID
	h.Log.Infow("scenario loaded", "scenario", sc.ID, "date", sc.Date, "actor", actorFrom(r))
	writeJSON(w, http.StatusOK, sc)
}

// invalidateCaches drops cached reference data around a reset.
func (h *Handler) invalidateCaches() {
	if h.ReasonCache != nil {
		h.ReasonCache.Invalidate()
	}
	if h.DefaultsCache != nil {
		h.DefaultsCache.Flush()
	}
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

const scenarioActor = "scenario"

var scenarioReasons = []earnings.DowntimeReason{
	{ID: "weather", Text: "Weather"},
	{ID: "equipment", Text: "Equipment failure"},
	{ID: "no-permit", Text: "No flight permit"},
	{ID: "field-unready", Text: "Field not ready"},
}

type seeder struct {
	svc  *earnings.Service
	w    earnings.FeedWriter
	date earnings.Date
}

func (s *seeder) key(id earnings.PilotID) earnings.Key {
	return earnings.Key{Date: s.date, PilotID: id}
}

// base resets everything and seeds the reason list and 100/5/500 rates.
func (s *seeder) base(ctx context.Context) error {
	if err := s.w.Reset(ctx); err != nil {
		return err
	}
	s.svc.ResetState()

	if err := s.w.PutReasons(ctx, scenarioReasons); err != nil {
		return err
	}
	return s.w.PutDefaults(ctx, earnings.DefaultParameters{
		Date:            s.date,
		AmountPerHaDay:  decimal.NewFromInt(100),
		MinimumHaPerDay: decimal.NewFromInt(5),
		AmountIfStopped: decimal.NewFromInt(500),
	})
}

func (s *seeder) tasks(ctx context.Context, pilots ...earnings.PilotDayInput) error {
	return s.w.PutTasks(ctx, s.date, pilots)
}

func (s *seeder) approve(ctx context.Context, id earnings.PilotID, reasonID string) error {
	key := s.key(id)
	if _, err := s.svc.SetApprovalStatus(ctx, key, earnings.ApprovalApproved, scenarioActor); err != nil {
		return err
	}
	_, err := s.svc.SelectReason(ctx, key, reasonID, scenarioActor)
	return err
}

func (s *seeder) decline(ctx context.Context, id earnings.PilotID) error {
	_, err := s.svc.SetApprovalStatus(ctx, s.key(id), earnings.ApprovalDeclined, scenarioActor)
	return err
}

func (s *seeder) save(ctx context.Context, id earnings.PilotID) error {
	_, err := s.svc.Save(ctx, s.key(id), scenarioActor)
	return err
}

func pilot(id earnings.PilotID, name string, tasks ...earnings.TaskRecord) earnings.PilotDayInput {
	return earnings.PilotDayInput{PilotID: id, PilotName: name, Tasks: tasks}
}

func field(id, area, pilotArea, djiArea string) earnings.TaskRecord {
	return earnings.TaskRecord{
		FieldID:        id,
		FieldArea:      decimal.RequireFromString(area),
		Status:         earnings.TaskActive,
		PilotFieldArea: decimal.RequireFromString(pilotArea),
		DJIFieldArea:   decimal.RequireFromString(djiArea),
	}
}

func cancelled(id, area string) earnings.TaskRecord {
	t := field(id, area, "0", "0")
	t.Status = earnings.TaskCancelled
	return t
}

func loadMultiPilotDay(ctx context.Context, s *seeder) error {
	day := []earnings.PilotDayInput{
		pilot("p-1", "Amina Haddad", field("f-101", "6.5", "6", "6.25"), field("f-102", "4", "3.5", "3.75")),
		pilot("p-2", "Bruno Costa", field("f-201", "12", "11", "11.4"), cancelled("f-202", "3.3")),
		pilot("p-3", "Chen Wei", field("f-301", "8", "7", "7.5")),
		pilot("p-4", "Dara Okafor", field("f-401", "9", "1.5", "1.2"), cancelled("f-402", "5")),
		pilot("p-5", "Elif Demir", field("f-501", "7", "0.5", "0.8")),
	}
	if err := s.tasks(ctx, day...); err != nil {
		return err
	}

	// p-1 declined, unsaved: save.
	if err := s.decline(ctx, "p-1"); err != nil {
		return err
	}

	// p-2 and p-3 declined and saved.
	for _, id := range []earnings.PilotID{"p-2", "p-3"} {
		if err := s.decline(ctx, id); err != nil {
			return err
		}
		if err := s.save(ctx, id); err != nil {
			return err
		}
	}

	// p-4 approved for equipment failure, unsaved. p-5 stays pending.
	if err := s.approve(ctx, "p-4", "equipment"); err != nil {
		return err
	}

	// The ops room revises p-3 after the save: update.
	day[2] = pilot("p-3", "Chen Wei", field("f-301", "8", "7", "7.9"))
	return s.tasks(ctx, day...)
}
