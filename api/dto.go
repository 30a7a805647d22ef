/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY AND AREAS:
  Computed figures are rendered as fixed two-decimal strings ("400.00") so
  clients never parse money through a float. Input rates are echoed with
  their full precision.

SEE ALSO:
  - handlers.go: Uses these types
  - ingest/ingest.go: Feed payload schemas (PUT /api/tasks, PUT /api/defaults)
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/earnings-engine/earnings"
)

// =============================================================================
// BOARD
// =============================================================================

type BoardDTO struct {
	Date          string          `json:"date"`
	DefaultsFound bool            `json:"defaults_found"`
	Defaults      *DefaultsDTO    `json:"defaults,omitempty"`
	Totals        BoardTotalsDTO  `json:"totals"`
	Entries       []BoardEntryDTO `json:"entries"`
}

type BoardTotalsDTO struct {
	Assigned     string `json:"assigned"`
	Covered      string `json:"covered"`
	Canceled     string `json:"canceled"`
	DailyEarning string `json:"daily_earning"`
}

// BoardEntryDTO is one pilot-day as the operator sees it.
type BoardEntryDTO struct {
	Date           string            `json:"date"`
	PilotID        string            `json:"pilot_id"`
	PilotName      string            `json:"pilot_name"`
	TaskCount      int               `json:"task_count"`
	Stats          StatsDTO          `json:"stats"`
	Approval       ApprovalDTO       `json:"approval"`
	Saved          *SavedRecordDTO   `json:"saved,omitempty"`
	Reconciliation ReconciliationDTO `json:"reconciliation"`
	Gate           GateDTO           `json:"gate"`
}

type StatsDTO struct {
	Assigned           string `json:"assigned"`
	Canceled           string `json:"canceled"`
	PilotCovered       string `json:"pilot_covered"`
	Covered            string `json:"covered"`
	CoveredRevenue     string `json:"covered_revenue"`
	DowntimePayment    string `json:"downtime_payment"`
	DailyEarning       string `json:"daily_earning"`
	IsDowntimeApproved bool   `json:"is_downtime_approved"`
}

type ApprovalDTO struct {
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	AwaitingReason bool   `json:"awaiting_reason"`
}

type SavedRecordDTO struct {
	Assigned         string `json:"assigned"`
	Covered          string `json:"covered"`
	Cancel           string `json:"cancel"`
	CoveredRevenue   string `json:"covered_revenue"`
	DowntimeReason   string `json:"downtime_reason,omitempty"`
	DowntimeApproval string `json:"downtime_approval"`
	DowntimePayment  string `json:"downtime_payment"`
	TotalRevenue     string `json:"total_revenue"`
	Verified         bool   `json:"verified"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

type DifferenceDTO struct {
	Field   string `json:"field"`
	Current string `json:"current"`
	Saved   string `json:"saved"`
}

type ReconciliationDTO struct {
	IsMatch     bool            `json:"is_match"`
	HasSaved    bool            `json:"has_saved"`
	Differences []DifferenceDTO `json:"differences"`
}

type GateDTO struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode,omitempty"`
	Label   string `json:"label"`
}

// SaveResponse is returned by a successful save.
type SaveResponse struct {
	Mode   string         `json:"mode"`
	Record SavedRecordDTO `json:"record"`
	Entry  BoardEntryDTO  `json:"entry"`
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

type DefaultsDTO struct {
	Date            string `json:"date"`
	AmountPerHaDay  string `json:"amount_per_ha_day"`
	MinimumHaPerDay string `json:"minimum_ha_per_day"`
	AmountIfStopped string `json:"amount_if_stopped"`
}

type ReasonDTO struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type AuditEntryDTO struct {
	ID      string         `json:"id"`
	At      string         `json:"at"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	Date    string         `json:"date"`
	PilotID string         `json:"pilot_id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// IngestResponse summarises an accepted task feed.
type IngestResponse struct {
	Date   string `json:"date"`
	Pilots int    `json:"pilots"`
	Tasks  int    `json:"tasks"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// SetApprovalRequest sets the approval status. "approved" only starts the
// approval; a reason must follow.
type SetApprovalRequest struct {
	Status string `json:"status"`
}

type SelectReasonRequest struct {
	ReasonID string `json:"reason_id"`
}

type CreateReasonRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Label   string `json:"label,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// NewBoardDTO renders a board the way GET /api/earnings/{date} returns it.
func NewBoardDTO(b *earnings.Board) BoardDTO {
	dto := BoardDTO{
		Date:          b.Date.String(),
		DefaultsFound: b.DefaultsFound,
		Totals: BoardTotalsDTO{
			Assigned:     money(b.Totals.Assigned),
			Covered:      money(b.Totals.Covered),
			Canceled:     money(b.Totals.Canceled),
			DailyEarning: money(b.Totals.DailyEarning),
		},
		Entries: make([]BoardEntryDTO, len(b.Entries)),
	}
	if b.Defaults != nil {
		d := toDefaultsDTO(*b.Defaults)
		dto.Defaults = &d
	}
	for i, e := range b.Entries {
		dto.Entries[i] = toBoardEntryDTO(e)
	}
	return dto
}

func toBoardEntryDTO(e earnings.BoardEntry) BoardEntryDTO {
	dto := BoardEntryDTO{
		Date:      e.Key.Date.String(),
		PilotID:   string(e.Key.PilotID),
		PilotName: e.PilotName,
		TaskCount: e.TaskCount,
		Stats: StatsDTO{
			Assigned:           money(e.Stats.Assigned),
			Canceled:           money(e.Stats.Canceled),
			PilotCovered:       money(e.Stats.PilotCovered),
			Covered:            money(e.Stats.OpsRoomCovered),
			CoveredRevenue:     money(e.Stats.CoveredRevenue),
			DowntimePayment:    money(e.Stats.DowntimePayment),
			DailyEarning:       money(e.Stats.DailyEarning),
			IsDowntimeApproved: e.Stats.IsDowntimeApproved,
		},
		Approval: toApprovalDTO(e.Approval),
		Reconciliation: ReconciliationDTO{
			IsMatch:     e.Reconciliation.IsMatch,
			HasSaved:    e.Reconciliation.HasSaved,
			Differences: make([]DifferenceDTO, len(e.Reconciliation.Differences)),
		},
		Gate: GateDTO{
			Enabled: e.Gate.Enabled,
			Mode:    string(e.Gate.Mode),
			Label:   string(e.Gate.Label),
		},
	}
	for i, d := range e.Reconciliation.Differences {
		dto.Reconciliation.Differences[i] = DifferenceDTO{Field: d.Field, Current: d.Current, Saved: d.Saved}
	}
	if e.Saved != nil {
		s := toSavedRecordDTO(*e.Saved)
		dto.Saved = &s
	}
	return dto
}

func toApprovalDTO(s earnings.ApprovalState) ApprovalDTO {
	return ApprovalDTO{
		Status:         s.Status().String(),
		Reason:         s.ReasonText(),
		AwaitingReason: s.AwaitingReason,
	}
}

func toSavedRecordDTO(r earnings.SavedRecord) SavedRecordDTO {
	dto := SavedRecordDTO{
		Assigned:         money(r.Assigned),
		Covered:          money(r.Covered),
		Cancel:           money(r.Cancel),
		CoveredRevenue:   money(r.CoveredRevenue),
		DowntimeReason:   r.DowntimeReason,
		DowntimeApproval: r.DowntimeApproval.String(),
		DowntimePayment:  money(r.DowntimePayment),
		TotalRevenue:     money(r.TotalRevenue),
		Verified:         r.IsVerified(),
	}
	if !r.UpdatedAt.IsZero() {
		dto.UpdatedAt = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toDefaultsDTO(d earnings.DefaultParameters) DefaultsDTO {
	return DefaultsDTO{
		Date:            d.Date.String(),
		AmountPerHaDay:  d.AmountPerHaDay.String(),
		MinimumHaPerDay: d.MinimumHaPerDay.String(),
		AmountIfStopped: d.AmountIfStopped.String(),
	}
}

func toReasonDTOs(reasons []earnings.DowntimeReason) []ReasonDTO {
	dtos := make([]ReasonDTO, len(reasons))
	for i, r := range reasons {
		dtos[i] = ReasonDTO{ID: r.ID, Text: r.Text}
	}
	return dtos
}

func toAuditDTOs(entries []earnings.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:      e.ID,
			At:      e.At.UTC().Format(time.RFC3339Nano),
			Actor:   e.Actor,
			Action:  string(e.Action),
			Date:    e.Date.String(),
			PilotID: string(e.PilotID),
			Payload: e.Payload,
		}
	}
	return dtos
}
