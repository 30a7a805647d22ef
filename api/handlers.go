/*
handlers.go - HTTP API handlers for the earnings engine

PURPOSE:
  Exposes the earnings engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to earnings.Service.

ENDPOINTS:
  Board:
    GET    /api/earnings/{date}                                 Day board
    GET    /api/earnings/{date}/drift                           Drifted saves
    GET    /api/earnings/{date}/pilots/{pilotID}                One pilot-day
    POST   /api/earnings/{date}/pilots/{pilotID}/approval       Set status
    POST   /api/earnings/{date}/pilots/{pilotID}/approval/reason  Pick reason
    POST   /api/earnings/{date}/pilots/{pilotID}/approval/cancel  Abandon approve
    POST   /api/earnings/{date}/pilots/{pilotID}/save           Save/update

  Reference data:
    GET    /api/downtime-reasons        List reasons
    POST   /api/downtime-reasons        Add a reason
    GET    /api/defaults/{date}         Day pay rates
    PUT    /api/defaults/{date}         Replace day pay rates
    PUT    /api/tasks/{date}            Replace the day's task feed

  Audit:
    GET    /api/audit?date=&pilot_id=&action=&limit=

ACTOR:
  Mutating endpoints record the X-Actor header in the audit trail.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, refused approval transitions
  - 404: Unknown pilot for the date, missing pay rates
  - 409: Save refused by the persistence gate (label in "label")
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Put the service behind an authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/ingest"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *earnings.Service
	Writer  earnings.FeedWriter
	Parser  *ingest.Parser
	Log     *zap.SugaredLogger

	// Optional. Invalidated after writes so reads see new reference data.
	ReasonCache   *earnings.CachedReasonFeed
	DefaultsCache *earnings.CachedDefaultsFeed

	// Ping reports store health for /healthz. Optional.
	Ping func(ctx context.Context) error

	// ScenariosEnabled allows POST /api/scenarios/load, which wipes data.
	ScenariosEnabled bool

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over svc, seeding feeds through writer.
func NewHandler(svc *earnings.Service, writer earnings.FeedWriter) *Handler {
	return &Handler{
		Service: svc,
		Writer:  writer,
		Parser:  ingest.NewParser(),
		Log:     zap.NewNop().Sugar(),
	}
}

// =============================================================================
// BOARD HANDLERS
// =============================================================================

// GetBoard returns every pilot-day of a date.
// GET /api/earnings/{date}
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	board, err := h.Service.Board(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewBoardDTO(board))
}

// GetEntry returns one pilot-day.
// GET /api/earnings/{date}/pilots/{pilotID}
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pilot-day", err)
		return
	}

	entry, err := h.Service.Entry(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBoardEntryDTO(*entry))
}

// GetDrift returns the verified pilot-days of a date whose saved record no
// longer matches.
// GET /api/earnings/{date}/drift
func (h *Handler) GetDrift(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	drifted, err := h.Service.Drift(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	dtos := make([]BoardEntryDTO, len(drifted))
	for i, e := range drifted {
		dtos[i] = toBoardEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// APPROVAL HANDLERS
// =============================================================================

// SetApproval sets the downtime approval status. "approved" only begins the
// approval; the reason endpoint completes it.
// POST /api/earnings/{date}/pilots/{pilotID}/approval
func (h *Handler) SetApproval(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pilot-day", err)
		return
	}

	var req SetApprovalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status, err := earnings.ParseApprovalStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid approval status", err)
		return
	}

	if _, err := h.Service.SetApprovalStatus(r.Context(), key, status, actorFrom(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeEntry(w, r, key)
}

// SelectReason completes an approval with a reason from the reason list.
// POST /api/earnings/{date}/pilots/{pilotID}/approval/reason
func (h *Handler) SelectReason(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pilot-day", err)
		return
	}

	var req SelectReasonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.ReasonID) == "" {
		writeError(w, http.StatusBadRequest, "reason_id is required", earnings.ErrReasonRequired)
		return
	}

	if _, err := h.Service.SelectReason(r.Context(), key, req.ReasonID, actorFrom(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeEntry(w, r, key)
}

// CancelApproval abandons a started approval.
// POST /api/earnings/{date}/pilots/{pilotID}/approval/cancel
func (h *Handler) CancelApproval(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pilot-day", err)
		return
	}

	if _, err := h.Service.CancelApproval(r.Context(), key, actorFrom(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeEntry(w, r, key)
}

// =============================================================================
// SAVE HANDLER
// =============================================================================

// Save persists the current figures if the persistence gate allows it.
// POST /api/earnings/{date}/pilots/{pilotID}/save
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pilot-day", err)
		return
	}

	res, err := h.Service.Save(r.Context(), key, actorFrom(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SaveResponse{
		Mode:   string(res.Mode),
		Record: toSavedRecordDTO(res.Record),
		Entry:  toBoardEntryDTO(res.Entry),
	})
}

// =============================================================================
// REFERENCE DATA HANDLERS
// =============================================================================

// ListReasons returns the downtime reason list.
// GET /api/downtime-reasons
func (h *Handler) ListReasons(w http.ResponseWriter, r *http.Request) {
	reasons, err := h.Service.DowntimeReasons(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list downtime reasons", err)
		return
	}
	writeJSON(w, http.StatusOK, toReasonDTOs(reasons))
}

// CreateReason appends a downtime reason.
// POST /api/downtime-reasons
func (h *Handler) CreateReason(w http.ResponseWriter, r *http.Request) {
	var req CreateReasonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	reason := earnings.DowntimeReason{
		ID:   strings.TrimSpace(req.ID),
		Text: strings.TrimSpace(req.Text),
	}
	if reason.ID == "" || reason.Text == "" {
		writeError(w, http.StatusBadRequest, "id and text are required", nil)
		return
	}

	if err := h.Writer.AddReason(r.Context(), reason); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if h.ReasonCache != nil {
		h.ReasonCache.Invalidate()
	}

	h.Log.Infow("downtime reason added", "id", reason.ID, "text", reason.Text, "actor", actorFrom(r))
	writeJSON(w, http.StatusCreated, ReasonDTO{ID: reason.ID, Text: reason.Text})
}

// GetDefaults returns a day's pay rates.
// GET /api/defaults/{date}
func (h *Handler) GetDefaults(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	d, err := h.Service.DefaultParameters(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDefaultsDTO(*d))
}

// PutDefaults replaces a day's pay rates.
// PUT /api/defaults/{date}
func (h *Handler) PutDefaults(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	d, err := h.Parser.ParseDefaultsFor(date, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid default parameters", err)
		return
	}
	if err := h.Writer.PutDefaults(r.Context(), *d); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save default parameters", err)
		return
	}
	if h.DefaultsCache != nil {
		h.DefaultsCache.Invalidate(date)
	}

	h.Log.Infow("default parameters replaced", "date", date.String(), "actor", actorFrom(r))
	writeJSON(w, http.StatusOK, toDefaultsDTO(*d))
}

// PutTasks replaces the day's task feed.
// PUT /api/tasks/{date}
func (h *Handler) PutTasks(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	feed, err := h.Parser.ParseTaskFeedFor(date, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task feed", err)
		return
	}
	if err := h.Writer.PutTasks(r.Context(), feed.Date, feed.Pilots); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save task feed", err)
		return
	}

	resp := IngestResponse{Date: feed.Date.String(), Pilots: len(feed.Pilots)}
	for _, p := range feed.Pilots {
		resp.Tasks += len(p.Tasks)
	}
	h.Log.Infow("task feed replaced", "date", resp.Date, "pilots", resp.Pilots, "tasks", resp.Tasks)
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// AUDIT HANDLER
// =============================================================================

// GetAudit queries the audit trail, newest first.
// GET /api/audit?date=2025-03-10&pilot_id=p-1&action=save_succeeded&limit=50
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := earnings.AuditFilter{Limit: 100}

	if s := q.Get("date"); s != "" {
		date, err := earnings.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		filter.Date = &date
	}
	if s := q.Get("pilot_id"); s != "" {
		pilot := earnings.PilotID(s)
		filter.PilotID = &pilot
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, earnings.AuditAction(a))
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	entries, err := h.Service.AuditTrail(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit trail", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// Healthz reports liveness and store health.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeEntry(w http.ResponseWriter, r *http.Request, key earnings.Key) {
	entry, err := h.Service.Entry(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBoardEntryDTO(*entry))
}

// writeServiceError maps engine errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var gateErr *earnings.GateError
	switch {
	case errors.As(err, &gateErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "Save not permitted",
			Details: err.Error(),
			Label:   string(gateErr.Label),
		})
	case earnings.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Request refused", err)
	case earnings.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case earnings.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		h.Log.Errorw("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func dateParam(r *http.Request) (earnings.Date, error) {
	return earnings.ParseDate(chi.URLParam(r, "date"))
}

func keyParam(r *http.Request) (earnings.Key, error) {
	date, err := dateParam(r)
	if err != nil {
		return earnings.Key{}, err
	}
	pilot := strings.TrimSpace(chi.URLParam(r, "pilotID"))
	if pilot == "" {
		return earnings.Key{}, fmt.Errorf("pilot id is required")
	}
	return earnings.Key{Date: date, PilotID: earnings.PilotID(pilot)}, nil
}

func actorFrom(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get("X-Actor")); a != "" {
		return a
	}
	return "anonymous"
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
