/*
Package ingest converts external feed payloads into earnings inputs.

PURPOSE:
  The task feed and the pay-rate feed are produced by other systems and are
  not always clean: areas arrive as numbers, numeric strings, null, or junk.
  This package decodes them tolerantly so the engine only ever sees
  decimal.Decimal values and canonical status codes.

JSON SCHEMA (task feed):
  {
    "date": "2025-03-10",
    "pilots": [
      {
        "pilot_id": "p-1",
        "pilot_name": "Amina",
        "tasks": [
          {"field_id": "f-1", "field_area": 10, "status": "active",
           "pilot_field_area": "8", "dji_field_area": null}
        ]
      }
    ]
  }

JSON SCHEMA (default parameters):
  {
    "date": "2025-03-10",
    "amount_per_ha_day": 100,
    "minimum_ha_per_day": "5",
    "amount_if_stopped": 500
  }

RULES:
  - Numeric fields accept numbers and numeric strings; anything else is 0
  - Status "x", "X", "cancelled", "canceled" all mean cancelled
  - Dates must be YYYY-MM-DD; pilot ids must be non-blank and unique

USAGE:
  parser := ingest.NewParser()
  feed, err := parser.ParseTaskFeed(body)
  if err != nil {
      return err
  }
  store.PutTasks(ctx, feed.Date, feed.Pilots)

SEE ALSO:
  - earnings/types.go: TaskRecord, PilotDayInput, DefaultParameters
  - api/handlers.go: PUT /api/tasks/{date}, PUT /api/defaults/{date}
*/
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/earnings-engine/earnings"
)

var (
	ErrMissingDate    = errors.New("date is required")
	ErrDateMismatch   = errors.New("payload date does not match requested date")
	ErrInvalidPilotID = errors.New("invalid pilot id")
)

// =============================================================================
// LOOSE DECIMAL
// =============================================================================

// LooseDecimal decodes from a JSON number, a numeric string, or anything
// else, which becomes zero. Values outside the bounds below also become zero.
type LooseDecimal struct {
	decimal.Decimal
}

// No field area or rate needs more, and larger exponents make decimal
// arithmetic allocate without limit.
const (
	maxLooseExponent = 18
	maxLooseDigits   = 30
)

func parseLoose(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if exp := d.Exponent(); exp > maxLooseExponent || exp < -maxLooseExponent {
		return decimal.Zero, false
	}
	if len(new(big.Int).Abs(d.Coefficient()).String()) > maxLooseDigits {
		return decimal.Zero, false
	}
	return d, true
}

func (l *LooseDecimal) UnmarshalJSON(b []byte) error {
	l.Decimal = decimal.Zero

	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil
	}

	switch v := raw.(type) {
	case json.Number:
		if d, ok := parseLoose(v.String()); ok {
			l.Decimal = d
		}
	case string:
		if d, ok := parseLoose(strings.TrimSpace(v)); ok {
			l.Decimal = d
		}
	}
	return nil
}

func (l LooseDecimal) MarshalJSON() ([]byte, error) {
	return []byte(l.Decimal.String()), nil
}

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type TaskFeedJSON struct {
	Date   string           `json:"date"`
	Pilots []PilotTasksJSON `json:"pilots"`
}

type PilotTasksJSON struct {
	PilotID   string     `json:"pilot_id"`
	PilotName string     `json:"pilot_name"`
	Tasks     []TaskJSON `json:"tasks"`
}

type TaskJSON struct {
	FieldID        string       `json:"field_id"`
	FieldArea      LooseDecimal `json:"field_area"`
	Status         string       `json:"status"`
	PilotFieldArea LooseDecimal `json:"pilot_field_area"`
	DJIFieldArea   LooseDecimal `json:"dji_field_area"`
}

type DefaultsJSON struct {
	Date            string       `json:"date"`
	AmountPerHaDay  LooseDecimal `json:"amount_per_ha_day"`
	MinimumHaPerDay LooseDecimal `json:"minimum_ha_per_day"`
	AmountIfStopped LooseDecimal `json:"amount_if_stopped"`
}

// TaskFeed is a decoded task feed for one date.
type TaskFeed struct {
	Date   earnings.Date
	Pilots []earnings.PilotDayInput
}

// =============================================================================
// PARSER
// =============================================================================

// Parser converts feed JSON into earnings types.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// ParseTaskFeed decodes a task feed payload.
func (p *Parser) ParseTaskFeed(data []byte) (*TaskFeed, error) {
	var fj TaskFeedJSON
	if err := json.Unmarshal(data, &fj); err != nil {
		return nil, fmt.Errorf("failed to parse task feed JSON: %w", err)
	}
	return p.TaskFeedFromJSON(fj)
}

// ParseTaskFeedFor decodes a task feed payload addressed to date. A payload
// without a date takes date; one with a different date is refused.
func (p *Parser) ParseTaskFeedFor(date earnings.Date, data []byte) (*TaskFeed, error) {
	var fj TaskFeedJSON
	if err := json.Unmarshal(data, &fj); err != nil {
		return nil, fmt.Errorf("failed to parse task feed JSON: %w", err)
	}
	if err := reconcileDate(&fj.Date, date); err != nil {
		return nil, err
	}
	return p.TaskFeedFromJSON(fj)
}

func (p *Parser) TaskFeedFromJSON(fj TaskFeedJSON) (*TaskFeed, error) {
	date, err := parseDate(fj.Date)
	if err != nil {
		return nil, err
	}

	feed := &TaskFeed{Date: date}
	seen := make(map[string]bool, len(fj.Pilots))
	for i, pj := range fj.Pilots {
		id := strings.TrimSpace(pj.PilotID)
		if id == "" {
			return nil, fmt.Errorf("%w: pilot #%d has no id", ErrInvalidPilotID, i)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate pilot %q", ErrInvalidPilotID, id)
		}
		seen[id] = true

		input := earnings.PilotDayInput{
			PilotID:   earnings.PilotID(id),
			PilotName: strings.TrimSpace(pj.PilotName),
			Tasks:     make([]earnings.TaskRecord, 0, len(pj.Tasks)),
		}
		if input.PilotName == "" {
			input.PilotName = id
		}
		for _, tj := range pj.Tasks {
			input.Tasks = append(input.Tasks, earnings.TaskRecord{
				FieldID:        tj.FieldID,
				FieldArea:      tj.FieldArea.Decimal,
				Status:         NormalizeStatus(tj.Status),
				PilotFieldArea: tj.PilotFieldArea.Decimal,
				DJIFieldArea:   tj.DJIFieldArea.Decimal,
			})
		}
		feed.Pilots = append(feed.Pilots, input)
	}
	return feed, nil
}

// ParseDefaults decodes a default-parameters payload.
func (p *Parser) ParseDefaults(data []byte) (*earnings.DefaultParameters, error) {
	var dj DefaultsJSON
	if err := json.Unmarshal(data, &dj); err != nil {
		return nil, fmt.Errorf("failed to parse default parameters JSON: %w", err)
	}
	return p.DefaultsFromJSON(dj)
}

// ParseDefaultsFor is ParseDefaults with the date taken from the request.
func (p *Parser) ParseDefaultsFor(date earnings.Date, data []byte) (*earnings.DefaultParameters, error) {
	var dj DefaultsJSON
	if err := json.Unmarshal(data, &dj); err != nil {
		return nil, fmt.Errorf("failed to parse default parameters JSON: %w", err)
	}
	if err := reconcileDate(&dj.Date, date); err != nil {
		return nil, err
	}
	return p.DefaultsFromJSON(dj)
}

func (p *Parser) DefaultsFromJSON(dj DefaultsJSON) (*earnings.DefaultParameters, error) {
	date, err := parseDate(dj.Date)
	if err != nil {
		return nil, err
	}
	return &earnings.DefaultParameters{
		Date:            date,
		AmountPerHaDay:  dj.AmountPerHaDay.Decimal,
		MinimumHaPerDay: dj.MinimumHaPerDay.Decimal,
		AmountIfStopped: dj.AmountIfStopped.Decimal,
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// NormalizeStatus maps the feed's status spellings onto earnings.TaskStatus.
// Only cancellation matters to the engine; every other code passes through
// lower-cased.
func NormalizeStatus(s string) earnings.TaskStatus {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "x", "cancelled", "canceled":
		return earnings.TaskCancelled
	case "":
		return earnings.TaskActive
	default:
		return earnings.TaskStatus(v)
	}
}

func parseDate(s string) (earnings.Date, error) {
	if strings.TrimSpace(s) == "" {
		return earnings.Date{}, ErrMissingDate
	}
	return earnings.ParseDate(strings.TrimSpace(s))
}

func reconcileDate(payload *string, date earnings.Date) error {
	if strings.TrimSpace(*payload) == "" {
		*payload = date.String()
		return nil
	}
	got, err := parseDate(*payload)
	if err != nil {
		return err
	}
	if !got.Equal(date) {
		return fmt.Errorf("%w: %s != %s", ErrDateMismatch, got, date)
	}
	return nil
}
