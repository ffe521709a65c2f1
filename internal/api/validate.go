package api

import (
	"fmt"
	"time"

	"kpicalc/internal/model"
	"kpicalc/internal/timefmt"
)

// Wire payloads. Timestamps travel as "dd/mm/yyyy - HH:MM" strings; only
// the format is validated here. A stop whose end precedes its start is
// accepted and left to the core, which records it as rejected evidence.

type stopPayload struct {
	Type  model.StopType `json:"type"`
	Start string         `json:"start"`
	End   string         `json:"end"`
}

type entityPayload struct {
	TenantID   string        `json:"tenantId"`
	EntityType string        `json:"entityType"`
	Start      string        `json:"start"`
	Stops      []stopPayload `json:"stops,omitempty"`
}

type entityOut struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenantId"`
	EntityType  string        `json:"entityType"`
	Start       string        `json:"start"`
	End         *string       `json:"end,omitempty"`
	IsFinalized bool          `json:"isFinalized"`
	Stops       []stopPayload `json:"stops"`
}

func validateEntityPayload(p *entityPayload) (time.Time, []model.Stop, error) {
	if p.EntityType == "" {
		return time.Time{}, nil, fmt.Errorf("entityType is required")
	}
	start, err := parseTS("start", p.Start)
	if err != nil {
		return time.Time{}, nil, err
	}
	stops, err := decodeStops(p.Stops)
	if err != nil {
		return time.Time{}, nil, err
	}
	return start, stops, nil
}

func decodeStops(payloads []stopPayload) ([]model.Stop, error) {
	stops := make([]model.Stop, 0, len(payloads))
	for i, sp := range payloads {
		if !sp.Type.Valid() {
			return nil, fmt.Errorf("stops[%d].type: unknown stop type %q", i, sp.Type)
		}
		ss, err := parseTS(fmt.Sprintf("stops[%d].start", i), sp.Start)
		if err != nil {
			return nil, err
		}
		se, err := parseTS(fmt.Sprintf("stops[%d].end", i), sp.End)
		if err != nil {
			return nil, err
		}
		stops = append(stops, model.Stop{Type: sp.Type, Start: ss, End: se})
	}
	return stops, nil
}

func parseTS(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := timefmt.Parse(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected %q", name, timefmt.Layout)
	}
	return t, nil
}

func toEntityOut(e model.Entity) entityOut {
	stops := make([]stopPayload, 0, len(e.Stops))
	for _, s := range e.Stops {
		stops = append(stops, stopPayload{Type: s.Type, Start: timefmt.Format(s.Start), End: timefmt.Format(s.End)})
	}
	return entityOut{
		ID:          e.ID,
		TenantID:    e.TenantID,
		EntityType:  e.EntityType,
		Start:       timefmt.Format(e.Start),
		End:         timefmt.FormatPtr(e.End),
		IsFinalized: e.IsFinalized,
		Stops:       stops,
	}
}
