// Package input loads entity calculation inputs from the client JSON
// format: timestamps as "dd/mm/yyyy - HH:MM" strings, stop records under
// "stops". Raw-input validation lives here, before the core is called.
package input

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"kpicalc/internal/model"
	"kpicalc/internal/timefmt"
)

type stopDoc struct {
	Type  model.StopType `json:"type"`
	Start string         `json:"start"`
	End   string         `json:"end"`
}

type entityDoc struct {
	EntityType  string    `json:"entity_type"`
	IsFinalized bool      `json:"is_finalized"`
	Start       string    `json:"start"`
	End         string    `json:"end,omitempty"`
	Now         string    `json:"now"`
	Stops       []stopDoc `json:"stops"`
}

// Decode reads one entity input document from r.
func Decode(r io.Reader) (model.EntityInput, error) {
	var doc entityDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return model.EntityInput{}, fmt.Errorf("decode entity input: %w", err)
	}
	return doc.toInput()
}

// LoadFile reads one entity input document from a JSON file.
func LoadFile(path string) (model.EntityInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.EntityInput{}, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

func (doc entityDoc) toInput() (model.EntityInput, error) {
	if doc.EntityType == "" {
		return model.EntityInput{}, fmt.Errorf("entity_type is required")
	}
	start, err := parseField("start", doc.Start)
	if err != nil {
		return model.EntityInput{}, err
	}
	now, err := parseField("now", doc.Now)
	if err != nil {
		return model.EntityInput{}, err
	}

	var end *time.Time
	if doc.End != "" {
		e, err := parseField("end", doc.End)
		if err != nil {
			return model.EntityInput{}, err
		}
		end = &e
	}
	if doc.IsFinalized && end == nil {
		return model.EntityInput{}, fmt.Errorf("finalized input requires end")
	}
	if !doc.IsFinalized && end != nil {
		return model.EntityInput{}, fmt.Errorf("end given but is_finalized is false")
	}

	stops := make([]model.Stop, 0, len(doc.Stops))
	for i, s := range doc.Stops {
		ss, err := parseField(fmt.Sprintf("stops[%d].start", i), s.Start)
		if err != nil {
			return model.EntityInput{}, err
		}
		se, err := parseField(fmt.Sprintf("stops[%d].end", i), s.End)
		if err != nil {
			return model.EntityInput{}, err
		}
		stops = append(stops, model.Stop{Type: s.Type, Start: ss, End: se})
	}

	return model.EntityInput{
		EntityType:  doc.EntityType,
		Start:       start,
		End:         end,
		IsFinalized: doc.IsFinalized,
		Now:         now,
		Stops:       stops,
	}, nil
}

func parseField(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := timefmt.Parse(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected %q: %w", name, timefmt.Layout, err)
	}
	return t, nil
}
