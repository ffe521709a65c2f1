package model

import (
	"fmt"
	"time"
)

// StopType classifies a reported pause in an entity's lifecycle clock.
// The set is closed; unknown values are rejected at the JSON boundary.
type StopType string

const (
	StopGlobal  StopType = "Global"
	StopInterna StopType = "Interna"
	StopExterna StopType = "Externa"
)

// Valid reports whether t is one of the known stop types.
func (t StopType) Valid() bool {
	switch t {
	case StopGlobal, StopInterna, StopExterna:
		return true
	}
	return false
}

func (t *StopType) UnmarshalText(b []byte) error {
	st := StopType(b)
	if !st.Valid() {
		return fmt.Errorf("unknown stop type: %q", string(b))
	}
	*t = st
	return nil
}

// Family names a KPI grouping (SLA or OLA), each with its own applicable
// entity types and stop types.
type Family string

const (
	FamilySLA Family = "sla"
	FamilyOLA Family = "ola"
)

// Stop is a reported pause interval on an entity's compliance clock.
type Stop struct {
	Type  StopType
	Start time.Time
	End   time.Time
}

// EntityInput is the full input to one calculation: lifecycle timestamps
// plus the ordered stop records. End is set only for finalized entities.
// All timestamps are naive local wall-clock values; DST is out of scope.
type EntityInput struct {
	EntityType  string
	Start       time.Time
	End         *time.Time
	IsFinalized bool
	Now         time.Time
	Stops       []Stop
}

// Entity is the stored read model for a lifecycle-tracked entity.
type Entity struct {
	ID          string
	TenantID    string
	EntityType  string
	Start       time.Time
	End         *time.Time
	IsFinalized bool
	Stops       []Stop
}

// Input returns the calculation input for the entity evaluated at now.
func (e Entity) Input(now time.Time) EntityInput {
	return EntityInput{
		EntityType:  e.EntityType,
		Start:       e.Start,
		End:         e.End,
		IsFinalized: e.IsFinalized,
		Now:         now,
		Stops:       e.Stops,
	}
}

// CalcResult carries the derived KPI values plus the evidence tree.
// Pointer fields are absent when the entity type does not participate in
// that family or the window is not applicable.
type CalcResult struct {
	TTDSeconds       int64   `json:"ttd_seconds"`
	TTMSeconds       *int64  `json:"ttm_seconds"`
	StopsSLASeconds  int64   `json:"stops_sla_seconds"`
	StopsOLASeconds  int64   `json:"stops_ola_seconds"`
	SLARealSeconds   *int64  `json:"sla_real_seconds"`
	SLAToDateSeconds *int64  `json:"sla_to_date_seconds"`
	OLARealSeconds   *int64  `json:"ola_real_seconds"`
	OLAToDateSeconds *int64  `json:"ola_to_date_seconds"`
	Explain          Explain `json:"explain"`
}

// EvidenceAction tags the decision taken on one stop record.
type EvidenceAction string

const (
	ActionKept             EvidenceAction = "kept"
	ActionClippedToWindow  EvidenceAction = "clipped_to_window"
	ActionDiscardedOutside EvidenceAction = "discarded_outside_window"
	ActionRejectedInvalid  EvidenceAction = "rejected_invalid_interval"
)

// IntervalDoc is a rendered interval inside the evidence tree.
type IntervalDoc struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// StopEvidence records why one input stop was kept, clipped, or dropped.
// Evidence is produced 1:1 per applicable input stop; nothing is dropped
// silently. Clipped is set only for kept/clipped actions.
type StopEvidence struct {
	StopType StopType       `json:"stop_type"`
	Original IntervalDoc    `json:"original"`
	Clipped  *IntervalDoc   `json:"clipped,omitempty"`
	Action   EvidenceAction `json:"action"`
}

// WindowReport is the audit record for one family/window combination.
type WindowReport struct {
	Evidence        []StopEvidence `json:"evidence"`
	MergedIntervals []IntervalDoc  `json:"merged_intervals"`
	WorkingSeconds  int64          `json:"working_seconds"`
}

// Explain is the complete evidence tree; it must be reproducible
// byte-for-byte from the same input.
type Explain struct {
	Calendar  CalendarInfo `json:"calendar"`
	Entity    EntityEcho   `json:"entity"`
	Windows   Windows      `json:"windows"`
	Stops     StopReports  `json:"stops"`
	Durations Durations    `json:"durations"`
}

type CalendarInfo struct {
	Mode string `json:"mode"`
}

// EntityEcho snapshots the input fields as rendered timestamps.
type EntityEcho struct {
	EntityType  string  `json:"entity_type"`
	IsFinalized bool    `json:"is_finalized"`
	Start       string  `json:"start"`
	End         *string `json:"end"`
	Now         string  `json:"now"`
}

type Window struct {
	Start string  `json:"start"`
	End   *string `json:"end"`
}

type Windows struct {
	RealWindow   Window `json:"real_window"`
	ToDateWindow Window `json:"to_date_window"`
}

type StopReports struct {
	SLAReal   WindowReport `json:"sla_real"`
	OLAReal   WindowReport `json:"ola_real"`
	SLAToDate WindowReport `json:"sla_to_date"`
	OLAToDate WindowReport `json:"ola_to_date"`
}

type Durations struct {
	TTDWorkingSeconds int64  `json:"ttd_working_seconds"`
	TTMWorkingSeconds *int64 `json:"ttm_working_seconds"`
}

// Webhook subscription models.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
