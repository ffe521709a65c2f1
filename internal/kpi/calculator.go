// Package kpi derives the SLA/OLA compliance durations for one entity:
// base durations from the business calendar, per-family stop totals from
// validated/clipped/merged stop intervals, and the evidence tree that
// explains every decision taken on every stop record.
package kpi

import (
	"errors"
	"time"

	"kpicalc/internal/calendar"
	"kpicalc/internal/config"
	"kpicalc/internal/interval"
	"kpicalc/internal/model"
	"kpicalc/internal/timefmt"
)

// Calculator owns the calendar and the family applicability tables.
// Calculate is a pure function of its input and the calendar's holiday
// data; no state survives between calls except the holiday cache.
type Calculator struct {
	cal      *calendar.Calendar
	families config.Families
}

func NewCalculator(cal *calendar.Calendar, families config.Families) *Calculator {
	return &Calculator{cal: cal, families: families}
}

// Input precondition violations. Per-stop anomalies are never errors;
// they become evidence.
var (
	ErrMissingTimestamps = errors.New("entity input requires start and now timestamps")
	ErrFinalizedNoEnd    = errors.New("finalized entity input requires an end timestamp")
	ErrEndNotFinalized   = errors.New("entity input carries an end timestamp but is not finalized")
)

func validateInput(in model.EntityInput) error {
	if in.Start.IsZero() || in.Now.IsZero() {
		return ErrMissingTimestamps
	}
	if in.IsFinalized && (in.End == nil || in.End.IsZero()) {
		return ErrFinalizedNoEnd
	}
	if !in.IsFinalized && in.End != nil {
		return ErrEndNotFinalized
	}
	return nil
}

// Calculate computes the KPI metrics and evidence for one entity input.
// One malformed stop record never aborts the calculation; only malformed
// top-level input fails.
func (c *Calculator) Calculate(in model.EntityInput) (model.CalcResult, error) {
	if err := validateInput(in); err != nil {
		return model.CalcResult{}, err
	}

	windowStart := in.Start
	var realEnd *time.Time
	if in.IsFinalized {
		realEnd = in.End
	}
	toDateEnd := in.Now

	ttd := c.cal.WorkingSeconds(in.Start, in.Now)
	var ttm *int64
	if realEnd != nil {
		v := c.cal.WorkingSeconds(in.Start, *realEnd)
		ttm = &v
	}

	// Real-window stop sets exist only once finalized.
	var slaReal, olaReal familyStops
	if realEnd != nil {
		slaReal = c.clipMerge(in.Stops, c.families.SLA, windowStart, *realEnd)
		olaReal = c.clipMerge(in.Stops, c.families.OLA, windowStart, *realEnd)
	} else {
		slaReal = emptyFamilyStops()
		olaReal = emptyFamilyStops()
	}

	slaToDate := c.clipMerge(in.Stops, c.families.SLA, windowStart, toDateEnd)
	olaToDate := c.clipMerge(in.Stops, c.families.OLA, windowStart, toDateEnd)

	isSLAEntity := c.families.SLA.AppliesToEntity(in.EntityType)
	isOLAEntity := c.families.OLA.AppliesToEntity(in.EntityType)

	var slaRealVal, olaRealVal *int64
	if realEnd != nil && ttm != nil {
		if isSLAEntity {
			slaRealVal = floorZero(*ttm - slaReal.workingSeconds)
		}
		if isOLAEntity {
			olaRealVal = floorZero(*ttm - olaReal.workingSeconds)
		}
	}

	var slaToDateVal, olaToDateVal *int64
	if isSLAEntity {
		slaToDateVal = floorZero(ttd - slaToDate.workingSeconds)
	}
	if isOLAEntity {
		olaToDateVal = floorZero(ttd - olaToDate.workingSeconds)
	}

	// Headline stop totals track the lifecycle state: real once
	// finalized, to-date while open.
	stopsSLAEffective := slaToDate.workingSeconds
	stopsOLAEffective := olaToDate.workingSeconds
	if realEnd != nil {
		stopsSLAEffective = slaReal.workingSeconds
		stopsOLAEffective = olaReal.workingSeconds
	}

	explain := model.Explain{
		Calendar: model.CalendarInfo{Mode: c.cal.Mode()},
		Entity: model.EntityEcho{
			EntityType:  in.EntityType,
			IsFinalized: in.IsFinalized,
			Start:       timefmt.Format(in.Start),
			End:         timefmt.FormatPtr(in.End),
			Now:         timefmt.Format(in.Now),
		},
		Windows: model.Windows{
			RealWindow:   model.Window{Start: timefmt.Format(in.Start), End: timefmt.FormatPtr(in.End)},
			ToDateWindow: model.Window{Start: timefmt.Format(in.Start), End: strPtr(timefmt.Format(in.Now))},
		},
		Stops: model.StopReports{
			SLAReal:   slaReal.report(),
			OLAReal:   olaReal.report(),
			SLAToDate: slaToDate.report(),
			OLAToDate: olaToDate.report(),
		},
		Durations: model.Durations{
			TTDWorkingSeconds: ttd,
			TTMWorkingSeconds: ttm,
		},
	}

	return model.CalcResult{
		TTDSeconds:       ttd,
		TTMSeconds:       ttm,
		StopsSLASeconds:  stopsSLAEffective,
		StopsOLASeconds:  stopsOLAEffective,
		SLARealSeconds:   slaRealVal,
		SLAToDateSeconds: slaToDateVal,
		OLARealSeconds:   olaRealVal,
		OLAToDateSeconds: olaToDateVal,
		Explain:          explain,
	}, nil
}

// familyStops is the outcome of selecting, clipping, and merging the stop
// records of one family against one window.
type familyStops struct {
	merged         []interval.Interval
	evidence       []model.StopEvidence
	workingSeconds int64
}

func emptyFamilyStops() familyStops {
	return familyStops{evidence: []model.StopEvidence{}}
}

func (fs familyStops) report() model.WindowReport {
	docs := make([]model.IntervalDoc, 0, len(fs.merged))
	for _, iv := range fs.merged {
		docs = append(docs, model.IntervalDoc{Start: timefmt.Format(iv.Start), End: timefmt.Format(iv.End)})
	}
	return model.WindowReport{
		Evidence:        fs.evidence,
		MergedIntervals: docs,
		WorkingSeconds:  fs.workingSeconds,
	}
}

// clipMerge runs the per-stop pipeline for one family/window: filter by
// stop type, validate, clip to the window, merge survivors, and sum their
// working-time cost. Every filtered-in stop yields exactly one evidence
// entry; stops of other types are simply not this family's concern.
func (c *Calculator) clipMerge(stops []model.Stop, rule config.FamilyRule, windowStart, windowEnd time.Time) familyStops {
	raw := []interval.Interval{}
	evidence := []model.StopEvidence{}

	for _, s := range stops {
		if !rule.AllowsStop(s.Type) {
			continue
		}

		iv := interval.Interval{Start: s.Start, End: s.End}
		original := model.IntervalDoc{Start: timefmt.Format(s.Start), End: timefmt.Format(s.End)}

		if !iv.Valid() {
			evidence = append(evidence, model.StopEvidence{
				StopType: s.Type,
				Original: original,
				Action:   model.ActionRejectedInvalid,
			})
			continue
		}

		clipped, ok := iv.Clip(windowStart, windowEnd)
		if !ok {
			evidence = append(evidence, model.StopEvidence{
				StopType: s.Type,
				Original: original,
				Action:   model.ActionDiscardedOutside,
			})
			continue
		}

		action := model.ActionKept
		if !clipped.Start.Equal(iv.Start) || !clipped.End.Equal(iv.End) {
			action = model.ActionClippedToWindow
		}
		clippedDoc := model.IntervalDoc{Start: timefmt.Format(clipped.Start), End: timefmt.Format(clipped.End)}
		evidence = append(evidence, model.StopEvidence{
			StopType: s.Type,
			Original: original,
			Clipped:  &clippedDoc,
			Action:   action,
		})
		raw = append(raw, clipped)
	}

	merged := interval.Merge(raw)
	var total int64
	for _, iv := range merged {
		total += c.cal.WorkingSeconds(iv.Start, iv.End)
	}
	return familyStops{merged: merged, evidence: evidence, workingSeconds: total}
}

func floorZero(v int64) *int64 {
	if v < 0 {
		v = 0
	}
	return &v
}

func strPtr(s string) *string { return &s }
