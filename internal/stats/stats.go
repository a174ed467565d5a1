// Package stats computes session statistics as pure functions over logged
// data. Nothing here touches storage or mutates its inputs.
package stats

import (
	"math"
	"strconv"

	"github.com/claude/repcycle/internal/models"
)

// Trend classifies a week-over-week change. Changes inside the ±0.5% band
// are reported as maintained: a deliberate noise filter, not rounding.
type Trend string

const (
	TrendImprovement Trend = "improvement"
	TrendRegression  Trend = "regression"
	TrendMaintained  Trend = "maintained"
)

const trendBand = 0.5

// Aggregates are the three comparable totals for one session's logged sets.
type Aggregates struct {
	CompletedSets int     `json:"completed_sets"`
	TotalReps     int     `json:"total_reps"`
	TotalTonnage  float64 `json:"total_tonnage"`
	AverageLoad   float64 `json:"average_load"`
}

// Stats is the full recap statistics block for a completed session.
type Stats struct {
	PlannedSets    int    `json:"planned_sets"`
	CompletedSets  int    `json:"completed_sets"`
	CompletionRate int    `json:"completion_rate"`

	TotalReps    int     `json:"total_reps"`
	TotalTonnage float64 `json:"total_tonnage"`
	AverageLoad  float64 `json:"average_load"`

	// Week-over-week deltas, nil when there is no previous-week log or its
	// denominator is zero.
	TonnageChange *float64 `json:"tonnage_change,omitempty"`
	LoadChange    *float64 `json:"load_change,omitempty"`
	RepsChange    *float64 `json:"reps_change,omitempty"`

	TonnageTrend Trend `json:"tonnage_trend,omitempty"`
	LoadTrend    Trend `json:"load_trend,omitempty"`
	RepsTrend    Trend `json:"reps_trend,omitempty"`
}

// Compute builds the statistics for a completed session. previousWeekLog may
// be nil, in which case no deltas are produced. Pure: identical inputs give
// identical output.
func Compute(logged []models.ExerciseLog, tmpl models.SessionTemplate, previousWeekLog *models.PerformanceLogEntry) Stats {
	cur := AggregatesOf(logged)

	planned := 0
	for _, ex := range tmpl.Exercises {
		planned += models.ParseSetCount(ex.TargetSets)
	}

	s := Stats{
		PlannedSets:   planned,
		CompletedSets: cur.CompletedSets,
		TotalReps:     cur.TotalReps,
		TotalTonnage:  cur.TotalTonnage,
		AverageLoad:   cur.AverageLoad,
	}
	if planned > 0 {
		s.CompletionRate = int(math.Round(float64(cur.CompletedSets) / float64(planned) * 100))
	}

	if previousWeekLog != nil {
		prev := AggregatesOf(previousWeekLog.ExerciseLogs)
		s.TonnageChange = percentChange(cur.TotalTonnage, prev.TotalTonnage)
		s.LoadChange = percentChange(cur.AverageLoad, prev.AverageLoad)
		s.RepsChange = percentChange(float64(cur.TotalReps), float64(prev.TotalReps))
		s.TonnageTrend = TrendOf(s.TonnageChange)
		s.LoadTrend = TrendOf(s.LoadChange)
		s.RepsTrend = TrendOf(s.RepsChange)
	}
	return s
}

// AggregatesOf computes completed sets, total reps, tonnage and average load
// for a set of exercise logs. Sets with non-numeric load contribute 0 to
// tonnage but still count as completed; the load average covers only sets
// with a strictly positive numeric load, so bodyweight (load 0) sets count
// toward completion without dragging the average down.
func AggregatesOf(logs []models.ExerciseLog) Aggregates {
	var a Aggregates
	loadSum := 0.0
	loadCount := 0

	for _, l := range logs {
		for _, set := range l.Sets {
			if set.IsEmpty() {
				continue
			}
			a.CompletedSets++

			reps, repsOK := parseNumber(set.Reps)
			if repsOK {
				a.TotalReps += int(reps)
			}

			load, loadOK := parseNumber(set.Load)
			if loadOK && repsOK {
				a.TotalTonnage += reps * load
			}
			if loadOK && load > 0 {
				loadSum += load
				loadCount++
			}
		}
	}
	if loadCount > 0 {
		a.AverageLoad = loadSum / float64(loadCount)
	}
	return a
}

// PreviousWeekLog finds the history entry for the same session name within
// the same program, one week prior to the given week. Last match wins when
// several exist.
func PreviousWeekLog(history []models.PerformanceLogEntry, programName, sessionName string, week int) *models.PerformanceLogEntry {
	var found *models.PerformanceLogEntry
	for i := range history {
		e := &history[i]
		if e.ProgramName == programName && e.SessionName == sessionName && e.Week == week-1 {
			found = e
		}
	}
	return found
}

// WeekComparison pairs a week's aggregates with the prior week's for the
// same session.
type WeekComparison struct {
	Current  Aggregates `json:"current"`
	Previous *Aggregates `json:"previous,omitempty"`

	TonnageChange *float64 `json:"tonnage_change,omitempty"`
	LoadChange    *float64 `json:"load_change,omitempty"`
	RepsChange    *float64 `json:"reps_change,omitempty"`

	TonnageTrend Trend `json:"tonnage_trend,omitempty"`
	LoadTrend    Trend `json:"load_trend,omitempty"`
	RepsTrend    Trend `json:"reps_trend,omitempty"`
}

// CompareWeeks computes the week-over-week comparison for one session name
// of a program, from the append-only history alone. Returns nil when the
// requested week has no entry.
func CompareWeeks(history []models.PerformanceLogEntry, programName, sessionName string, week int) *WeekComparison {
	var current *models.PerformanceLogEntry
	for i := range history {
		e := &history[i]
		if e.ProgramName == programName && e.SessionName == sessionName && e.Week == week {
			current = e
		}
	}
	if current == nil {
		return nil
	}

	c := &WeekComparison{Current: AggregatesOf(current.ExerciseLogs)}
	if prev := PreviousWeekLog(history, programName, sessionName, week); prev != nil {
		prevAgg := AggregatesOf(prev.ExerciseLogs)
		c.Previous = &prevAgg
		c.TonnageChange = percentChange(c.Current.TotalTonnage, prevAgg.TotalTonnage)
		c.LoadChange = percentChange(c.Current.AverageLoad, prevAgg.AverageLoad)
		c.RepsChange = percentChange(float64(c.Current.TotalReps), float64(prevAgg.TotalReps))
		c.TonnageTrend = TrendOf(c.TonnageChange)
		c.LoadTrend = TrendOf(c.LoadChange)
		c.RepsTrend = TrendOf(c.RepsChange)
	}
	return c
}

// TrendOf maps a percentage change to its display classification. A nil
// change (undefined denominator) has no trend.
func TrendOf(change *float64) Trend {
	if change == nil {
		return ""
	}
	switch {
	case *change > trendBand:
		return TrendImprovement
	case *change < -trendBand:
		return TrendRegression
	default:
		return TrendMaintained
	}
}

// percentChange returns (cur-prev)/prev*100, or nil when prev is zero.
func percentChange(cur, prev float64) *float64 {
	if prev == 0 {
		return nil
	}
	v := (cur - prev) / prev * 100
	return &v
}

// parseNumber accepts the free-text reps/load values clients actually type.
func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
