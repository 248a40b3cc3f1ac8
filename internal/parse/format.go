package parse

import (
	"strconv"
	"strings"

	"goalline/internal/staging"
)

// FormatValue renders a staged value in the row format Values reads.
func FormatValue(v staging.StagedValue) string {
	return joinCells(v.Title, string(v.Level), strconv.Itoa(v.Priority), v.Description, v.LifeDomain, v.Notes, v.AlignmentGuidance)
}

func FormatMeasure(m staging.StagedMeasure) string {
	return joinCells(m.Unit, string(m.MeasureType), m.Description)
}

func FormatGoal(g staging.StagedGoal) string {
	values := make([]string, 0, len(g.Values))
	for _, v := range g.Values {
		values = append(values, v.Raw)
	}
	cells := []string{g.Title, formatFloat(g.TargetValue), g.Measure.Raw, strings.Join(values, ", "), "", "", g.ActionPlan}
	if g.StartDate != nil {
		cells[4] = g.StartDate.Format("2006-01-02")
	}
	if g.TargetDate != nil {
		cells[5] = g.TargetDate.Format("2006-01-02")
	}
	return joinCells(cells...)
}

func FormatAction(a staging.StagedAction) string {
	ms := make([]string, 0, len(a.Measurements))
	for _, m := range a.Measurements {
		ms = append(ms, m.Measure.Raw+":"+formatFloat(m.Value))
	}
	goals := make([]string, 0, len(a.Goals))
	for _, g := range a.Goals {
		goals = append(goals, g.Raw)
	}
	duration := ""
	if a.DurationMinutes != nil {
		duration = formatFloat(*a.DurationMinutes)
	}
	return joinCells(a.Title, a.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), strings.Join(ms, ", "), strings.Join(goals, ", "), duration)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// joinCells drops trailing empty cells.
func joinCells(cells ...string) string {
	for len(cells) > 1 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return strings.Join(cells, " | ")
}
