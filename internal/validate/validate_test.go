package validate_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalline/internal/staging"
	"goalline/internal/validate"
)

var now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func validSession() *staging.Session {
	s := staging.NewSession(now)
	s.AddValues([]staging.StagedValue{{Title: "Health", Level: staging.LevelGeneral, Priority: 50}}, now)
	s.AddMeasures([]staging.StagedMeasure{{Unit: "km", MeasureType: staging.MeasureDistance}}, now)
	s.AddGoals([]staging.StagedGoal{{
		Title:       "Run 120km",
		TargetValue: 120,
		Measure:     staging.Staged("m1", "km", 1),
		Values:      []staging.Reference{staging.Staged("v1", "Health", 1)},
	}}, now)
	s.AddActions([]staging.StagedAction{{
		Title:        "Morning run",
		OccurredAt:   now,
		Measurements: []staging.Measurement{{Measure: staging.Staged("m1", "km", 1), Value: 5}},
		Goals:        []staging.Reference{staging.Staged("g1", "Run 120km", 1)},
	}}, now)
	return s
}

func fields(issues []staging.Issue) []string {
	var out []string
	for _, i := range issues {
		out = append(out, string(i.Kind)+" "+i.LocalID+" "+i.Field)
	}
	return out
}

func TestValidSessionCanCommit(t *testing.T) {
	state := validate.Session(validSession(), validate.Options{LowConfidence: 0.5, Now: now})
	assert.True(t, state.CanCommit())
	assert.Empty(t, state.Errors)
	assert.Empty(t, state.Warnings)
	require.NotNil(t, state.CheckedAt)
}

func TestStructuralErrors(t *testing.T) {
	s := validSession()
	s.Values[0].Priority = 0
	s.Values[0].Level = "cosmic"
	s.Goals[0].TargetValue = 0
	s.Actions[0].Measurements[0].Value = -2
	s.Actions[0].OccurredAt = time.Time{}
	neg := -1.0
	s.Actions[0].DurationMinutes = &neg

	state := validate.Session(s, validate.Options{})
	assert.False(t, state.CanCommit())
	assert.ElementsMatch(t, []string{
		"value v1 level",
		"value v1 priority",
		"goal g1 target_value",
		"action a1 occurred_at",
		"action a1 duration_minutes",
		"action a1 measurements[0].value",
	}, fields(state.Errors))
}

func TestGoalDatesOrdered(t *testing.T) {
	s := validSession()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Goals[0].StartDate, s.Goals[0].TargetDate = &start, &end
	state := validate.Session(s, validate.Options{})
	assert.Equal(t, []string{"goal g1 target_date"}, fields(state.Errors))

	same := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Goals[0].StartDate, s.Goals[0].TargetDate = &same, &same
	state = validate.Session(s, validate.Options{})
	assert.False(t, state.CanCommit())
	assert.Equal(t, []string{"goal g1 target_date"}, fields(state.Errors))

	later := same.AddDate(0, 0, 1)
	s.Goals[0].TargetDate = &later
	state = validate.Session(s, validate.Options{})
	assert.Empty(t, state.Errors)
}

func TestInfiniteAmountsAreRejected(t *testing.T) {
	s := validSession()
	s.Goals[0].TargetValue = math.Inf(1)
	s.Actions[0].Measurements[0].Value = math.Inf(1)
	state := validate.Session(s, validate.Options{})
	assert.ElementsMatch(t, []string{"goal g1 target_value", "action a1 measurements[0].value"}, fields(state.Errors))
	assert.Contains(t, state.Errors[0].Message, "finite")
}

func TestMeasureTypeIsFreeText(t *testing.T) {
	s := validSession()
	s.Measures[0].MeasureType = "reading"
	assert.Empty(t, validate.Session(s, validate.Options{}).Errors)

	s.Measures[0].MeasureType = ""
	state := validate.Session(s, validate.Options{})
	assert.Equal(t, []string{"measure m1 measure_type"}, fields(state.Errors))
}

func TestUnresolvedReferencesBlock(t *testing.T) {
	s := validSession()
	s.Goals[0].Values = append(s.Goals[0].Values, staging.Unresolved("Movement"))
	helth := staging.Unresolved("Helth")
	helth.Suggestions = []staging.Suggestion{{CandidateID: "x", Title: "Health & Vitality", Score: 0.62, Pool: staging.RefExisting}}
	s.Actions[0].Goals = append(s.Actions[0].Goals, helth)
	s.Refresh()

	state := validate.Session(s, validate.Options{})
	assert.False(t, state.CanCommit())
	assert.Equal(t, []string{"goal g1 values[1]", "action a1 goals[1]"}, fields(state.Errors))
	assert.Equal(t, []string{"action a1 goals[1]"}, fields(state.Warnings))
	assert.Contains(t, state.Warnings[0].Message, "Health & Vitality")
}

func TestCreateNewGoalIsRejected(t *testing.T) {
	s := validSession()
	s.Actions[0].Goals[0] = staging.CreateNew("Run 120km")
	s.Goals[0].Values[0] = staging.CreateNew("Health")
	state := validate.Session(s, validate.Options{})
	assert.Equal(t, []string{"action a1 goals[0]"}, fields(state.Errors))
}

func TestDanglingStagedReference(t *testing.T) {
	s := validSession()
	s.Goals[0].Measure = staging.Staged("m7", "km", 1)
	state := validate.Session(s, validate.Options{})
	assert.Equal(t, []string{"goal g1 measure"}, fields(state.Errors))
}

func TestWarningsDoNotBlock(t *testing.T) {
	s := validSession()
	s.AddValues([]staging.StagedValue{{Title: " health ", Level: staging.LevelGeneral, Priority: 50}}, now)
	weak := staging.Existing("val-9", "Helth", 0.35)
	s.Goals[0].Values = append(s.Goals[0].Values, weak)
	shared := staging.Existing("mea-1", "km", 1)
	shared.ExactMatches = 2
	s.Actions[0].Measurements[0].Measure = shared

	state := validate.Session(s, validate.Options{LowConfidence: 0.5})
	assert.True(t, state.CanCommit())
	assert.ElementsMatch(t, []string{"goal g1 values[1]", "action a1 measurements[0]", "value v2 "}, fields(state.Warnings))
}

func TestValidateDoesNotMutate(t *testing.T) {
	s := validSession()
	s.Goals[0].Values[0] = staging.Unresolved("Nope")
	s.Refresh()
	before := s.Clone()
	_ = validate.Session(s, validate.Options{Now: now})
	assert.Equal(t, before, s)
}
