package staging_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalline/internal/staging"
)

var now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestLocalIDsAreUniquePerKind(t *testing.T) {
	s := staging.NewSession(now)
	ids := s.AddValues([]staging.StagedValue{{Title: "Health"}, {Title: "Family"}}, now)
	assert.Equal(t, []string{"v1", "v2"}, ids)
	mids := s.AddMeasures([]staging.StagedMeasure{{Unit: "km"}}, now)
	assert.Equal(t, []string{"m1"}, mids)

	require.NoError(t, s.Remove(staging.KindValue, "v2", now))
	again := s.AddValues([]staging.StagedValue{{Title: "Craft"}}, now)
	assert.Equal(t, []string{"v3"}, again, "removed ids are not reused")
}

func TestGoalStatusFollowsReferences(t *testing.T) {
	s := staging.NewSession(now)
	s.AddMeasures([]staging.StagedMeasure{{Unit: "km"}}, now)
	goal := staging.StagedGoal{
		Title:       "Run 120km",
		TargetValue: 120,
		Measure:     staging.Unresolved("km"),
		Values:      []staging.Reference{staging.Unresolved("Health")},
	}
	s.AddGoals([]staging.StagedGoal{goal}, now)
	assert.Equal(t, staging.StatusNeedsResolution, s.Goals[0].Status)

	require.NoError(t, s.SetReference(staging.KindGoal, "g1", staging.RefPath{Field: "measure"}, staging.Staged("m1", "km", 1), now))
	assert.Equal(t, staging.StatusNeedsResolution, s.Goals[0].Status)

	s.Goals[0].Values[0].Suggestions = []staging.Suggestion{{CandidateID: "x", Title: "Health & Vitality", Score: 0.6, Pool: staging.RefExisting}}
	s.Refresh()
	assert.Equal(t, staging.StatusUserChoice, s.Goals[0].Status)

	chosen, err := s.Goals[0].Values[0].Choose(0)
	require.NoError(t, err)
	require.NoError(t, s.SetReference(staging.KindGoal, "g1", staging.RefPath{Field: "values", Index: 0}, chosen, now))
	assert.Equal(t, staging.StatusResolved, s.Goals[0].Status)
	assert.Equal(t, staging.RefExisting, s.Goals[0].Values[0].State)
	assert.Equal(t, 0.6, s.Goals[0].Values[0].Confidence)
}

func TestSetReferenceRejectsDanglingStagedID(t *testing.T) {
	s := staging.NewSession(now)
	s.AddGoals([]staging.StagedGoal{{Title: "G", TargetValue: 1, Measure: staging.Unresolved("km")}}, now)
	err := s.SetReference(staging.KindGoal, "g1", staging.RefPath{Field: "measure"}, staging.Staged("m9", "km", 1), now)
	require.ErrorIs(t, err, staging.ErrUnknownEntity)
}

func TestRemoveRevertsStagedReferences(t *testing.T) {
	s := staging.NewSession(now)
	s.AddMeasures([]staging.StagedMeasure{{Unit: "km"}}, now)
	s.AddGoals([]staging.StagedGoal{{Title: "G", TargetValue: 1, Measure: staging.Staged("m1", "km", 1)}}, now)
	assert.Equal(t, staging.StatusResolved, s.Goals[0].Status)

	require.NoError(t, s.Remove(staging.KindMeasure, "m1", now))
	assert.Equal(t, staging.RefUnresolved, s.Goals[0].Measure.State)
	assert.Equal(t, "km", s.Goals[0].Measure.Raw)
	assert.Equal(t, staging.StatusNeedsResolution, s.Goals[0].Status)

	require.ErrorIs(t, s.Remove(staging.KindMeasure, "m1", now), staging.ErrUnknownEntity)
}

func TestMarkDirtyClearsValidation(t *testing.T) {
	s := staging.NewSession(now)
	s.Status = staging.SessionDraft
	s.Validation.Errors = []staging.Issue{{Kind: staging.KindGoal, LocalID: "g1", Message: "x"}}
	s.MarkDirty(now.Add(time.Minute))
	assert.True(t, s.Dirty)
	assert.Empty(t, s.Validation.Errors)
	assert.Equal(t, staging.SessionInProgress, s.Status)
	assert.Equal(t, now.Add(time.Minute), s.UpdatedAt)
}

func TestReferenceCheck(t *testing.T) {
	assert.NoError(t, staging.Unresolved("x").Check())
	assert.NoError(t, staging.CreateNew("x").Check())
	assert.Error(t, staging.Reference{State: staging.RefExisting, Raw: "x"}.Check())
	assert.Error(t, staging.Reference{State: staging.RefCreateNew, ID: "id", Raw: "x"}.Check())
	assert.Error(t, staging.Reference{State: "maybe"}.Check())
	ref := staging.Existing("id", "x", 1)
	ref.Suggestions = []staging.Suggestion{{CandidateID: "y"}}
	assert.Error(t, ref.Check())
}

func TestChooseOutOfRange(t *testing.T) {
	_, err := staging.Unresolved("x").Choose(0)
	require.Error(t, err)
	_, err = staging.Existing("id", "x", 1).Choose(0)
	require.Error(t, err)
}

func TestParseKindAndLevel(t *testing.T) {
	k, err := staging.ParseKind("Goals")
	require.NoError(t, err)
	assert.Equal(t, staging.KindGoal, k)
	_, err = staging.ParseKind("tasks")
	require.Error(t, err)

	for in, want := range map[string]staging.ValueLevel{
		"":              staging.LevelGeneral,
		"Highest Order": staging.LevelHighestOrder,
		"highestOrder":  staging.LevelHighestOrder,
		"life-area":     staging.LevelLifeArea,
		"MAJOR":         staging.LevelMajor,
	} {
		got, err := staging.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err = staging.ParseLevel("cosmic")
	require.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	s := staging.NewSession(now)
	s.AddGoals([]staging.StagedGoal{{Title: "G", TargetValue: 1, Measure: staging.Unresolved("km")}}, now)
	c := s.Clone()
	c.Goals[0].Title = "changed"
	assert.Equal(t, "G", s.Goals[0].Title)
	assert.Equal(t, s.ID, c.ID)
}
