package engine_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"goalline/internal/config"
	"goalline/internal/db"
	"goalline/internal/engine"
	"goalline/internal/logging"
	"goalline/internal/migrate"
	"goalline/internal/staging"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return fixedNow }
	eng.Log = logging.Discard()
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := env.Engine.DB.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// stagedImport builds a fully resolved session: one value, one measure, one goal, one action.
func stagedImport() *staging.Session {
	s := staging.NewSession(fixedNow)
	s.AddValues([]staging.StagedValue{{Title: "Health", Level: staging.LevelMajor, Priority: 10}}, fixedNow)
	s.AddMeasures([]staging.StagedMeasure{{Unit: "km", MeasureType: staging.MeasureDistance}}, fixedNow)
	s.AddGoals([]staging.StagedGoal{{
		Title:       "Run 120km",
		TargetValue: 120,
		Measure:     staging.Staged("m1", "km", 1),
		Values:      []staging.Reference{staging.Staged("v1", "Health", 1)},
	}}, fixedNow)
	s.AddActions([]staging.StagedAction{{
		Title:        "Morning run",
		OccurredAt:   fixedNow,
		Measurements: []staging.Measurement{{Measure: staging.Staged("m1", "km", 1), Value: 5}},
		Goals:        []staging.Reference{staging.Staged("g1", "Run 120km", 1)},
	}}, fixedNow)
	return s
}

func TestCommitPersistsInDependencyOrder(t *testing.T) {
	env := newTestEnv(t)
	s := stagedImport()
	rec, err := env.Engine.Commit(env.Ctx, s)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	for _, local := range []string{"v1", "m1", "g1", "a1"} {
		if rec.IDs[local] == "" {
			t.Fatalf("missing persisted id for %s: %v", local, rec.IDs)
		}
	}
	if s.Status != staging.SessionCompleted || s.Committed != rec {
		t.Fatalf("session not completed: %s", s.Status)
	}

	goals, err := env.Engine.ListGoals(env.Ctx, false)
	if err != nil || len(goals) != 1 {
		t.Fatalf("list goals: %v %d", err, len(goals))
	}
	g := goals[0]
	if g.MeasureID != rec.IDs["m1"] || len(g.ValueIDs) != 1 || g.ValueIDs[0] != rec.IDs["v1"] {
		t.Fatalf("goal links wrong: %+v", g)
	}
	actions, err := env.Engine.ListActions(env.Ctx, false, 0)
	if err != nil || len(actions) != 1 {
		t.Fatalf("list actions: %v %d", err, len(actions))
	}
	a := actions[0]
	if len(a.Measurements) != 1 || a.Measurements[0].MeasureID != rec.IDs["m1"] || a.Measurements[0].Value != 5 {
		t.Fatalf("measurements wrong: %+v", a.Measurements)
	}
	if len(a.GoalIDs) != 1 || a.GoalIDs[0] != g.ID {
		t.Fatalf("goal contribution wrong: %+v", a.GoalIDs)
	}
	contribs, err := env.Engine.Repo.ListContributions(env.Ctx, g.ID)
	if err != nil || len(contribs) != 1 || contribs[0].Amount == nil || *contribs[0].Amount != 5 {
		t.Fatalf("contributions: %v %+v", err, contribs)
	}
	events, err := env.Engine.LatestEvents(env.Ctx, s.ID, 0)
	if err != nil || len(events) != 5 || events[0].Type != "import.committed" {
		t.Fatalf("events: %v %+v", err, events)
	}
}

func TestCommitRefusesBlockingErrors(t *testing.T) {
	env := newTestEnv(t)
	s := stagedImport()
	s.Goals[0].Values = append(s.Goals[0].Values, staging.Unresolved("Helth"))
	s.Refresh()

	_, err := env.Engine.Commit(env.Ctx, s)
	var ce *engine.CommitError
	if !errors.As(err, &ce) || ce.Phase != "validate" || len(ce.Issues) != 1 {
		t.Fatalf("expected validate commit error, got %v", err)
	}
	if !errors.Is(err, engine.ErrNotCommittable) {
		t.Fatalf("expected ErrNotCommittable, got %v", err)
	}
	if s.Status != staging.SessionInProgress || s.Committed != nil {
		t.Fatalf("session changed: %s", s.Status)
	}
	if n := env.count(t, `"values"`); n != 0 {
		t.Fatalf("expected no values persisted, got %d", n)
	}
}

func TestCommitRollsBackOnStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.DB.Exec(`CREATE TRIGGER fail_actions BEFORE INSERT ON actions BEGIN SELECT RAISE(ABORT, 'boom'); END;`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	s := stagedImport()
	before := s.Clone()

	_, err := env.Engine.Commit(env.Ctx, s)
	var ce *engine.CommitError
	if !errors.As(err, &ce) || ce.Phase != "actions" || ce.LocalID != "a1" {
		t.Fatalf("expected actions phase failure, got %v", err)
	}
	for _, table := range []string{`"values"`, "measures", "goals", "goal_relevances", "actions", "measured_actions", "action_goal_contributions", "events"} {
		if n := env.count(t, table); n != 0 {
			t.Fatalf("%s has %d rows after rollback", table, n)
		}
	}
	if s.Status != before.Status || s.Committed != nil || len(s.Goals) != len(before.Goals) {
		t.Fatalf("session changed after failed commit")
	}

	if _, err := env.Engine.DB.Exec(`DROP TRIGGER fail_actions`); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}
	if _, err := env.Engine.Commit(env.Ctx, s); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestCommitTwiceIsRejected(t *testing.T) {
	env := newTestEnv(t)
	s := stagedImport()
	if _, err := env.Engine.Commit(env.Ctx, s); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := env.Engine.Commit(env.Ctx, s); !errors.Is(err, engine.ErrAlreadyCommitted) {
		t.Fatalf("expected ErrAlreadyCommitted, got %v", err)
	}
	if n := env.count(t, "goals"); n != 1 {
		t.Fatalf("expected one goal, got %d", n)
	}
}

func TestCommitCreatesEachNewReferenceOnce(t *testing.T) {
	env := newTestEnv(t)
	s := staging.NewSession(fixedNow)
	s.AddGoals([]staging.StagedGoal{
		{Title: "Deep work", TargetValue: 50, Measure: staging.CreateNew("hours"), Values: []staging.Reference{staging.CreateNew("Focus")}},
		{Title: "Read more", TargetValue: 1000, Measure: staging.CreateNew("pages"), Values: []staging.Reference{staging.CreateNew(" focus ")}},
	}, fixedNow)
	rec, err := env.Engine.Commit(env.Ctx, s)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if n := env.count(t, `"values"`); n != 1 {
		t.Fatalf("expected one created value, got %d", n)
	}
	if n := env.count(t, "measures"); n != 2 {
		t.Fatalf("expected two created measures, got %d", n)
	}
	if rec.CreatedFromText["value:focus"] == "" || rec.CreatedFromText["measure:hours"] == "" {
		t.Fatalf("created map incomplete: %v", rec.CreatedFromText)
	}
	measures, err := env.Engine.ListMeasures(env.Ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if measures[0].Unit != "hours" || measures[0].MeasureType != "time" {
		t.Fatalf("inferred measure wrong: %+v", measures[0])
	}
	values, err := env.Engine.ListValues(env.Ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if values[0].Priority != 50 || values[0].Level != "general" || values[0].LifeDomain != "General" {
		t.Fatalf("created value defaults wrong: %+v", values[0])
	}
}

func TestPoolsAndArchive(t *testing.T) {
	env := newTestEnv(t)
	rec, err := env.Engine.Commit(env.Ctx, stagedImport())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	pools, err := env.Engine.Pools(env.Ctx)
	if err != nil {
		t.Fatalf("pools: %v", err)
	}
	if len(pools[staging.KindValue]) != 1 || pools[staging.KindGoal][0].Key != "Run 120km" {
		t.Fatalf("pools wrong: %+v", pools)
	}
	if err := env.Engine.Archive(env.Ctx, staging.KindValue, rec.IDs["v1"]); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := env.Engine.Archive(env.Ctx, staging.KindValue, rec.IDs["v1"]); err == nil {
		t.Fatalf("expected second archive to fail")
	}
	pools, err = env.Engine.Pools(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pools[staging.KindValue]) != 0 {
		t.Fatalf("archived value still a candidate")
	}
	all, err := env.Engine.ListValues(env.Ctx, true)
	if err != nil || len(all) != 1 || all[0].ArchivedAt == nil {
		t.Fatalf("archived value missing from full listing: %v %+v", err, all)
	}
}

func TestLogActionAgainstExistingRecords(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Commit(env.Ctx, stagedImport()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	_, err := env.Engine.LogAction(env.Ctx, engine.ActionLogOptions{
		Title:        "Evening run",
		Measurements: []engine.UnitAmount{{Unit: "KM", Amount: 7}},
		Goals:        []string{"Run 120"},
	})
	var ue *engine.UnresolvedError
	if !errors.As(err, &ue) || len(ue.References) != 1 || len(ue.References[0].Suggestions) == 0 {
		t.Fatalf("expected unresolved goal with suggestions, got %v", err)
	}

	a, err := env.Engine.LogAction(env.Ctx, engine.ActionLogOptions{
		Title:                 "Evening run",
		Measurements:          []engine.UnitAmount{{Unit: "KM", Amount: 7}, {Unit: "min", Amount: 40}},
		Goals:                 []string{"run 120km"},
		CreateMissingMeasures: true,
	})
	if err != nil {
		t.Fatalf("log action: %v", err)
	}
	if len(a.Measurements) != 2 || len(a.GoalIDs) != 1 {
		t.Fatalf("action links wrong: %+v", a)
	}
	progress, err := env.Engine.GoalProgress(env.Ctx, a.GoalIDs[0])
	if err != nil || len(progress) != 1 {
		t.Fatalf("progress: %v", err)
	}
	p := progress[0]
	if p.Total != 12 || p.Contributions != 2 || math.Abs(p.Percent-10) > 1e-9 || p.Remaining != 108 || p.Complete {
		t.Fatalf("progress wrong: %+v", p)
	}
}

func TestGoalProgressCanExceedTarget(t *testing.T) {
	env := newTestEnv(t)
	s := stagedImport()
	s.Goals[0].TargetValue = 4
	if _, err := env.Engine.Commit(env.Ctx, s); err != nil {
		t.Fatalf("commit: %v", err)
	}
	progress, err := env.Engine.GoalProgress(env.Ctx, "")
	if err != nil || len(progress) != 1 {
		t.Fatalf("progress: %v", err)
	}
	p := progress[0]
	if !p.Complete || p.Percent != 125 || p.Remaining != 0 || p.Unit != "km" {
		t.Fatalf("progress wrong: %+v", p)
	}
	if _, err := env.Engine.GoalProgress(env.Ctx, "missing"); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestActionsOutsideGoalPeriodAreNotCredited(t *testing.T) {
	env := newTestEnv(t)
	s := stagedImport()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	s.Goals[0].StartDate, s.Goals[0].TargetDate = &start, &end
	run := func(at time.Time, km float64) staging.StagedAction {
		return staging.StagedAction{
			Title:        "Run",
			OccurredAt:   at,
			Measurements: []staging.Measurement{{Measure: staging.Staged("m1", "km", 1), Value: km}},
			Goals:        []staging.Reference{staging.Staged("g1", "Run 120km", 1)},
		}
	}
	s.AddActions([]staging.StagedAction{
		run(time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), 3),
		run(time.Date(2024, 1, 31, 22, 0, 0, 0, time.UTC), 2),
		run(time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC), 7),
	}, fixedNow)
	rec, err := env.Engine.Commit(env.Ctx, s)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	progress, err := env.Engine.GoalProgress(env.Ctx, rec.IDs["g1"])
	if err != nil || len(progress) != 1 {
		t.Fatalf("progress: %v", err)
	}
	if p := progress[0]; p.Total != 7 || p.Contributions != 4 {
		t.Fatalf("expected 5km + 2km credited over 4 linked actions, got %+v", p)
	}
	contribs, err := env.Engine.Repo.ListContributions(env.Ctx, rec.IDs["g1"])
	if err != nil || len(contribs) != 4 {
		t.Fatalf("contributions: %v %+v", err, contribs)
	}
	uncredited := 0
	for _, c := range contribs {
		if c.Amount == nil {
			uncredited++
		}
	}
	if uncredited != 2 {
		t.Fatalf("expected 2 actions outside the period left uncredited, got %d", uncredited)
	}
}

func TestCreateValue(t *testing.T) {
	env := newTestEnv(t)
	v, err := env.Engine.CreateValue(env.Ctx, engine.ValueCreateOptions{Title: "Craft", Level: "highest order"})
	if err != nil {
		t.Fatalf("create value: %v", err)
	}
	if v.Level != "highest_order" || v.Priority != 50 {
		t.Fatalf("value wrong: %+v", v)
	}
	noted, err := env.Engine.CreateValue(env.Ctx, engine.ValueCreateOptions{
		Title:             "Family",
		Notes:             "weekly call",
		AlignmentGuidance: "show up for dinner",
	})
	if err != nil {
		t.Fatalf("create value with notes: %v", err)
	}
	if noted.Notes != "weekly call" || noted.AlignmentGuidance != "show up for dinner" {
		t.Fatalf("notes not persisted: %+v", noted)
	}
	if _, err := env.Engine.CreateValue(env.Ctx, engine.ValueCreateOptions{Title: " "}); err == nil {
		t.Fatalf("expected title error")
	}
	if _, err := env.Engine.CreateValue(env.Ctx, engine.ValueCreateOptions{Title: "Rest", Priority: 101}); err == nil {
		t.Fatalf("expected priority error")
	}
}
