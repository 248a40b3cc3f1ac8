package wizard_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"goalline/internal/config"
	"goalline/internal/db"
	"goalline/internal/engine"
	"goalline/internal/logging"
	"goalline/internal/migrate"
	"goalline/internal/resolve"
	"goalline/internal/staging"
	"goalline/internal/wizard"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestWizard(t *testing.T) (*wizard.Wizard, engine.Engine, *staging.FileStore) {
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
	store := staging.NewFileStore(filepath.Join(dir, ".goalline", "imports"))
	return wizard.New(eng, store, logging.Discard()), eng, store
}

func mustStage(t *testing.T, w *wizard.Wizard, kind staging.Kind, text string) wizard.StageResult {
	t.Helper()
	res, err := w.Stage(context.Background(), kind, text)
	if err != nil {
		t.Fatalf("stage %s: %v", kind, err)
	}
	if len(res.Errors) > 0 {
		t.Fatalf("stage %s parse errors: %v", kind, res.Errors)
	}
	return res
}

func TestGoalReferencesResolveAsPoolsGrow(t *testing.T) {
	w, eng, _ := newTestWizard(t)
	ctx := context.Background()
	if _, _, err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	mustStage(t, w, staging.KindMeasure, "km")
	first, err := w.Commit(ctx)
	if err != nil {
		t.Fatalf("commit measures: %v", err)
	}
	kmID := first.IDs["m1"]

	if _, created, err := w.Start(); err != nil || !created {
		t.Fatalf("expected a fresh session, created=%v err=%v", created, err)
	}
	mustStage(t, w, staging.KindGoal, "Run 120km | 120 | km | Health, Movement")
	s, err := w.Session()
	if err != nil {
		t.Fatal(err)
	}
	g := s.Goals[0]
	if g.Measure.State != staging.RefExisting || g.Measure.ID != kmID {
		t.Fatalf("measure not resolved to existing km: %+v", g.Measure)
	}
	for _, ref := range g.Values {
		if ref.State != staging.RefUnresolved || len(ref.Suggestions) != 0 {
			t.Fatalf("value should be unresolved without suggestions: %+v", ref)
		}
	}
	if g.Status != staging.StatusNeedsResolution {
		t.Fatalf("expected needs_resolution, got %s", g.Status)
	}

	res := mustStage(t, w, staging.KindValue, "Health\nMovement")
	if res.Resolve.Changed != 2 {
		t.Fatalf("expected both value references to change, got %+v", res.Resolve)
	}
	s, _ = w.Session()
	g = s.Goals[0]
	if g.Values[0].State != staging.RefStaged || g.Values[0].ID != "v1" || g.Values[1].ID != "v2" {
		t.Fatalf("values not staged: %+v", g.Values)
	}
	if g.Status != staging.StatusResolved || s.Step != staging.StepValues {
		t.Fatalf("unexpected status %s step %d", g.Status, s.Step)
	}

	state, err := w.Review()
	if err != nil || !state.CanCommit() {
		t.Fatalf("review: %v %+v", err, state.Errors)
	}
	rec, err := w.Commit(ctx)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	goals, err := eng.ListGoals(ctx, false)
	if err != nil || len(goals) != 1 || goals[0].MeasureID != kmID || len(goals[0].ValueIDs) != 2 {
		t.Fatalf("goal not persisted with links: %v %+v", err, goals)
	}
	if goals[0].ValueIDs[0] != rec.IDs["v1"] {
		t.Fatalf("translation map mismatch: %v vs %v", goals[0].ValueIDs, rec.IDs)
	}
	hist, err := w.History()
	if err != nil || len(hist) != 2 {
		t.Fatalf("history: %v %v", err, hist)
	}
	if _, err := w.Session(); !errors.Is(err, wizard.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after commit, got %v", err)
	}
}

func TestFuzzyMatchWaitsForUserChoice(t *testing.T) {
	w, eng, _ := newTestWizard(t)
	ctx := context.Background()
	if _, err := eng.CreateValue(ctx, engine.ValueCreateOptions{Title: "Health & Vitality"}); err != nil {
		t.Fatalf("create value: %v", err)
	}
	w.Start()
	mustStage(t, w, staging.KindMeasure, "km")
	mustStage(t, w, staging.KindGoal, "Run | 10 | km | Helth")
	s, _ := w.Session()
	ref := s.Goals[0].Values[0]
	if ref.State != staging.RefUnresolved || len(ref.Suggestions) != 1 || ref.Suggestions[0].Title != "Health & Vitality" {
		t.Fatalf("expected one pending suggestion: %+v", ref)
	}
	if s.Goals[0].Status != staging.StatusUserChoice {
		t.Fatalf("expected user_choice, got %s", s.Goals[0].Status)
	}
	state, err := w.Review()
	if err != nil || state.CanCommit() || len(state.Warnings) == 0 {
		t.Fatalf("pending suggestion should block with a warning: %v %+v", err, state)
	}
	if _, err := w.Commit(ctx); !errors.Is(err, engine.ErrNotCommittable) {
		t.Fatalf("expected ErrNotCommittable, got %v", err)
	}

	path := staging.RefPath{Field: "values", Index: 0}
	chosen, err := w.Choose(staging.KindGoal, "g1", path, 0)
	if err != nil || chosen.State != staging.RefExisting {
		t.Fatalf("choose: %v %+v", err, chosen)
	}
	s, _ = w.Session()
	if s.Goals[0].Status != staging.StatusResolved || !s.Dirty {
		t.Fatalf("expected resolved dirty session: %s", s.Goals[0].Status)
	}
	// A later pass keeps the user's choice.
	if _, err := w.Resolve(ctx); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	s, _ = w.Session()
	if s.Goals[0].Values[0].State != staging.RefExisting {
		t.Fatalf("choice lost on re-resolution: %+v", s.Goals[0].Values[0])
	}
	if _, err := w.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestCreateNewOnlyForValuesAndMeasures(t *testing.T) {
	w, _, _ := newTestWizard(t)
	w.Start()
	mustStage(t, w, staging.KindAction, "Swim | 2024-01-01 | laps:20 | Swim more")
	if _, err := w.CreateNew(staging.KindAction, "a1", staging.RefPath{Field: "goals", Index: 0}); err == nil {
		t.Fatalf("expected goal create_new to be refused")
	}
	ref, err := w.CreateNew(staging.KindAction, "a1", staging.RefPath{Field: "measurements", Index: 0})
	if err != nil || ref.State != staging.RefCreateNew || ref.Raw != "laps" {
		t.Fatalf("create new measure: %v %+v", err, ref)
	}
	s, _ := w.Session()
	if s.Actions[0].Status != staging.StatusNeedsResolution {
		t.Fatalf("goal still unresolved, got %s", s.Actions[0].Status)
	}
}

func TestRemoveRevertsReferences(t *testing.T) {
	w, _, _ := newTestWizard(t)
	w.Start()
	mustStage(t, w, staging.KindMeasure, "pages")
	mustStage(t, w, staging.KindGoal, "Read | 300 | pages")
	if err := w.Remove(staging.KindMeasure, "m1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	s, _ := w.Session()
	if s.Goals[0].Measure.State != staging.RefUnresolved || s.Goals[0].Status != staging.StatusNeedsResolution {
		t.Fatalf("goal measure should revert: %+v", s.Goals[0].Measure)
	}
	if err := w.Remove(staging.KindMeasure, "m1"); !errors.Is(err, staging.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestDraftSurvivesRestart(t *testing.T) {
	w, eng, store := newTestWizard(t)
	s, _, _ := w.Start()
	mustStage(t, w, staging.KindValue, "Craft")
	if err := w.SetStep(staging.StepGoals); err != nil {
		t.Fatalf("set step: %v", err)
	}
	if err := w.SetStep(9); err == nil {
		t.Fatalf("expected out of range step error")
	}
	if err := w.SaveDraft(); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	again := wizard.New(eng, store, logging.Discard())
	loaded, err := again.Session()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != s.ID || loaded.Status != staging.SessionDraft || loaded.Step != staging.StepGoals || len(loaded.Values) != 1 {
		t.Fatalf("draft mismatch: %+v", loaded)
	}
	resumed, created, err := again.Start()
	if err != nil || created || resumed.Status != staging.SessionInProgress {
		t.Fatalf("resume: %v created=%v status=%s", err, created, resumed.Status)
	}

	fresh, err := again.StartOver()
	if err != nil || fresh.ID == s.ID || len(fresh.Values) != 0 {
		t.Fatalf("start over: %v %+v", err, fresh)
	}
	if err := again.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, staging.ErrNoDraft) {
		t.Fatalf("expected draft removed, got %v", err)
	}
}

func TestCancelledStageLeavesDraftConsistent(t *testing.T) {
	w, eng, store := newTestWizard(t)
	w.Start()
	mustStage(t, w, staging.KindValue, "Health")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Stage(ctx, staging.KindMeasure, "km"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	s, _ := w.Session()
	draft, err := store.Load()
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	if len(s.Measures) != 0 || len(draft.Measures) != 0 || !draft.UpdatedAt.Equal(s.UpdatedAt) {
		t.Fatalf("cancelled fetch must not stage anything: session %d draft %d", len(s.Measures), len(draft.Measures))
	}

	// Cancel partway through the resolution pass: the first goal is scored, the second is not reached.
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	w.Engine.Resolver = resolve.New(resolve.ScorerFunc(func(a, b string) float64 {
		cancel()
		return 0
	}), 0, 0)
	res, err := w.Stage(ctx, staging.KindGoal, "Run | 10 | km | Helth\nSwim | 5 | km | Helth")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.IDs) != 2 {
		t.Fatalf("staged rows should be kept, got %v", res.IDs)
	}
	s, _ = w.Session()
	draft, err = store.Load()
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	if len(s.Goals) != 2 || len(draft.Goals) != 2 || !draft.UpdatedAt.Equal(s.UpdatedAt) {
		t.Fatalf("draft out of step with session: session %d draft %d", len(s.Goals), len(draft.Goals))
	}
	for i, g := range draft.Goals {
		if g.Status != s.Goals[i].Status || g.Status != staging.StatusNeedsResolution {
			t.Fatalf("goal %s status session=%s draft=%s", g.LocalID, s.Goals[i].Status, g.Status)
		}
	}

	w.Engine.Resolver = engine.NewResolver(eng.Config, nil)
	mustStage(t, w, staging.KindMeasure, "km")
	s, _ = w.Session()
	for _, g := range s.Goals {
		if g.Measure.State != staging.RefStaged || g.Measure.ID != "m1" {
			t.Fatalf("goal %s measure not resolved after retry: %+v", g.LocalID, g.Measure)
		}
	}
}

func TestConcurrentCommitsDoNotInterleave(t *testing.T) {
	w, eng, _ := newTestWizard(t)
	w.Start()
	mustStage(t, w, staging.KindValue, "Health")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.Commit(context.Background())
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, wizard.ErrNoSession):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one commit, got %d", ok)
	}
	values, err := eng.ListValues(context.Background(), false)
	if err != nil || len(values) != 1 {
		t.Fatalf("expected one value persisted: %v %d", err, len(values))
	}
}
