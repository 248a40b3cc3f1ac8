package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"goalline/internal/domain"
	"goalline/internal/events"
	"goalline/internal/parse"
	"goalline/internal/repo"
	"goalline/internal/staging"
	"goalline/internal/validate"
)

var (
	ErrNotCommittable   = errors.New("session has blocking validation errors")
	ErrAlreadyCommitted = errors.New("session already committed")
)

// CommitError reports which phase of a commit failed. Nothing was persisted.
type CommitError struct {
	Phase   string
	Kind    staging.Kind
	LocalID string
	Issues  []staging.Issue
	Err     error
}

func (e *CommitError) Error() string {
	if e.LocalID != "" {
		return fmt.Sprintf("commit %s: %s %s: %v", e.Phase, e.Kind, e.LocalID, e.Err)
	}
	return fmt.Sprintf("commit %s: %v", e.Phase, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Commit persists every staged entity of s in one transaction, in dependency
// order: values, measures, goals with their value links, then actions with
// their measurements and goal contributions. On success the session is marked
// completed and carries the local to persisted id map. On failure the store and
// the session are unchanged.
func (e Engine) Commit(ctx context.Context, s *staging.Session) (*staging.CommitRecord, error) {
	if s.Status == staging.SessionCompleted {
		return nil, &CommitError{Phase: "precondition", Err: ErrAlreadyCommitted}
	}
	cfg := e.config()
	state := validate.Session(s, validate.Options{LowConfidence: cfg.Import.LowConfidence, Now: e.now()})
	if !state.CanCommit() {
		return nil, &CommitError{Phase: "validate", Issues: state.Errors, Err: fmt.Errorf("%w: %d errors", ErrNotCommittable, len(state.Errors))}
	}
	if s.Empty() {
		return nil, &CommitError{Phase: "precondition", Err: errors.New("nothing staged")}
	}

	now := e.now().UTC()
	c := &committer{
		e:       e,
		s:       s,
		now:     now.Format(time.RFC3339),
		ids:     map[string]string{},
		created: map[string]string{},
		tracked: map[string]repo.GoalTracking{},
	}
	log := e.log().WithFields(logrus.Fields{"session_id": s.ID})

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, &CommitError{Phase: "begin", Err: err}
	}
	defer tx.Rollback()
	c.tx = tx

	for _, phase := range []struct {
		name string
		run  func(context.Context) error
	}{
		{"values", c.values},
		{"measures", c.measures},
		{"goals", c.goals},
		{"actions", c.actions},
	} {
		if err := phase.run(ctx); err != nil {
			var ce *CommitError
			if !errors.As(err, &ce) {
				ce = &CommitError{Phase: phase.name, Err: err}
			}
			log.WithError(err).WithField("phase", ce.Phase).Warn("import commit rolled back")
			return nil, ce
		}
	}
	payload := events.EventPayload{
		"values":            len(s.Values),
		"measures":          len(s.Measures),
		"goals":             len(s.Goals),
		"actions":           len(s.Actions),
		"created_from_text": len(c.created),
	}
	if err := e.Events.Append(ctx, tx, "import.committed", s.ID, "session", s.ID, payload); err != nil {
		return nil, &CommitError{Phase: "events", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &CommitError{Phase: "commit", Err: err}
	}

	record := &staging.CommitRecord{CommittedAt: now, IDs: c.ids, CreatedFromText: c.created}
	s.Status = staging.SessionCompleted
	s.Committed = record
	s.Validation = state
	s.Dirty = false
	s.UpdatedAt = now
	log.WithFields(logrus.Fields(payload)).Info("import committed")
	return record, nil
}

type committer struct {
	e       Engine
	tx      *sql.Tx
	s       *staging.Session
	now     string
	ids     map[string]string
	created map[string]string
	tracked map[string]repo.GoalTracking
}

func (c *committer) fail(phase string, k staging.Kind, localID string, err error) error {
	return &CommitError{Phase: phase, Kind: k, LocalID: localID, Err: err}
}

func (c *committer) values(ctx context.Context) error {
	for _, v := range c.s.Values {
		id := c.e.newID()
		rec := domain.Value{
			ID:                id,
			Title:             v.Title,
			Level:             string(v.Level),
			Priority:          v.Priority,
			Description:       v.Description,
			LifeDomain:        lifeDomain(v.LifeDomain),
			Notes:             v.Notes,
			AlignmentGuidance: v.AlignmentGuidance,
			CreatedAt:         c.now,
		}
		if err := c.e.Repo.InsertValueTx(ctx, c.tx, rec); err != nil {
			return c.fail("values", staging.KindValue, v.LocalID, err)
		}
		if err := c.e.Events.Append(ctx, c.tx, "value.created", c.s.ID, "value", id, events.EventPayload{"local_id": v.LocalID}); err != nil {
			return err
		}
		c.ids[v.LocalID] = id
	}
	return c.createFromText(ctx, staging.KindValue)
}

func (c *committer) measures(ctx context.Context) error {
	for _, m := range c.s.Measures {
		id := c.e.newID()
		rec := domain.Measure{ID: id, Unit: m.Unit, MeasureType: string(m.MeasureType), Description: m.Description, CreatedAt: c.now}
		if err := c.e.Repo.InsertMeasureTx(ctx, c.tx, rec); err != nil {
			return c.fail("measures", staging.KindMeasure, m.LocalID, err)
		}
		if err := c.e.Events.Append(ctx, c.tx, "measure.created", c.s.ID, "measure", id, events.EventPayload{"local_id": m.LocalID}); err != nil {
			return err
		}
		c.ids[m.LocalID] = id
	}
	return c.createFromText(ctx, staging.KindMeasure)
}

// createFromText inserts one record per distinct create_new reference of kind k.
func (c *committer) createFromText(ctx context.Context, k staging.Kind) error {
	var err error
	c.s.EachSlot(func(owner staging.Kind, localID string, slot staging.RefSlot) {
		if err != nil || slot.Target != k || slot.Ref.State != staging.RefCreateNew {
			return
		}
		key := createdKey(k, slot.Ref.Raw)
		if _, ok := c.created[key]; ok {
			return
		}
		id := c.e.newID()
		switch k {
		case staging.KindValue:
			err = c.e.Repo.InsertValueTx(ctx, c.tx, domain.Value{
				ID:         id,
				Title:      slot.Ref.Raw,
				Level:      string(staging.LevelGeneral),
				Priority:   c.e.config().Import.DefaultPriority,
				LifeDomain: lifeDomain(""),
				CreatedAt:  c.now,
			})
		case staging.KindMeasure:
			err = c.e.Repo.InsertMeasureTx(ctx, c.tx, domain.Measure{
				ID:          id,
				Unit:        slot.Ref.Raw,
				MeasureType: string(parse.InferMeasureType(slot.Ref.Raw)),
				CreatedAt:   c.now,
			})
		default:
			err = fmt.Errorf("%s %q cannot be created from a reference", k, slot.Ref.Raw)
		}
		if err != nil {
			err = c.fail(string(k)+"s", owner, localID, fmt.Errorf("create %s %q: %w", k, slot.Ref.Raw, err))
			return
		}
		err = c.e.Events.Append(ctx, c.tx, string(k)+".created", c.s.ID, string(k), id, events.EventPayload{"from_reference": slot.Ref.Raw})
		c.created[key] = id
	})
	return err
}

func createdKey(k staging.Kind, raw string) string {
	return string(k) + ":" + staging.NormalizeKey(raw)
}

// target maps a resolved reference to the persisted id it stands for.
func (c *committer) target(k staging.Kind, ref staging.Reference) (string, error) {
	switch ref.State {
	case staging.RefExisting:
		return ref.ID, nil
	case staging.RefStaged:
		if id, ok := c.ids[ref.ID]; ok {
			return id, nil
		}
		return "", fmt.Errorf("staged %s %s was not committed before its dependents", k, ref.ID)
	case staging.RefCreateNew:
		if id, ok := c.created[createdKey(k, ref.Raw)]; ok {
			return id, nil
		}
		return "", fmt.Errorf("%s %q was not created", k, ref.Raw)
	}
	return "", fmt.Errorf("%s reference %q is unresolved", k, ref.Raw)
}

func (c *committer) goals(ctx context.Context) error {
	for _, g := range c.s.Goals {
		measureID, err := c.target(staging.KindMeasure, g.Measure)
		if err != nil {
			return c.fail("goals", staging.KindGoal, g.LocalID, err)
		}
		id := c.e.newID()
		rec := domain.Goal{
			ID:          id,
			Title:       g.Title,
			TargetValue: g.TargetValue,
			MeasureID:   measureID,
			StartDate:   formatDate(g.StartDate),
			TargetDate:  formatDate(g.TargetDate),
			ActionPlan:  g.ActionPlan,
			CreatedAt:   c.now,
		}
		var rels []domain.GoalRelevance
		seen := map[string]bool{}
		for _, ref := range g.Values {
			valueID, err := c.target(staging.KindValue, ref)
			if err != nil {
				return c.fail("goals", staging.KindGoal, g.LocalID, err)
			}
			if seen[valueID] {
				continue
			}
			seen[valueID] = true
			rels = append(rels, domain.GoalRelevance{ID: c.e.newID(), GoalID: id, ValueID: valueID, CreatedAt: c.now})
		}
		if err := c.e.Repo.InsertGoalTx(ctx, c.tx, rec, rels); err != nil {
			return c.fail("goals", staging.KindGoal, g.LocalID, err)
		}
		if err := c.e.Events.Append(ctx, c.tx, "goal.created", c.s.ID, "goal", id, events.EventPayload{"local_id": g.LocalID, "values": len(rels)}); err != nil {
			return err
		}
		c.ids[g.LocalID] = id
		c.tracked[id] = repo.GoalTracking{MeasureID: measureID, StartDate: rec.StartDate, TargetDate: rec.TargetDate}
	}
	return nil
}

func (c *committer) actions(ctx context.Context) error {
	for _, a := range c.s.Actions {
		id := c.e.newID()
		rec := domain.Action{
			ID:              id,
			Title:           a.Title,
			OccurredAt:      a.OccurredAt.UTC().Format(time.RFC3339),
			DurationMinutes: a.DurationMinutes,
			CreatedAt:       c.now,
		}
		day := a.OccurredAt.UTC().Format("2006-01-02")
		var measured []domain.MeasuredAction
		amounts := map[string]float64{}
		for _, m := range a.Measurements {
			measureID, err := c.target(staging.KindMeasure, m.Measure)
			if err != nil {
				return c.fail("actions", staging.KindAction, a.LocalID, err)
			}
			measured = append(measured, domain.MeasuredAction{ID: c.e.newID(), ActionID: id, MeasureID: measureID, Value: m.Value, CreatedAt: c.now})
			amounts[measureID] += m.Value
		}
		var contributions []domain.Contribution
		seen := map[string]bool{}
		for _, ref := range a.Goals {
			goalID, err := c.target(staging.KindGoal, ref)
			if err != nil {
				return c.fail("actions", staging.KindAction, a.LocalID, err)
			}
			if seen[goalID] {
				continue
			}
			seen[goalID] = true
			contrib := domain.Contribution{ID: c.e.newID(), ActionID: id, GoalID: goalID, CreatedAt: c.now}
			goal, err := c.goalTracking(ctx, goalID)
			if err != nil {
				return c.fail("actions", staging.KindAction, a.LocalID, fmt.Errorf("goal %q: %w", ref.Raw, err))
			}
			if amount, ok := amounts[goal.MeasureID]; ok && inPeriod(goal, day) {
				mid, amt := goal.MeasureID, amount
				contrib.MeasureID, contrib.Amount = &mid, &amt
			}
			contributions = append(contributions, contrib)
		}
		if err := c.e.Repo.InsertActionTx(ctx, c.tx, rec, measured, contributions); err != nil {
			return c.fail("actions", staging.KindAction, a.LocalID, err)
		}
		if err := c.e.Events.Append(ctx, c.tx, "action.created", c.s.ID, "action", id, events.EventPayload{"local_id": a.LocalID, "goals": len(contributions)}); err != nil {
			return err
		}
		c.ids[a.LocalID] = id
	}
	return nil
}

func (c *committer) goalTracking(ctx context.Context, goalID string) (repo.GoalTracking, error) {
	if g, ok := c.tracked[goalID]; ok {
		return g, nil
	}
	g, err := c.e.Repo.GoalTrackingTx(ctx, c.tx, goalID)
	if errors.Is(err, repo.ErrNotFound) {
		return g, fmt.Errorf("goal %s does not exist", goalID)
	}
	if err != nil {
		return g, err
	}
	c.tracked[goalID] = g
	return g, nil
}

// inPeriod reports whether day falls between the goal's dates, both inclusive.
// A goal without a date is open on that side.
func inPeriod(g repo.GoalTracking, day string) bool {
	if g.StartDate != nil && day < *g.StartDate {
		return false
	}
	if g.TargetDate != nil && day > *g.TargetDate {
		return false
	}
	return true
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format("2006-01-02")
	return &s
}

func lifeDomain(s string) string {
	if s == "" {
		return "General"
	}
	return s
}
