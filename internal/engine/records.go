package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"goalline/internal/domain"
	"goalline/internal/staging"
)

// ValueCreateOptions are parameters for creating a single value outside an import.
type ValueCreateOptions struct {
	Title             string
	Level             string
	Priority          int
	Description       string
	LifeDomain        string
	Notes             string
	AlignmentGuidance string
}

// CreateValue stages one value in a throwaway session and commits it.
func (e Engine) CreateValue(ctx context.Context, opts ValueCreateOptions) (domain.Value, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Value{}, errors.New("title is required")
	}
	level, err := staging.ParseLevel(opts.Level)
	if err != nil {
		return domain.Value{}, err
	}
	if opts.Priority == 0 {
		opts.Priority = e.config().Import.DefaultPriority
	}
	s := staging.NewSession(e.now())
	s.AddValues([]staging.StagedValue{{
		Title:             strings.TrimSpace(opts.Title),
		Level:             level,
		Priority:          opts.Priority,
		Description:       opts.Description,
		LifeDomain:        opts.LifeDomain,
		Notes:             opts.Notes,
		AlignmentGuidance: opts.AlignmentGuidance,
	}}, e.now())
	rec, err := e.Commit(ctx, s)
	if err != nil {
		return domain.Value{}, err
	}
	return e.Repo.GetValue(ctx, rec.IDs[s.Values[0].LocalID])
}

// UnitAmount is one measurement given by unit name.
type UnitAmount struct {
	Unit   string  `json:"unit"`
	Amount float64 `json:"amount"`
}

// ActionLogOptions are parameters for logging one action against existing records.
type ActionLogOptions struct {
	Title           string
	OccurredAt      time.Time
	DurationMinutes *float64
	Measurements    []UnitAmount
	Goals           []string
	// CreateMissingMeasures creates units that match no existing measure.
	CreateMissingMeasures bool
}

// UnresolvedError lists references of a direct operation that matched nothing exactly.
type UnresolvedError struct {
	References []staging.Reference
}

func (e *UnresolvedError) Error() string {
	parts := make([]string, 0, len(e.References))
	for _, r := range e.References {
		if len(r.Suggestions) > 0 {
			parts = append(parts, fmt.Sprintf("%q (did you mean %q?)", r.Raw, r.Suggestions[0].Title))
			continue
		}
		parts = append(parts, fmt.Sprintf("%q", r.Raw))
	}
	return "unresolved references: " + strings.Join(parts, ", ")
}

// LogAction resolves units and goal titles against existing records by exact
// match and commits the action. Fuzzy matches are reported, never applied.
func (e Engine) LogAction(ctx context.Context, opts ActionLogOptions) (domain.Action, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Action{}, errors.New("title is required")
	}
	if opts.OccurredAt.IsZero() {
		opts.OccurredAt = e.now()
	}
	pools, err := e.Pools(ctx)
	if err != nil {
		return domain.Action{}, err
	}
	r := e.resolver()
	action := staging.StagedAction{Title: strings.TrimSpace(opts.Title), OccurredAt: opts.OccurredAt.UTC(), DurationMinutes: opts.DurationMinutes}
	var missing []staging.Reference
	for _, m := range opts.Measurements {
		ref := r.Resolve(staging.Unresolved(m.Unit), pools[staging.KindMeasure], nil)
		if !ref.IsResolved() {
			if opts.CreateMissingMeasures {
				ref = staging.CreateNew(m.Unit)
			} else {
				missing = append(missing, ref)
			}
		}
		action.Measurements = append(action.Measurements, staging.Measurement{Measure: ref, Value: m.Amount})
	}
	for _, title := range opts.Goals {
		ref := r.Resolve(staging.Unresolved(title), pools[staging.KindGoal], nil)
		if !ref.IsResolved() {
			missing = append(missing, ref)
		}
		action.Goals = append(action.Goals, ref)
	}
	if len(missing) > 0 {
		return domain.Action{}, &UnresolvedError{References: missing}
	}
	s := staging.NewSession(e.now())
	s.AddActions([]staging.StagedAction{action}, e.now())
	rec, err := e.Commit(ctx, s)
	if err != nil {
		return domain.Action{}, err
	}
	return e.Repo.GetAction(ctx, rec.IDs[s.Actions[0].LocalID])
}
