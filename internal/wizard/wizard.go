// Package wizard sequences an import across its steps. It owns the one live
// session and serializes every mutation of it.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"goalline/internal/config"
	"goalline/internal/engine"
	"goalline/internal/parse"
	"goalline/internal/resolve"
	"goalline/internal/staging"
	"goalline/internal/validate"
)

var ErrNoSession = errors.New("no import session; run gl import start")

type Wizard struct {
	Engine engine.Engine
	// Store persists the session after each mutation. Nil keeps it in memory only.
	Store *staging.FileStore
	Log   logrus.FieldLogger

	mu      sync.Mutex
	session *staging.Session
	loaded  bool
}

func New(eng engine.Engine, store *staging.FileStore, log logrus.FieldLogger) *Wizard {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Wizard{Engine: eng, Store: store, Log: log}
}

func (w *Wizard) now() time.Time {
	if w.Engine.Now != nil {
		return w.Engine.Now()
	}
	return time.Now()
}

func (w *Wizard) config() *config.Config {
	if w.Engine.Config != nil {
		return w.Engine.Config
	}
	return config.Default()
}

func (w *Wizard) resolver() *resolve.Resolver {
	if w.Engine.Resolver != nil {
		return w.Engine.Resolver
	}
	return engine.NewResolver(w.config(), nil)
}

// StageResult reports one staging call: the new local ids, rows that failed to
// parse, and the re-resolution pass that followed.
type StageResult struct {
	Kind    staging.Kind       `json:"kind"`
	IDs     []string           `json:"ids"`
	Errors  []parse.ParseError `json:"errors,omitempty"`
	Resolve resolve.Summary    `json:"resolve"`
}

// current returns the live session, loading the draft on first use. Callers hold w.mu.
func (w *Wizard) current() (*staging.Session, error) {
	if w.session == nil && !w.loaded && w.Store != nil {
		s, err := w.Store.Load()
		switch {
		case errors.Is(err, staging.ErrNoDraft):
		case err != nil:
			return nil, err
		default:
			w.session = s
		}
		w.loaded = true
	}
	if w.session == nil {
		return nil, ErrNoSession
	}
	return w.session, nil
}

func (w *Wizard) save(s *staging.Session) error {
	if w.Store == nil {
		return nil
	}
	if err := w.Store.Save(s); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Start resumes the current session or creates a new one.
func (w *Wizard) Start() (*staging.Session, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, err := w.current(); err == nil {
		if s.Status == staging.SessionDraft {
			s.Status = staging.SessionInProgress
			if err := w.save(s); err != nil {
				return nil, false, err
			}
		}
		return s.Clone(), false, nil
	} else if !errors.Is(err, ErrNoSession) {
		return nil, false, err
	}
	s := staging.NewSession(w.now())
	if err := w.save(s); err != nil {
		return nil, false, err
	}
	w.session = s
	w.Log.WithField("session_id", s.ID).Info("import session started")
	return s.Clone(), true, nil
}

// StartOver discards the current session, if any, and begins a fresh one.
func (w *Wizard) StartOver() (*staging.Session, error) {
	w.mu.Lock()
	if err := w.discard(); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.mu.Unlock()
	s, _, err := w.Start()
	return s, err
}

// Discard drops the current session and its draft.
func (w *Wizard) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.current(); err != nil {
		return err
	}
	return w.discard()
}

func (w *Wizard) discard() error {
	if w.session != nil {
		w.Log.WithField("session_id", w.session.ID).Info("import session discarded")
	}
	w.session = nil
	w.loaded = true
	if w.Store == nil {
		return nil
	}
	return w.Store.Discard()
}

// Session returns a copy of the current session.
func (w *Wizard) Session() (*staging.Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.current()
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// mutate runs fn on the live session and saves it when fn succeeds.
func (w *Wizard) mutate(fn func(s *staging.Session) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.current()
	if err != nil {
		return err
	}
	if s.Status == staging.SessionCompleted {
		return engine.ErrAlreadyCommitted
	}
	if err := fn(s); err != nil {
		return err
	}
	return w.save(s)
}

// Stage parses text as entities of kind, adds the rows that parsed, moves the
// wizard to that kind's step, and re-resolves every reference in the session.
func (w *Wizard) Stage(ctx context.Context, kind staging.Kind, text string) (StageResult, error) {
	res := StageResult{Kind: kind}
	pc := parse.Context{DefaultPriority: w.config().Import.DefaultPriority, Now: w.now()}
	var add func(s *staging.Session) []string
	switch kind {
	case staging.KindValue:
		r := parse.Values(text, pc)
		res.Errors = r.Errors
		add = func(s *staging.Session) []string { return s.AddValues(r.Entities, pc.Now) }
	case staging.KindMeasure:
		r := parse.Measures(text, pc)
		res.Errors = r.Errors
		add = func(s *staging.Session) []string { return s.AddMeasures(r.Entities, pc.Now) }
	case staging.KindGoal:
		r := parse.Goals(text, pc)
		res.Errors = r.Errors
		add = func(s *staging.Session) []string { return s.AddGoals(r.Entities, pc.Now) }
	case staging.KindAction:
		r := parse.Actions(text, pc)
		res.Errors = r.Errors
		add = func(s *staging.Session) []string { return s.AddActions(r.Entities, pc.Now) }
	default:
		return res, fmt.Errorf("unknown entity kind %q", kind)
	}
	pools, err := w.Engine.Pools(ctx)
	if err != nil {
		return res, err
	}
	// A cancelled resolution pass still keeps the staged rows and every entity
	// it finished; the rest are retried on the next pass.
	var resolveErr error
	err = w.mutate(func(s *staging.Session) error {
		res.IDs = add(s)
		s.Step = stepOf(kind)
		res.Resolve, resolveErr = w.resolver().ResolveSession(ctx, s, pools)
		return nil
	})
	if err != nil {
		return res, err
	}
	w.Log.WithFields(logrus.Fields{"kind": kind, "staged": len(res.IDs), "parse_errors": len(res.Errors)}).Info("entities staged")
	return res, resolveErr
}

func stepOf(k staging.Kind) staging.Step {
	switch k {
	case staging.KindMeasure:
		return staging.StepMeasures
	case staging.KindGoal:
		return staging.StepGoals
	case staging.KindAction:
		return staging.StepActions
	}
	return staging.StepValues
}

// Resolve re-runs resolution for the whole session against fresh pools.
// Pools are read before the session lock is taken.
func (w *Wizard) Resolve(ctx context.Context) (resolve.Summary, error) {
	pools, err := w.Engine.Pools(ctx)
	if err != nil {
		return resolve.Summary{}, err
	}
	var sum resolve.Summary
	var resolveErr error
	err = w.mutate(func(s *staging.Session) error {
		sum, resolveErr = w.resolver().ResolveSession(ctx, s, pools)
		if sum.Changed > 0 {
			s.MarkDirty(w.now())
		}
		return nil
	})
	if err != nil {
		return sum, err
	}
	return sum, resolveErr
}

// Choose resolves the reference at path to its i-th suggestion.
func (w *Wizard) Choose(kind staging.Kind, localID string, path staging.RefPath, i int) (staging.Reference, error) {
	var chosen staging.Reference
	err := w.mutate(func(s *staging.Session) error {
		ref, err := s.Reference(kind, localID, path)
		if err != nil {
			return err
		}
		if chosen, err = ref.Choose(i); err != nil {
			return err
		}
		return s.SetReference(kind, localID, path, chosen, w.now())
	})
	return chosen, err
}

// CreateNew marks the reference at path to be created from its own text at commit.
func (w *Wizard) CreateNew(kind staging.Kind, localID string, path staging.RefPath) (staging.Reference, error) {
	var next staging.Reference
	err := w.mutate(func(s *staging.Session) error {
		slots, err := s.Slots(kind, localID)
		if err != nil {
			return err
		}
		for _, slot := range slots {
			if slot.Path.String() != path.String() {
				continue
			}
			if slot.Target == staging.KindGoal {
				return fmt.Errorf("goal %q cannot be created from a reference; stage it as a goal instead", slot.Ref.Raw)
			}
			next = staging.CreateNew(slot.Ref.Raw)
			return s.SetReference(kind, localID, path, next, w.now())
		}
		return fmt.Errorf("%s %s has no reference %s", kind, localID, path)
	})
	return next, err
}

// Remove deletes a staged entity. References to it become unresolved.
func (w *Wizard) Remove(kind staging.Kind, localID string) error {
	return w.mutate(func(s *staging.Session) error {
		return s.Remove(kind, localID, w.now())
	})
}

func (w *Wizard) SetStep(step staging.Step) error {
	if !step.Valid() {
		return fmt.Errorf("step %d out of range 1..5", step)
	}
	return w.mutate(func(s *staging.Session) error {
		s.Step = step
		s.UpdatedAt = w.now().UTC()
		return nil
	})
}

func (w *Wizard) MarkDirty() error {
	return w.mutate(func(s *staging.Session) error {
		s.MarkDirty(w.now())
		return nil
	})
}

// Review validates the session, records the result on it, and moves to the review step.
func (w *Wizard) Review() (staging.ValidationState, error) {
	var state staging.ValidationState
	err := w.mutate(func(s *staging.Session) error {
		state = validate.Session(s, validate.Options{LowConfidence: w.config().Import.LowConfidence, Now: w.now()})
		s.Validation = state
		s.Step = staging.StepReview
		return nil
	})
	return state, err
}

// SaveDraft persists the session with status draft so a later start resumes it.
func (w *Wizard) SaveDraft() error {
	return w.mutate(func(s *staging.Session) error {
		s.Status = staging.SessionDraft
		s.UpdatedAt = w.now().UTC()
		return nil
	})
}

// Commit persists the session. The lock is held for the whole commit so no
// other mutation or second commit can interleave. A committed session is
// archived to history and the wizard has no current session afterwards.
func (w *Wizard) Commit(ctx context.Context) (*staging.CommitRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.current()
	if err != nil {
		return nil, err
	}
	rec, err := w.Engine.Commit(ctx, s)
	if err != nil {
		return nil, err
	}
	if w.Store != nil {
		if err := w.Store.Archive(s); err != nil {
			// The draft must not stay committable once the store holds its records.
			w.Log.WithError(err).WithField("session_id", s.ID).Warn("archive committed session")
			if err := w.Store.Save(s); err != nil {
				w.Log.WithError(err).WithField("session_id", s.ID).Error("save committed session")
			}
		}
	}
	w.session = nil
	w.loaded = true
	return rec, nil
}

// History lists archived session ids, oldest first.
func (w *Wizard) History() ([]string, error) {
	if w.Store == nil {
		return nil, nil
	}
	return w.Store.History()
}
