package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"goalline/internal/config"
	"goalline/internal/domain"
	"goalline/internal/events"
	"goalline/internal/repo"
	"goalline/internal/resolve"
	"goalline/internal/staging"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Resolver *resolve.Resolver
	Log      logrus.FieldLogger
	Now      func() time.Time
	NewID    func() string
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Resolver: NewResolver(cfg, nil),
		Log:      logrus.StandardLogger(),
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// NewResolver builds the resolver configured in goalline.yml. A non-nil scorer
// overrides the configured one.
func NewResolver(cfg *config.Config, scorer resolve.Scorer) *resolve.Resolver {
	if scorer == nil {
		switch cfg.Import.Scorer {
		case config.ScorerLevenshtein:
			scorer = resolve.LevenshteinScorer{}
		default:
			scorer = resolve.HeuristicScorer{}
		}
	}
	return resolve.New(scorer, cfg.Import.SuggestionThreshold, cfg.Import.MaxSuggestions)
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) log() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}

func (e Engine) resolver() *resolve.Resolver {
	if e.Resolver != nil {
		return e.Resolver
	}
	return NewResolver(e.config(), nil)
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

// storeCtx bounds a read against the store by the configured timeout.
func (e Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := e.config().Store.Timeout.Std(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// Pools fetches every active value, measure, and goal as resolver candidates.
func (e Engine) Pools(ctx context.Context) (resolve.Pools, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	values, err := e.Repo.ListValues(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("fetch values: %w", err)
	}
	measures, err := e.Repo.ListMeasures(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("fetch measures: %w", err)
	}
	goals, err := e.Repo.ListGoals(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("fetch goals: %w", err)
	}
	p := resolve.Pools{}
	for _, v := range values {
		p[staging.KindValue] = append(p[staging.KindValue], resolve.Candidate{ID: v.ID, Key: v.Title})
	}
	for _, m := range measures {
		p[staging.KindMeasure] = append(p[staging.KindMeasure], resolve.Candidate{ID: m.ID, Key: m.Unit})
	}
	for _, g := range goals {
		p[staging.KindGoal] = append(p[staging.KindGoal], resolve.Candidate{ID: g.ID, Key: g.Title})
	}
	return p, nil
}

func (e Engine) ListValues(ctx context.Context, includeArchived bool) ([]domain.Value, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.Repo.ListValues(ctx, includeArchived)
}

func (e Engine) ListMeasures(ctx context.Context, includeArchived bool) ([]domain.Measure, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.Repo.ListMeasures(ctx, includeArchived)
}

func (e Engine) ListGoals(ctx context.Context, includeArchived bool) ([]domain.Goal, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.Repo.ListGoals(ctx, includeArchived)
}

func (e Engine) ListActions(ctx context.Context, includeArchived bool, limit int) ([]domain.Action, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.Repo.ListActions(ctx, includeArchived, limit)
}

func (e Engine) LatestEvents(ctx context.Context, sessionID string, limit int) ([]domain.Event, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.Repo.LatestEvents(ctx, sessionID, limit)
}

// Archive hides a record from listings and candidate pools without deleting it.
func (e Engine) Archive(ctx context.Context, kind staging.Kind, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ArchiveTx(ctx, tx, repo.Kind(kind), id, e.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, string(kind)+".archived", "", string(kind), id, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// GoalProgress sums contributions per goal. An empty goalID reports every active goal.
func (e Engine) GoalProgress(ctx context.Context, goalID string) ([]domain.GoalProgress, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	rows, err := e.Repo.GoalProgress(ctx, goalID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		finishProgress(&rows[i])
	}
	return rows, nil
}

func finishProgress(p *domain.GoalProgress) {
	if p.Target > 0 {
		p.Percent = p.Total / p.Target * 100
	}
	p.Complete = p.Target > 0 && p.Total >= p.Target
	if rem := p.Target - p.Total; rem > 0 {
		p.Remaining = rem
	}
}
