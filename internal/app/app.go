// Package app wires a workspace: config, logger, migrated store, engine, and wizard.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"goalline/internal/config"
	"goalline/internal/db"
	"goalline/internal/embedding"
	"goalline/internal/engine"
	"goalline/internal/logging"
	"goalline/internal/migrate"
	"goalline/internal/resolve"
	"goalline/internal/staging"
	"goalline/internal/wizard"
)

// Options override workspace defaults.
type Options struct {
	// LogLevel replaces log.level from goalline.yml when set.
	LogLevel string
	// Logger replaces the configured logger, mostly for tests.
	Logger *logrus.Logger
}

type App struct {
	Workspace string
	Config    *config.Config
	Log       *logrus.Logger
	DB        *sql.DB
	Engine    engine.Engine
	Wizard    *wizard.Wizard
}

// Open loads goalline.yml (defaults when absent), opens and migrates the
// workspace database, and builds the engine and wizard on top.
func Open(ctx context.Context, workspace string, opts Options) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		lc := cfg.Log
		if opts.LogLevel != "" {
			lc.Level = opts.LogLevel
		}
		if log, err = logging.New(lc); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", db.Path(workspace), err)
	}
	scorer, err := Scorer(cfg, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	eng := engine.New(conn, cfg)
	eng.Log = log
	eng.Resolver = engine.NewResolver(cfg, scorer)
	store := staging.NewFileStore(filepath.Join(db.StateDir(workspace), "imports"))
	return &App{
		Workspace: workspace,
		Config:    cfg,
		Log:       log,
		DB:        conn,
		Engine:    eng,
		Wizard:    wizard.New(eng, store, log),
	}, nil
}

// Scorer returns the embedding scorer when import.scorer is embedding, nil otherwise.
func Scorer(cfg *config.Config, log logrus.FieldLogger) (resolve.Scorer, error) {
	if cfg.Import.Scorer != config.ScorerEmbedding {
		return nil, nil
	}
	e, err := embedding.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding scorer: %w", err)
	}
	return embedding.NewScorer(e, log), nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
