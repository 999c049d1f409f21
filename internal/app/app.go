// Package app assembles the pieces of a running fastodo instance:
// configuration, the local database, the state store, the pending
// operation log, the backend client, and the reconciliation runner.
// Everything is passed explicitly; nothing reaches for globals.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"fastodo/internal/api"
	"fastodo/internal/config"
	"fastodo/internal/db"
	"fastodo/internal/kv"
	"fastodo/internal/migrate"
	"fastodo/internal/oplog"
	"fastodo/internal/reconcile"
	"fastodo/internal/state"
)

type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	KV        *kv.Store
	Ops       *oplog.Log
	State     *state.Store
	Client    *api.Client
	Runner    *reconcile.Runner
	Logger    *slog.Logger
}

// New opens the workspace and wires an App. The default workspace is
// seeded on first run; a stored session, when present, authenticates the
// backend client.
func New(ctx context.Context, workspace string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store := kv.New(conn, logger)
	ops := oplog.NewLog(store, logger)
	st := state.New(store, ops, logger)
	st.InitializeDefaultWorkspace(ctx)

	client := api.New(cfg.Backend.URL)
	client.Timeout = cfg.Timeout()
	client.Logger = logger

	a := &App{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		KV:        store,
		Ops:       ops,
		State:     st,
		Client:    client,
		Logger:    logger,
	}
	if session, err := a.LoadSession(); err == nil && session != nil {
		client.Token = session.AccessToken
	}

	runner := reconcile.New(st, ops, client, logger)
	if cfg.Sync.RetryLimit > 0 {
		runner.RetryLimit = cfg.Sync.RetryLimit
	}
	a.Runner = runner
	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// UserID resolves the acting user: the stored session wins, then the
// configured user id. Empty when signed out and unconfigured.
func (a *App) UserID() string {
	if session, err := a.LoadSession(); err == nil && session != nil && session.UserID != "" {
		return session.UserID
	}
	return a.Config.User.ID
}
