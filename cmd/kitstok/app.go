package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erazemk/kitstok/internal/api"
	"github.com/erazemk/kitstok/internal/auth"
	"github.com/erazemk/kitstok/internal/blob"
	"github.com/erazemk/kitstok/internal/config"
	"github.com/erazemk/kitstok/internal/db"
	"github.com/erazemk/kitstok/internal/github"
	"github.com/erazemk/kitstok/internal/inventory"
	"github.com/erazemk/kitstok/internal/model"
	"github.com/erazemk/kitstok/internal/notify"
	"github.com/erazemk/kitstok/internal/recordstore"
	"github.com/erazemk/kitstok/internal/store"
	"github.com/erazemk/kitstok/internal/web"
)

// app holds the wired services shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	inventory *inventory.Service
}

// newApp opens the local database and wires the record store, notifier and
// inventory service from cfg.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	database, err := db.Open(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("ensuring database schema: %w", err)
	}
	logger.Info("database ready", "path", cfg.Server.DBPath)

	backend, err := newBackend(cfg, database, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	policy, err := inventory.ParseDuplicatePolicy(cfg.Alerts.Duplicates)
	if err != nil {
		database.Close()
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		database.Close()
		return nil, err
	}

	notifier := notify.NewTwilio(notify.TwilioConfig{
		AccountSID: cfg.Alerts.Twilio.AccountSID,
		AuthToken:  cfg.Alerts.Twilio.AuthToken,
		From:       cfg.Alerts.Twilio.From,
		BaseURL:    cfg.Alerts.Twilio.APIURL,
		Timeout:    cfg.Store.HTTPTimeout,
	}, logger)
	if !notifier.Configured() {
		logger.Warn("messaging gateway not configured, expiry alerts will be skipped")
	}

	inv := inventory.New(recordstore.New(backend, logger), notifier, database, inventory.Config{
		Active:      recordstore.Dataset{Name: "active", Path: cfg.Store.ActivePath, Status: model.StatusActive},
		Expired:     recordstore.Dataset{Name: "expired", Path: cfg.Store.ExpiredPath, Status: model.StatusExpired},
		Deleted:     recordstore.Dataset{Name: "deleted", Path: cfg.Store.DeletedPath, Status: model.StatusDeleted},
		WarnHorizon: cfg.Alerts.WarnHorizonDays,
		Duplicates:  policy,
		AlertTo:     cfg.Alerts.To,
		Location:    loc,
	}, logger)

	return &app{cfg: cfg, logger: logger, db: database, inventory: inv}, nil
}

func newBackend(cfg *config.Config, database *sql.DB, logger *slog.Logger) (blob.Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendGitHub:
		backend, err := github.New(github.Config{
			Token:     cfg.Store.GitHub.Token,
			Repo:      cfg.Store.GitHub.Repo,
			Branch:    cfg.Store.GitHub.Branch,
			BaseURL:   cfg.Store.GitHub.APIURL,
			Timeout:   cfg.Store.HTTPTimeout,
			CacheSize: cfg.Store.GitHub.CacheSize,
			CacheTTL:  cfg.Store.GitHub.CacheTTL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("configuring github backend: %w", err)
		}
		logger.Info("using github backend", "repo", cfg.Store.GitHub.Repo, "path", cfg.Store.ActivePath)
		return backend, nil
	default:
		logger.Info("using local backend", "db", cfg.Server.DBPath)
		return &store.Datasets{DB: database}, nil
	}
}

// handler builds the combined API, metrics and page handler.
func (a *app) handler(ctx context.Context) (http.Handler, error) {
	if err := a.cfg.ValidateAuth(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	authn, err := auth.NewAuthenticator(ctx, a.db, a.cfg.Auth.Username, a.cfg.Auth.PasswordHash, a.cfg.Server.SessionTTL, a.logger)
	if err != nil {
		return nil, err
	}

	pages, err := web.NewRouter(authn, a.inventory, a.cfg.Server.SecureCookies, a.logger)
	if err != nil {
		return nil, fmt.Errorf("setting up web router: %w", err)
	}

	return api.NewRootHandler(api.NewRouter(authn, a.inventory, a.logger), pages, a.logger), nil
}

func (a *app) Close() error {
	return a.db.Close()
}
