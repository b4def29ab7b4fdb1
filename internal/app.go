// Package internal assembles the engine from its components.
package internal

import (
	"context"
	"fmt"
	"log/slog"

	"wibi/internal/backend"
	"wibi/internal/botdetect"
	"wibi/internal/config"
	"wibi/internal/consent"
	"wibi/internal/database"
	"wibi/internal/delivery"
	"wibi/internal/logging"
	"wibi/internal/sessions"
	"wibi/internal/storage"
	"wibi/internal/visitors"
	"wibi/internal/widget"
)

// Engine is one fully wired tracking engine instance.
type Engine struct {
	Config     *config.Config
	Logger     *slog.Logger
	DBManager  *database.DBManager
	Store      *storage.Store
	Gate       *consent.Gate
	Queue      *delivery.Queue
	Behavior   *botdetect.Behavior
	Controller *widget.Controller

	durable *storage.DurableTier
}

// Options tailors engine assembly. Signals is required; the rest have
// working defaults.
type Options struct {
	Signals   botdetect.BrowserSignals
	Prompter  consent.Prompter
	DataLayer widget.DataLayer
}

// NewEngine builds the engine: configuration, logging, the tiered store
// over SQLite, and the widget controller on top.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Signals == nil {
		return nil, fmt.Errorf("engine requires browser signals")
	}

	cfg := config.GetConfig()
	logger := logging.NewLogger(cfg)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	durable := storage.NewDurableTier(dbManager, logger)
	session := storage.NewMemoryTier()
	cookies, err := storage.NewCookieJarTier(cfg.CookieJarPath, cfg.IsProduction())
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie jar: %w", err)
	}
	store := storage.New(durable, session, cookies, logger)

	prompter := opts.Prompter
	if prompter == nil {
		prompter = consent.NewTerminalPrompter(logger)
	}
	gate := consent.NewGate(store, logger, cfg.ConsentRequired, cfg.ConsentTTL(), prompter)

	visitorManager := visitors.NewManager(store, logger, cfg.VisitorTokenTTL())
	tracker := sessions.NewTracker(store, logger, cfg.SessionTimeout(), cfg.IdleTimeout())

	queue := delivery.NewQueue(store, logger, delivery.Options{
		MaxAttempts:   cfg.RetryAttempts,
		BaseDelay:     cfg.RetryBaseDelay(),
		OfflineMaxAge: cfg.OfflineMaxAge(),
	})

	client := backend.NewClient(cfg.APIBaseURL, cfg.WebsiteID, logger)

	behavior := botdetect.NewBehavior()
	policy := botdetect.DefaultPolicy()
	policy.Threshold = cfg.BotScoreThreshold
	policy.ObservationWindow = cfg.BotObservationWindow()
	detector := botdetect.New(opts.Signals, behavior, policy, logger)

	controller := widget.NewController(widget.Deps{
		Logger:    logger,
		Gate:      gate,
		Visitors:  visitorManager,
		Tracker:   tracker,
		Queue:     queue,
		Client:    client,
		Signals:   opts.Signals,
		Behavior:  behavior,
		Detector:  detector,
		DataLayer: opts.DataLayer,
	})

	gate.OnChange(func(consent.Record) {
		controller.SyncConsent()
	})

	return &Engine{
		Config:     cfg,
		Logger:     logger,
		DBManager:  dbManager,
		Store:      store,
		Gate:       gate,
		Queue:      queue,
		Behavior:   behavior,
		Controller: controller,
		durable:    durable,
	}, nil
}

// Start runs the visit lifecycle for a page and replays anything parked
// offline from an earlier run.
func (e *Engine) Start(ctx context.Context, page widget.PageContext) error {
	if err := e.durable.PruneExpired(); err != nil {
		e.Logger.Warn("failed to prune expired storage entries", slog.Any("error", err))
	}
	if err := e.Controller.Initialize(ctx, page); err != nil {
		return err
	}
	go e.Queue.DrainOffline()
	return nil
}

// Shutdown closes the session and persists undelivered work.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Controller.Shutdown()
	e.Logger.Info("engine shutdown complete")
	return nil
}
