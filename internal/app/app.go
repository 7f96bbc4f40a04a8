// Package app assembles the sync service from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/config"
	"github.com/daishi-37/yahei-fax-ocr/internal/directory"
	"github.com/daishi-37/yahei-fax-ocr/internal/extract"
	"github.com/daishi-37/yahei-fax-ocr/internal/imap"
	"github.com/daishi-37/yahei-fax-ocr/internal/metrics"
	"github.com/daishi-37/yahei-fax-ocr/internal/notify"
	"github.com/daishi-37/yahei-fax-ocr/internal/pipeline"
	"github.com/daishi-37/yahei-fax-ocr/internal/scheduler"
	"github.com/daishi-37/yahei-fax-ocr/internal/services"
	"github.com/daishi-37/yahei-fax-ocr/internal/state"
	"github.com/daishi-37/yahei-fax-ocr/internal/storage"
	ws "github.com/daishi-37/yahei-fax-ocr/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const (
	maxWebSocketConnections = 10
	serviceTimeout          = 60 * time.Second
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	State     state.Store
	Storage   *storage.Store
	Directory *directory.Cache
	Runner    *pipeline.Runner
	Scheduler *scheduler.Scheduler
	Hub       *ws.Hub
	Metrics   *prometheus.Registry

	closeState func()
}

// New builds every component. Nothing connects to the mailbox until a cycle runs.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	store, closeState, err := state.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	artifacts, err := storage.New(cfg.StoragePath)
	if err != nil {
		closeState()
		return nil, err
	}

	opts := services.ClientOptions{Timeout: serviceTimeout}
	notion := services.NewNotionClient(cfg.NotionAPIURL, cfg.NotionToken, cfg.NotionDatabaseID, cfg.NotionClientDatabaseID, opts)
	dir := directory.New(notion, logger)
	enricher := pipeline.NewEnricher(
		services.NewUploadClient(cfg.UploadAPIURL, cfg.UploadAPIKey, cfg.UploadExpiryHours, opts),
		services.NewConversionClient(cfg.DifyAPIURL, cfg.DifyOCRAPIKey, cfg.DifyUser, opts),
		services.NewMatchClient(cfg.DifyAPIURL, cfg.DifyMatchAPIKey, cfg.DifyUser, opts),
		dir,
		notion,
		logger,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := ws.NewHub(maxWebSocketConnections, logger)

	deps := pipeline.Deps{
		Open:      Opener(MailOptions(cfg), logger),
		State:     store,
		Extractor: extract.New(artifacts),
		Enricher:  enricher,
		Cleanup:   pipeline.NewCleanup(artifacts, logger),
		Publisher: hub,
		Recorder:  metrics.New(registry),
		Logger:    logger,
	}
	if cfg.AlertsEnabled() {
		deps.Notifier = notify.NewSMTPNotifier(cfg.SMTPAddress(), cfg.SMTPEmail, cfg.SMTPPassword, cfg.AlertRecipients, logger)
	}
	runner := pipeline.NewRunner(deps)

	return &App{
		Config:     cfg,
		Logger:     logger,
		State:      store,
		Storage:    artifacts,
		Directory:  dir,
		Runner:     runner,
		Scheduler:  scheduler.New(runner, cfg.PollingInterval(), cfg.Location(), logger),
		Hub:        hub,
		Metrics:    registry,
		closeState: closeState,
	}, nil
}

// MailOptions returns the mailbox connection settings.
func MailOptions(cfg *config.Config) imap.Options {
	return imap.Options{
		Address:  cfg.IMAPAddress(),
		Username: cfg.Username,
		Password: cfg.Password,
		Folder:   cfg.Folder,
		UseTLS:   cfg.UseTLS,
	}
}

// Opener returns a SessionOpener that logs in with opts.
func Opener(opts imap.Options, logger zerolog.Logger) pipeline.SessionOpener {
	logger = logger.With().Str("component", "imap").Logger()
	return func(ctx context.Context) (pipeline.MailSource, error) {
		session, err := imap.Open(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// Watchers returns the IDLE watcher when enabled.
func (a *App) Watchers() []scheduler.Watcher {
	if !a.Config.IdleEnabled {
		return nil
	}
	logger := a.Logger.With().Str("component", "idle").Logger()
	return []scheduler.Watcher{imap.NewIdleWatcher(MailOptions(a.Config), a.Scheduler.OnNewMail, logger)}
}

// Start starts the scheduler and the watchers.
func (a *App) Start(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx, a.Watchers()...); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close stops the scheduler and releases the state backend.
func (a *App) Close() {
	a.Scheduler.Stop()
	if a.closeState != nil {
		a.closeState()
	}
}
