package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/api"
	"github.com/daishi-37/yahei-fax-ocr/internal/app"
	"github.com/daishi-37/yahei-fax-ocr/internal/auth"
	"github.com/daishi-37/yahei-fax-ocr/internal/config"
	"github.com/daishi-37/yahei-fax-ocr/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewServer(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", server.Addr).Str("environment", cfg.Environment).Msg("Mail sync server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// NewServer creates and returns the HTTP handler for the sync API.
func NewServer(a *app.App) http.Handler {
	emailsHandler := api.NewEmailsHandler(a.Scheduler, a.Storage, a.Logger)
	wsHandler := api.NewWebSocketHandler(a.Hub, a.Logger)
	requireToken := auth.RequireToken(a.Config.APIToken, a.Logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleRoot)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.Metrics, promhttp.HandlerOpts{}))

	mux.Handle("GET /api/v1/emails/status", requireToken(http.HandlerFunc(emailsHandler.GetStatus)))
	mux.Handle("POST /api/v1/emails/poll", requireToken(http.HandlerFunc(emailsHandler.Poll)))
	mux.Handle("GET /api/v1/emails/latest", requireToken(http.HandlerFunc(emailsHandler.GetLatest)))
	mux.Handle("GET /api/v1/emails/ws", requireToken(http.HandlerFunc(wsHandler.Handle)))

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Mail sync API is running")
}
