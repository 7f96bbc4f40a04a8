package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/app"
	"github.com/daishi-37/yahei-fax-ocr/internal/config"
	"github.com/daishi-37/yahei-fax-ocr/internal/imap"
	"github.com/daishi-37/yahei-fax-ocr/internal/logging"
	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/daishi-37/yahei-fax-ocr/internal/pipeline"
	"github.com/daishi-37/yahei-fax-ocr/internal/state"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// errCycleFailed makes the process exit non-zero after the result has been printed.
var errCycleFailed = errors.New("sync cycle failed")

// env holds what the commands need from the outside world.
type env struct {
	loadConfig func() (*config.Config, error)
	stdout     io.Writer
	stderr     io.Writer
	now        func() time.Time
}

func defaultEnv() env {
	return env{
		loadConfig: config.NewConfig,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		now:        time.Now,
	}
}

func (e env) logger(cfg *config.Config) zerolog.Logger {
	return logging.NewWithWriter(e.stderr, cfg.LogLevel, cfg.LogFormat)
}

func newRootCmd(e env) *cobra.Command {
	root := &cobra.Command{
		Use:   "mailsync",
		Short: "Incremental mailbox sync and document enrichment",
		Long: `mailsync polls a mailbox, stores new messages and their document attachments,
and registers each document with the upload, conversion and registry services.

The long-running service is cmd/server; these commands run or inspect a single cycle.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the watermark and dedup ledger",
	}
	stateCmd.AddCommand(newStateShowCmd(e))

	root.AddCommand(newRunCmd(e), newPlanCmd(e), stateCmd, newProbeCmd(e))
	return root
}

func newRunCmd(e env) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one sync cycle and print its result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), e, func(a *app.App) error {
				result := a.Runner.RunCycle(cmd.Context())
				if err := writeJSON(e.stdout, result); err != nil {
					return err
				}
				if result.Status == models.CycleFailed {
					return fmt.Errorf("%w: %s", errCycleFailed, result.Message)
				}
				return nil
			})
		},
	}
}

func newPlanCmd(e env) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the messages the next cycle would process, without processing them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), e, func(a *app.App) error {
				plan, err := a.Runner.Plan(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(e.stdout, plan)
			})
		},
	}
}

type stateReport struct {
	Backend        string     `json:"backend"`
	LastPollTime   *time.Time `json:"last_poll_time"`
	NextSince      time.Time  `json:"next_since"`
	ProcessedCount int        `json:"processed_count"`
	LedgerUpdated  *time.Time `json:"ledger_updated,omitempty"`
	IDs            []string   `json:"ids,omitempty"`
}

func newStateShowCmd(e env) *cobra.Command {
	var showIDs bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored watermark and ledger size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, closeStore, err := state.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			wm, err := store.LoadWatermark(ctx)
			if err != nil {
				return err
			}
			ledger, err := store.LoadLedger(ctx)
			if err != nil {
				return err
			}

			report := stateReport{
				Backend:        cfg.StateBackend,
				NextSince:      state.WatermarkOrDefault(wm, e.now(), pipeline.FirstRunLookback),
				ProcessedCount: ledger.Len(),
			}
			if wm != nil {
				report.LastPollTime = &wm.LastPollTime
			}
			if !ledger.LastUpdated.IsZero() {
				report.LedgerUpdated = &ledger.LastUpdated
			}
			if showIDs {
				report.IDs = ledger.IDs()
				slices.Sort(report.IDs)
			}
			return writeJSON(e.stdout, report)
		},
	}
	cmd.Flags().BoolVar(&showIDs, "ids", false, "Include the processed message ids")
	return cmd
}

type probeReport struct {
	Folder       string   `json:"folder"`
	Messages     uint32   `json:"messages"`
	Capabilities []string `json:"capabilities"`
	Since        string   `json:"since"`
	Matched      []string `json:"matched"`
}

func newProbeCmd(e env) *cobra.Command {
	var lookback time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect, log in and search the mailbox without changing any state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := e.logger(cfg).With().Str("component", "probe").Logger()

			session, err := imap.Open(ctx, app.MailOptions(cfg), logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := session.Close(); err != nil {
					logger.Warn().Err(err).Msg("Failed to close session")
				}
			}()

			caps, err := session.Capabilities()
			if err != nil {
				return err
			}
			since := e.now().Add(-lookback)
			ids, err := session.Search(ctx, since)
			if err != nil {
				return err
			}

			return writeJSON(e.stdout, probeReport{
				Folder:       session.Folder(),
				Messages:     session.MessageCount(),
				Capabilities: caps,
				Since:        since.Format(time.RFC3339),
				Matched:      ids,
			})
		},
	}
	cmd.Flags().DurationVar(&lookback, "lookback", pipeline.FirstRunLookback, "How far back to search")
	return cmd
}

func withApp(ctx context.Context, e env, fn func(*app.App) error) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, e.logger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
