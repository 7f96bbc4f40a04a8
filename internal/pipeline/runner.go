package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/extract"
	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/daishi-37/yahei-fax-ocr/internal/state"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FirstRunLookback is how far back the first cycle searches when no watermark exists.
const FirstRunLookback = 24 * time.Hour

// MailSource is an open mailbox session.
type MailSource interface {
	Searcher
	extract.Fetcher
	Close() error
}

// SessionOpener opens a mailbox session for one cycle.
type SessionOpener func(ctx context.Context) (MailSource, error)

// MessageEnricher enriches the attachments of one extracted message.
type MessageEnricher interface {
	Enrich(ctx context.Context, record *models.MessageRecord) []models.AttachmentOutcome
}

// Publisher receives every finished cycle result.
type Publisher interface {
	PublishCycle(result *models.CycleResult)
}

// Recorder records cycle metrics.
type Recorder interface {
	ObserveCycle(result *models.CycleResult)
}

// Notifier reports messages that were not fully enriched.
type Notifier interface {
	NotifyFailure(ctx context.Context, cycleID string, summary models.MessageSummary) error
}

// Deps are the collaborators of a Runner. Publisher, Recorder and Notifier are optional.
type Deps struct {
	Open      SessionOpener
	State     state.Store
	Extractor *extract.Extractor
	Enricher  MessageEnricher
	Cleanup   *Cleanup
	Publisher Publisher
	Recorder  Recorder
	Notifier  Notifier
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Runner executes sync cycles. A Runner must not run two cycles at once; the scheduler
// serializes calls.
type Runner struct {
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(deps Deps) *Runner {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "runner").Logger(),
		now:    now,
	}
}

// Plan opens a session and returns the plan the next cycle would execute, without
// extracting anything.
func (r *Runner) Plan(ctx context.Context) (*models.SyncPlan, error) {
	since, ledger, err := r.loadState(ctx)
	if err != nil {
		return nil, err
	}

	src, err := r.deps.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.closeSource(src, r.logger)

	return Plan(ctx, src, ledger, since, r.now())
}

// RunCycle runs one full cycle and returns its report. Mailbox transport failures and
// state persistence failures abort the cycle; everything else is recorded per message.
func (r *Runner) RunCycle(ctx context.Context) *models.CycleResult {
	result := &models.CycleResult{
		ID:        uuid.New().String(),
		StartedAt: r.now(),
		Messages:  []models.MessageSummary{},
	}
	logger := r.logger.With().Str("cycle_id", result.ID).Logger()
	logger.Info().Msg("Sync cycle started")

	err := r.runCycle(ctx, result, logger)
	result.FinishedAt = r.now()
	if err != nil {
		result.Status = models.CycleFailed
		result.Message = err.Error()
		logger.Error().Err(err).Msg("Sync cycle aborted")
	} else {
		result.Status = models.CycleCompleted
		logger.Info().
			Int("scanned", result.Scanned).
			Int("skipped", result.Skipped).
			Int("processed", result.Processed()).
			Bool("stopped_early", result.StoppedEarly).
			Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
			Msg("Sync cycle completed")
	}

	if r.deps.Recorder != nil {
		r.deps.Recorder.ObserveCycle(result)
	}
	if r.deps.Publisher != nil {
		r.deps.Publisher.PublishCycle(result)
	}
	return result
}

func (r *Runner) runCycle(ctx context.Context, result *models.CycleResult, logger zerolog.Logger) error {
	since, ledger, err := r.loadState(ctx)
	if err != nil {
		return err
	}

	src, err := r.deps.Open(ctx)
	if err != nil {
		return err
	}
	defer r.closeSource(src, logger)

	plan, err := Plan(ctx, src, ledger, since, result.StartedAt)
	if err != nil {
		return err
	}
	result.Scanned = plan.Scanned
	result.Skipped = len(plan.Skipped)
	result.StoppedEarly = plan.StoppedEarly
	logger.Info().
		Time("since", since).
		Int("candidates", len(plan.Candidates)).
		Int("skipped", len(plan.Skipped)).
		Bool("stopped_early", plan.StoppedEarly).
		Msg("Sync plan ready")

	for _, id := range plan.Candidates {
		summary, err := r.processMessage(ctx, src, ledger, id, logger)
		if err != nil {
			return err
		}
		result.Messages = append(result.Messages, summary)
		if summary.Status.OK() && !summary.AllSucceeded {
			r.notify(ctx, result.ID, summary, logger)
		}
	}

	watermark := plan.NewWatermark
	if watermark.Before(since) {
		watermark = since
	}
	if err := r.deps.State.SaveWatermark(ctx, watermark); err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	result.Watermark = &watermark
	return nil
}

func (r *Runner) loadState(ctx context.Context) (time.Time, *models.DedupLedger, error) {
	wm, err := r.deps.State.LoadWatermark(ctx)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("failed to load watermark: %w", err)
	}
	ledger, err := r.deps.State.LoadLedger(ctx)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return state.WatermarkOrDefault(wm, r.now(), FirstRunLookback), ledger, nil
}

// processMessage extracts, records, enriches and cleans up one message. It returns an
// error only when the cycle must stop.
func (r *Runner) processMessage(ctx context.Context, src MailSource, ledger *models.DedupLedger, id string, logger zerolog.Logger) (models.MessageSummary, error) {
	summary := models.MessageSummary{ID: id}
	logger = logger.With().Str("message_id", id).Logger()

	record, err := r.deps.Extractor.Extract(ctx, src, id)
	if err != nil {
		var extractionErr *extract.ExtractionError
		if errors.As(err, &extractionErr) {
			logger.Warn().Err(err).Msg("Skipping message that could not be extracted")
			summary.Status = models.Failed(err.Error())
			return summary, nil
		}
		return summary, err
	}

	ledger.Add(id, r.now())
	if err := r.deps.State.SaveLedger(ctx, ledger); err != nil {
		return summary, fmt.Errorf("failed to save ledger after message %s: %w", id, err)
	}

	summary.Subject = record.Subject
	summary.From = record.From

	if len(record.AttachmentPaths) == 0 {
		logger.Info().Msg("Message has no documents")
		summary.Status = models.Succeeded("no documents")
		summary.AllSucceeded = true
		return summary, nil
	}

	outcomes := r.deps.Enricher.Enrich(ctx, record)
	summary.Attachments = outcomes
	summary.AllSucceeded = models.AllSucceeded(outcomes)
	if r.deps.Cleanup != nil {
		summary.MessageDeleted = r.deps.Cleanup.Finalize(record, outcomes)
	}

	if summary.AllSucceeded {
		summary.Status = models.Succeeded(fmt.Sprintf("%d document(s) enriched", len(outcomes)))
	} else {
		summary.Status = models.Succeeded("extracted with enrichment failures")
	}
	logger.Info().
		Int("attachments", len(outcomes)).
		Bool("all_succeeded", summary.AllSucceeded).
		Bool("message_deleted", summary.MessageDeleted).
		Msg("Message processed")
	return summary, nil
}

func (r *Runner) notify(ctx context.Context, cycleID string, summary models.MessageSummary, logger zerolog.Logger) {
	if r.deps.Notifier == nil {
		return
	}
	if err := r.deps.Notifier.NotifyFailure(ctx, cycleID, summary); err != nil {
		logger.Warn().Err(err).Str("message_id", summary.ID).Msg("Failed to send failure alert")
	}
}

func (r *Runner) closeSource(src MailSource, logger zerolog.Logger) {
	if err := src.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close mailbox session")
	}
}
