// Package pipeline plans, extracts, enriches and cleans up the messages of one sync cycle.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
)

// MaxConsecutiveSkips is the number of already-processed ids in a row after which the
// planner assumes every older id was processed too and stops scanning.
//
// An unprocessed message older than such a run is never picked up. Operators backfilling
// a mailbox must clear the ledger or move the watermark back far enough to cover it.
const MaxConsecutiveSkips = 10

// Searcher lists message ids changed on or after a date, oldest first.
type Searcher interface {
	Search(ctx context.Context, since time.Time) ([]string, error)
}

// Plan asks src for ids since the watermark and selects the ones not in the ledger,
// newest first. It does not modify the ledger.
func Plan(ctx context.Context, src Searcher, ledger *models.DedupLedger, since, now time.Time) (*models.SyncPlan, error) {
	ids, err := src.Search(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}

	plan := selectCandidates(ids, ledger)
	plan.Since = since
	plan.NewWatermark = now
	return plan, nil
}

// selectCandidates scans ids (oldest first) from the newest end.
func selectCandidates(ids []string, ledger *models.DedupLedger) *models.SyncPlan {
	plan := &models.SyncPlan{
		Candidates: []string{},
		Skipped:    []models.SkippedMessage{},
	}

	consecutive := 0
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		plan.Scanned++

		if ledger.Contains(id) {
			plan.Skipped = append(plan.Skipped, models.SkippedMessage{ID: id, Reason: models.SkipAlreadyProcessed})
			consecutive++
			if consecutive >= MaxConsecutiveSkips {
				plan.StoppedEarly = i > 0
				break
			}
			continue
		}

		consecutive = 0
		plan.Candidates = append(plan.Candidates, id)
	}

	return plan
}
