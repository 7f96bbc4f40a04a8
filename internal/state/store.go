// Package state persists the sync watermark and the dedup ledger.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
)

// ErrCorruptState is returned when a persisted snapshot cannot be decoded.
// Callers must not overwrite corrupt state.
var ErrCorruptState = errors.New("corrupt sync state")

// Store loads and saves the watermark and dedup ledger.
type Store interface {
	// LoadWatermark returns nil when no cycle has completed yet.
	LoadWatermark(ctx context.Context) (*models.Watermark, error)
	SaveWatermark(ctx context.Context, lastPollTime time.Time) error
	LoadLedger(ctx context.Context) (*models.DedupLedger, error)
	SaveLedger(ctx context.Context, ledger *models.DedupLedger) error
}

// WatermarkOrDefault returns the stored watermark time, or now minus fallback on first run.
func WatermarkOrDefault(wm *models.Watermark, now time.Time, fallback time.Duration) time.Time {
	if wm == nil || wm.LastPollTime.IsZero() {
		return now.Add(-fallback)
	}
	return wm.LastPollTime
}
