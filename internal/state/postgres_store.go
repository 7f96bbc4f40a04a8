package state

import (
	"context"
	"errors"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/db"
	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps state in the sync_watermark and processed_messages tables.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a PostgresStore on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) LoadWatermark(ctx context.Context) (*models.Watermark, error) {
	wm, err := db.GetWatermark(ctx, s.pool)
	if err != nil {
		if errors.Is(err, db.ErrWatermarkNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return wm, nil
}

func (s *PostgresStore) SaveWatermark(ctx context.Context, lastPollTime time.Time) error {
	return db.SaveWatermark(ctx, s.pool, lastPollTime)
}

func (s *PostgresStore) LoadLedger(ctx context.Context) (*models.DedupLedger, error) {
	ids, lastUpdated, err := db.ListProcessedMessageIDs(ctx, s.pool)
	if err != nil {
		return nil, err
	}
	return models.NewDedupLedger(ids, lastUpdated), nil
}

// SaveLedger inserts only the ids added since the ledger was loaded.
func (s *PostgresStore) SaveLedger(ctx context.Context, ledger *models.DedupLedger) error {
	processedAt := ledger.LastUpdated
	if processedAt.IsZero() {
		processedAt = s.now()
	}
	if err := db.InsertProcessedMessageIDs(ctx, s.pool, ledger.Added(), processedAt); err != nil {
		return err
	}
	ledger.MarkSaved()
	return nil
}
