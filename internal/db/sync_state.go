package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrWatermarkNotFound is returned when no sync has completed yet.
var ErrWatermarkNotFound = errors.New("watermark not found")

// GetWatermark returns the stored sync watermark.
func GetWatermark(ctx context.Context, pool *pgxpool.Pool) (*models.Watermark, error) {
	var wm models.Watermark

	err := pool.QueryRow(ctx, `
		SELECT last_poll_time, updated_at
		FROM sync_watermark
		WHERE id = 1
	`).Scan(&wm.LastPollTime, &wm.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWatermarkNotFound
		}
		return nil, fmt.Errorf("failed to get watermark: %w", err)
	}

	return &wm, nil
}

// SaveWatermark stores the watermark, replacing any previous value.
func SaveWatermark(ctx context.Context, pool *pgxpool.Pool, lastPollTime time.Time) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO sync_watermark (id, last_poll_time, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET
			last_poll_time = EXCLUDED.last_poll_time,
			updated_at = now()
	`, lastPollTime)

	if err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}

	return nil
}

// ListProcessedMessageIDs returns every processed message id and the latest processing time.
func ListProcessedMessageIDs(ctx context.Context, pool *pgxpool.Pool) ([]string, time.Time, error) {
	rows, err := pool.Query(ctx, `
		SELECT message_id, processed_at
		FROM processed_messages
	`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query processed messages: %w", err)
	}
	defer rows.Close()

	var ids []string
	var lastUpdated time.Time
	for rows.Next() {
		var id string
		var processedAt time.Time
		if err := rows.Scan(&id, &processedAt); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan processed message: %w", err)
		}
		ids = append(ids, id)
		if processedAt.After(lastUpdated) {
			lastUpdated = processedAt
		}
	}

	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to iterate processed messages: %w", err)
	}

	return ids, lastUpdated, nil
}

// InsertProcessedMessageIDs records ids as processed. Existing ids are left unchanged.
func InsertProcessedMessageIDs(ctx context.Context, pool *pgxpool.Pool, ids []string, processedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`
			INSERT INTO processed_messages (message_id, processed_at)
			VALUES ($1, $2)
			ON CONFLICT (message_id) DO NOTHING
		`, id, processedAt)
	}

	results := pool.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	for range ids {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert processed message: %w", err)
		}
	}

	return nil
}

// CountProcessedMessages returns the size of the dedup ledger.
func CountProcessedMessages(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `SELECT count(*) FROM processed_messages`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count processed messages: %w", err)
	}
	return count, nil
}
