package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreWatermark(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file means no watermark", func(t *testing.T) {
		store := NewFileStore(t.TempDir())

		wm, err := store.LoadWatermark(ctx)
		require.NoError(t, err)
		assert.Nil(t, wm)
	})

	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		fixed := time.Date(2025, 7, 14, 10, 0, 0, 0, time.UTC)
		store := NewFileStore(dir, WithFileClock(func() time.Time { return fixed }))
		pollTime := time.Date(2025, 7, 14, 9, 55, 0, 0, time.FixedZone("JST", 9*3600))

		require.NoError(t, store.SaveWatermark(ctx, pollTime))

		wm, err := store.LoadWatermark(ctx)
		require.NoError(t, err)
		require.NotNil(t, wm)
		assert.True(t, wm.LastPollTime.Equal(pollTime))
		assert.True(t, wm.UpdatedAt.Equal(fixed))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "no temp files should remain")
	})

	t.Run("reads naive timestamps in the configured location", func(t *testing.T) {
		dir := t.TempDir()
		jst := time.FixedZone("JST", 9*3600)
		content := `{"last_poll_time": "2025-07-14T09:30:00.123456", "updated_at": "2025-07-14T09:30:00.123456"}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, WatermarkFile), []byte(content), 0o644))

		wm, err := NewFileStore(dir, WithLocation(jst)).LoadWatermark(ctx)
		require.NoError(t, err)
		assert.True(t, wm.LastPollTime.Equal(time.Date(2025, 7, 14, 9, 30, 0, 123456000, jst)))
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, WatermarkFile), []byte(`{"last_poll_time": `), 0o644))

		_, err := NewFileStore(dir).LoadWatermark(ctx)
		assert.True(t, errors.Is(err, ErrCorruptState))
	})

	t.Run("unparseable timestamp is an error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, WatermarkFile), []byte(`{"last_poll_time": "yesterday"}`), 0o644))

		_, err := NewFileStore(dir).LoadWatermark(ctx)
		assert.True(t, errors.Is(err, ErrCorruptState))
	})
}

func TestFileStoreLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file yields empty ledger", func(t *testing.T) {
		ledger, err := NewFileStore(t.TempDir()).LoadLedger(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, ledger.Len())
	})

	t.Run("round trip keeps every id", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileStore(dir)

		ledger, err := store.LoadLedger(ctx)
		require.NoError(t, err)
		now := time.Date(2025, 7, 14, 10, 0, 0, 0, time.UTC)
		ledger.Add("3", now)
		ledger.Add("1", now)
		ledger.Add("2", now)
		require.NoError(t, store.SaveLedger(ctx, ledger))
		assert.Empty(t, ledger.Added())

		reloaded, err := store.LoadLedger(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"1", "2", "3"}, reloaded.IDs())
		assert.True(t, reloaded.LastUpdated.Equal(now))

		data, err := os.ReadFile(filepath.Join(dir, LedgerFile))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"processed_ids"`)
		assert.Contains(t, string(data), `"last_updated"`)
	})

	t.Run("reads ledger written by the previous deployment", func(t *testing.T) {
		dir := t.TempDir()
		content := `{"processed_ids": ["101", "102"], "last_updated": "2025-07-14T10:00:00.000001"}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, LedgerFile), []byte(content), 0o644))

		ledger, err := NewFileStore(dir).LoadLedger(ctx)
		require.NoError(t, err)
		assert.True(t, ledger.Contains("101"))
		assert.True(t, ledger.Contains("102"))
		assert.False(t, ledger.Contains("103"))
	})

	t.Run("corrupt ledger is an error and is not overwritten", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, LedgerFile)
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

		_, err := NewFileStore(dir).LoadLedger(ctx)
		assert.True(t, errors.Is(err, ErrCorruptState))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "not json", string(data))
	})
}

func TestWatermarkOrDefault(t *testing.T) {
	now := time.Date(2025, 7, 14, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(-24*time.Hour), WatermarkOrDefault(nil, now, 24*time.Hour))

	stored := now.Add(-time.Hour)
	assert.Equal(t, stored, WatermarkOrDefault(&models.Watermark{LastPollTime: stored}, now, 24*time.Hour))
}
