package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/fsutil"
	"github.com/daishi-37/yahei-fax-ocr/internal/models"
)

const (
	WatermarkFile = "last_poll_time.json"
	LedgerFile    = "processed_email_ids.json"
)

// Layouts accepted when reading timestamps. Naive timestamps are read in the store's location.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

type watermarkFile struct {
	LastPollTime string `json:"last_poll_time"`
	UpdatedAt    string `json:"updated_at"`
}

type ledgerFile struct {
	ProcessedIDs []string `json:"processed_ids"`
	LastUpdated  string   `json:"last_updated"`
}

// FileStore keeps state as two JSON snapshots under a directory.
// Every save rewrites the whole snapshot through an atomic rename.
type FileStore struct {
	dir string
	loc *time.Location
	now func() time.Time
	mu  sync.Mutex
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithFileClock overrides the clock used for updated_at stamps.
func WithFileClock(now func() time.Time) FileStoreOption {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the location used to read timestamps without an offset.
func WithLocation(loc *time.Location) FileStoreOption {
	return func(s *FileStore) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		dir: dir,
		loc: time.Local,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// LoadWatermark reads last_poll_time.json. A missing file means no watermark.
func (s *FileStore) LoadWatermark(_ context.Context) (*models.Watermark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(WatermarkFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}

	var f watermarkFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, WatermarkFile, err)
	}

	lastPoll, err := s.parseTime(f.LastPollTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: last_poll_time: %v", ErrCorruptState, WatermarkFile, err)
	}

	wm := &models.Watermark{LastPollTime: lastPoll}
	if f.UpdatedAt != "" {
		if updated, err := s.parseTime(f.UpdatedAt); err == nil {
			wm.UpdatedAt = updated
		}
	}
	return wm, nil
}

// SaveWatermark rewrites last_poll_time.json.
func (s *FileStore) SaveWatermark(_ context.Context, lastPollTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := watermarkFile{
		LastPollTime: lastPollTime.Format(time.RFC3339Nano),
		UpdatedAt:    s.now().Format(time.RFC3339Nano),
	}
	return s.writeJSON(WatermarkFile, f)
}

// LoadLedger reads processed_email_ids.json. A missing file yields an empty ledger.
func (s *FileStore) LoadLedger(_ context.Context) (*models.DedupLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(LedgerFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.NewDedupLedger(nil, time.Time{}), nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, LedgerFile, err)
	}

	var lastUpdated time.Time
	if f.LastUpdated != "" {
		if t, err := s.parseTime(f.LastUpdated); err == nil {
			lastUpdated = t
		}
	}
	return models.NewDedupLedger(f.ProcessedIDs, lastUpdated), nil
}

// SaveLedger rewrites processed_email_ids.json with the full id set.
func (s *FileStore) SaveLedger(_ context.Context, ledger *models.DedupLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := ledger.IDs()
	sort.Strings(ids)

	lastUpdated := ledger.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = s.now()
	}

	f := ledgerFile{
		ProcessedIDs: ids,
		LastUpdated:  lastUpdated.Format(time.RFC3339Nano),
	}
	if err := s.writeJSON(LedgerFile, f); err != nil {
		return err
	}
	ledger.MarkSaved()
	return nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := fsutil.WriteFileAtomic(s.path(name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, value, s.loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
