// Package directory caches the registry's client directory used for fuzzy matching.
package directory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/text/width"
)

// DefaultTTL is how long a fetched directory snapshot is served.
const DefaultTTL = 5 * time.Minute

// Registry is the source of directory entries.
type Registry interface {
	ListDirectory(ctx context.Context) ([]models.DirectoryEntry, error)
	QueryDirectoryByName(ctx context.Context, name string) ([]models.DirectoryEntry, error)
}

// Cache holds an immutable snapshot of the directory and refreshes it once it expires.
type Cache struct {
	registry Registry
	logger   zerolog.Logger
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	entries   []models.DirectoryEntry
	fetchedAt time.Time
	valid     bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty Cache.
func New(registry Registry, logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		registry: registry,
		logger:   logger.With().Str("component", "directory").Logger(),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAll returns the directory, fetching it when the snapshot is missing, expired or
// forceRefresh is set. A failed fetch returns an empty directory and keeps the old snapshot.
func (c *Cache) GetAll(ctx context.Context, forceRefresh bool) []models.DirectoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !forceRefresh && c.freshLocked() {
		return slices.Clone(c.entries)
	}

	entries, err := c.registry.ListDirectory(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to fetch directory, matching without it")
		return []models.DirectoryEntry{}
	}
	if entries == nil {
		entries = []models.DirectoryEntry{}
	}

	c.entries = entries
	c.fetchedAt = c.now()
	c.valid = true
	c.logger.Debug().Int("entries", len(entries)).Msg("Directory refreshed")
	return slices.Clone(entries)
}

// Invalidate drops the snapshot so the next GetAll fetches again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	c.fetchedAt = time.Time{}
	c.valid = false
}

// IsValid reports whether a snapshot exists and has not expired.
func (c *Cache) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freshLocked()
}

func (c *Cache) freshLocked() bool {
	return c.valid && c.now().Sub(c.fetchedAt) < c.ttl
}

// FindByName returns entries whose display name contains name. It searches the snapshot
// when it is fresh and asks the registry directly otherwise.
func (c *Cache) FindByName(ctx context.Context, name string) []models.DirectoryEntry {
	needle := normalize(name)
	if needle == "" {
		return []models.DirectoryEntry{}
	}

	c.mu.Lock()
	if c.freshLocked() {
		snapshot := c.entries
		c.mu.Unlock()

		matches := []models.DirectoryEntry{}
		for _, e := range snapshot {
			if strings.Contains(normalize(e.DisplayName), needle) {
				matches = append(matches, e)
			}
		}
		return matches
	}
	c.mu.Unlock()

	entries, err := c.registry.QueryDirectoryByName(ctx, strings.TrimSpace(name))
	if err != nil {
		c.logger.Warn().Err(err).Str("name", name).Msg("Failed to query directory by name")
		return []models.DirectoryEntry{}
	}
	if entries == nil {
		entries = []models.DirectoryEntry{}
	}
	return entries
}

// normalize folds full-width and half-width forms and case so that "ＡＣＭＥ" matches "acme".
func normalize(s string) string {
	return strings.ToLower(width.Fold.String(strings.TrimSpace(s)))
}
