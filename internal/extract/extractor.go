// Package extract turns fetched messages into message records with their
// document attachments saved to storage.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/imap"
	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/daishi-37/yahei-fax-ocr/internal/storage"
)

// ExtractionError means one message could not be fetched or parsed.
// The message is skipped for this cycle and retried in the next one.
type ExtractionError struct {
	MessageID string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract message %s: %v", e.MessageID, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Fetcher returns the raw bytes of a message.
type Fetcher interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// ArtifactStore persists raw messages and attachments.
type ArtifactStore interface {
	SaveMessage(id string, raw []byte) (string, error)
	SaveAttachment(id, filename string, content []byte) (string, error)
}

// Extractor fetches, parses and persists messages.
type Extractor struct {
	store ArtifactStore
	now   func() time.Time
}

// New creates an Extractor writing to store.
func New(store ArtifactStore) *Extractor {
	return &Extractor{store: store, now: time.Now}
}

// WithClock overrides the clock used for ReceivedAt.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// Extract fetches message id and saves it with its document attachments.
// Transport failures are returned unchanged so the caller can abort the cycle;
// every other failure is an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, src Fetcher, id string) (*models.MessageRecord, error) {
	raw, err := src.Fetch(ctx, id)
	if err != nil {
		if imap.IsTransportError(err) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &ExtractionError{MessageID: id, Err: err}
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		return nil, &ExtractionError{MessageID: id, Err: err}
	}

	messagePath, err := e.store.SaveMessage(id, raw)
	if err != nil {
		return nil, &ExtractionError{MessageID: id, Err: err}
	}

	paths := make([]string, 0, len(parsed.Attachments))
	taken := make(map[string]bool, len(parsed.Attachments))
	for _, att := range parsed.Attachments {
		p, err := e.store.SaveAttachment(id, uniqueName(att.Filename, taken), att.Content)
		if err != nil {
			return nil, &ExtractionError{MessageID: id, Err: err}
		}
		paths = append(paths, p)
	}

	return &models.MessageRecord{
		ID:              id,
		Subject:         parsed.Subject,
		From:            parsed.From,
		To:              parsed.To,
		Date:            parsed.Date,
		Body:            parsed.Body,
		ReceivedAt:      e.now(),
		MessagePath:     messagePath,
		AttachmentPaths: paths,
	}, nil
}

// uniqueName returns the stored form of name, suffixed with _2, _3 and so on
// when an earlier attachment of the same message already took it.
func uniqueName(name string, taken map[string]bool) string {
	name = storage.SafeName(name)
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; taken[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}
