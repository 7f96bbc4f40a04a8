package pipeline

import (
	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/rs/zerolog"
)

// Remover deletes stored artifacts. Removing a missing file is not an error.
type Remover interface {
	Remove(path string) error
}

// Cleanup deletes the artifacts of fully enriched documents.
type Cleanup struct {
	remover Remover
	logger  zerolog.Logger
}

// NewCleanup creates a Cleanup.
func NewCleanup(remover Remover, logger zerolog.Logger) *Cleanup {
	return &Cleanup{
		remover: remover,
		logger:  logger.With().Str("component", "cleanup").Logger(),
	}
}

// Finalize removes each succeeded attachment file, then the message file when the message
// has attachments and all of them succeeded. An attachment succeeds only when both its
// upload and its registry record succeeded, so a failed upload keeps the file even if the
// record was created. It sets Deleted on the outcomes and reports whether the message file
// was removed. Removal failures are logged and leave the file in place.
func (c *Cleanup) Finalize(record *models.MessageRecord, outcomes []models.AttachmentOutcome) bool {
	for i := range outcomes {
		if !outcomes[i].Succeeded {
			continue
		}
		if err := c.remover.Remove(outcomes[i].Path); err != nil {
			c.logger.Warn().Err(err).Str("path", outcomes[i].Path).Msg("Failed to remove attachment")
			continue
		}
		outcomes[i].Deleted = true
	}

	if len(outcomes) == 0 || !models.AllSucceeded(outcomes) || record.MessagePath == "" {
		return false
	}
	if err := c.remover.Remove(record.MessagePath); err != nil {
		c.logger.Warn().Err(err).Str("path", record.MessagePath).Msg("Failed to remove message file")
		return false
	}
	return true
}
