package pipeline

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/daishi-37/yahei-fax-ocr/internal/services"
	"github.com/rs/zerolog"
)

// Uploader sends a document to the upload service.
type Uploader interface {
	Upload(ctx context.Context, path string) models.UploadResult
}

// Converter extracts structured items from a document.
type Converter interface {
	Convert(ctx context.Context, path string) models.ConversionResult
}

// Matcher picks the directory entry that best fits a free-text name.
type Matcher interface {
	Match(ctx context.Context, name string, entries []models.DirectoryEntry) (services.MatchAnswer, error)
}

// Directory serves the cached client directory.
type Directory interface {
	GetAll(ctx context.Context, forceRefresh bool) []models.DirectoryEntry
}

// RecordWriter creates registry records.
type RecordWriter interface {
	CreateRecord(ctx context.Context, rec services.Record) models.RegistryResult
}

// noMatchIDs are the identifiers the matching service uses for "no match".
var noMatchIDs = map[string]struct{}{
	"":          {},
	"null":      {},
	"none":      {},
	"not_found": {},
	"no_match":  {},
}

func isNoMatch(id string) bool {
	_, ok := noMatchIDs[strings.ToLower(strings.TrimSpace(id))]
	return ok
}

// Enricher runs every attachment of a message through upload, conversion, matching and
// registry creation.
type Enricher struct {
	uploader  Uploader
	converter Converter
	matcher   Matcher
	directory Directory
	registry  RecordWriter
	logger    zerolog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(uploader Uploader, converter Converter, matcher Matcher, directory Directory, registry RecordWriter, logger zerolog.Logger) *Enricher {
	return &Enricher{
		uploader:  uploader,
		converter: converter,
		matcher:   matcher,
		directory: directory,
		registry:  registry,
		logger:    logger.With().Str("component", "enricher").Logger(),
	}
}

// Enrich processes the attachments in order. Step failures are recorded in the outcomes
// and never stop the remaining steps or attachments.
func (e *Enricher) Enrich(ctx context.Context, record *models.MessageRecord) []models.AttachmentOutcome {
	outcomes := make([]models.AttachmentOutcome, 0, len(record.AttachmentPaths))
	for _, path := range record.AttachmentPaths {
		outcomes = append(outcomes, e.enrichAttachment(ctx, record, path))
	}
	return outcomes
}

func (e *Enricher) enrichAttachment(ctx context.Context, record *models.MessageRecord, path string) models.AttachmentOutcome {
	logger := e.logger.With().Str("message_id", record.ID).Str("path", path).Logger()
	outcome := models.AttachmentOutcome{Path: path}

	outcome.Upload = e.uploader.Upload(ctx, path)
	if !outcome.Upload.OK() {
		logger.Warn().Str("status", string(outcome.Upload.Status)).Str("reason", outcome.Upload.Message).Msg("Upload did not succeed")
	}

	outcome.Conversion = e.converter.Convert(ctx, path)
	if !outcome.Conversion.OK() {
		logger.Warn().Str("status", string(outcome.Conversion.Status)).Str("reason", outcome.Conversion.Message).Msg("Conversion did not succeed")
	}
	item := outcome.Conversion.First()

	outcome.Match = e.match(ctx, item.SourceEntity)
	if outcome.Match.Status == models.StatusError {
		logger.Warn().Str("reason", outcome.Match.Message).Msg("Matching failed")
	}

	// Only a matched entity contributes to the title.
	var abbreviation, clientID string
	if outcome.Match.Matched() {
		abbreviation = outcome.Match.Entry.Abbreviation
		clientID = outcome.Match.Entry.ID
	}

	title := titleOrSubject(GenerateTitle(item.Category, record.Date, abbreviation), record.Subject)
	outcome.Registry = e.registry.CreateRecord(ctx, services.Record{
		Title:    title,
		PDFURL:   outcome.Upload.URL,
		ClientID: clientID,
		Body:     truncateRunes(record.Body, maxBodyRunes),
		Category: item.Category,
		Subject:  record.Subject,
		From:     record.From,
		Date:     isoDate(record.Date),
		Content:  item.Content,
		Filename: filepath.Base(path),
	})
	if !outcome.Registry.OK() {
		logger.Error().Str("reason", outcome.Registry.Message).Msg("Failed to create registry record")
	}

	outcome.Succeeded = outcome.Registry.OK() && outcome.Upload.OK()
	logger.Info().
		Bool("succeeded", outcome.Succeeded).
		Str("title", title).
		Bool("matched", outcome.Match.Matched()).
		Msg("Attachment enriched")
	return outcome
}

func (e *Enricher) match(ctx context.Context, name string) models.MatchResult {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.MatchResult{StepResult: models.Skipped("no source entity extracted")}
	}

	result := models.MatchResult{Query: name}
	entries := e.directory.GetAll(ctx, false)
	if len(entries) == 0 {
		result.StepResult = models.Skipped("directory is empty")
		return result
	}

	answer, err := e.matcher.Match(ctx, name, entries)
	if err != nil {
		result.StepResult = models.Failed(err.Error())
		return result
	}
	if isNoMatch(answer.ID) {
		result.StepResult = models.Succeeded("no match")
		return result
	}

	idx := slices.IndexFunc(entries, func(candidate models.DirectoryEntry) bool { return candidate.ID == answer.ID })
	if idx < 0 {
		e.logger.Warn().Str("query", name).Str("id", answer.ID).Msg("Matched id is not in the directory, treating as no match")
		result.StepResult = models.Succeeded("no match: unknown id " + answer.ID)
		return result
	}
	entry := entries[idx]
	result.Entry = &entry
	result.StepResult = models.Succeeded("matched " + entry.DisplayName)
	return result
}
