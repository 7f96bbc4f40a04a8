package pipeline

import (
	"context"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/daishi-37/yahei-fax-ocr/internal/services"
	"github.com/stretchr/testify/mock"
)

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, path string) models.UploadResult {
	args := m.Called(ctx, path)
	return args.Get(0).(models.UploadResult)
}

type mockConverter struct {
	mock.Mock
}

func (m *mockConverter) Convert(ctx context.Context, path string) models.ConversionResult {
	args := m.Called(ctx, path)
	return args.Get(0).(models.ConversionResult)
}

type mockMatcher struct {
	mock.Mock
}

func (m *mockMatcher) Match(ctx context.Context, name string, entries []models.DirectoryEntry) (services.MatchAnswer, error) {
	args := m.Called(ctx, name, entries)
	return args.Get(0).(services.MatchAnswer), args.Error(1)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetAll(ctx context.Context, forceRefresh bool) []models.DirectoryEntry {
	args := m.Called(ctx, forceRefresh)
	return args.Get(0).([]models.DirectoryEntry)
}

type mockRecordWriter struct {
	mock.Mock
}

func (m *mockRecordWriter) CreateRecord(ctx context.Context, rec services.Record) models.RegistryResult {
	args := m.Called(ctx, rec)
	return args.Get(0).(models.RegistryResult)
}

type mockEnricher struct {
	mock.Mock
}

func (m *mockEnricher) Enrich(ctx context.Context, record *models.MessageRecord) []models.AttachmentOutcome {
	args := m.Called(ctx, record)
	if fn, ok := args.Get(0).(func(context.Context, *models.MessageRecord) []models.AttachmentOutcome); ok {
		return fn(ctx, record)
	}
	return args.Get(0).([]models.AttachmentOutcome)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyFailure(ctx context.Context, cycleID string, summary models.MessageSummary) error {
	args := m.Called(ctx, cycleID, summary)
	return args.Error(0)
}
