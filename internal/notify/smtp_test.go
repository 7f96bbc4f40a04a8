package notify

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/daishi-37/yahei-fax-ocr/internal/testutil"
	"github.com/emersion/go-sasl"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failedSummary() models.MessageSummary {
	return models.MessageSummary{
		ID:      "12",
		Subject: "FAX受信",
		From:    "fax@example.com",
		Attachments: []models.AttachmentOutcome{
			{
				Path:      "/storage/pdfs/12_a.pdf",
				Succeeded: true,
				Upload:    models.UploadResult{StepResult: models.Succeeded("uploaded")},
				Registry:  models.RegistryResult{StepResult: models.Succeeded("record created")},
			},
			{
				Path:     "/storage/pdfs/12_b.pdf",
				Upload:   models.UploadResult{StepResult: models.Failed("upload: status=500")},
				Registry: models.RegistryResult{StepResult: models.Succeeded("record created")},
			},
		},
	}
}

func TestSMTPNotifier_NotifyFailure(t *testing.T) {
	server := testutil.NewTestSMTPServer(t)
	defer server.Close()

	notifier := NewSMTPNotifier(server.Address, "alerts@example.com", "secret",
		[]string{"ops@example.com", "fax-team@example.com"}, zerolog.Nop())

	err := notifier.NotifyFailure(context.Background(), "cycle-1", failedSummary())
	require.NoError(t, err)

	messages := server.GetMessages()
	require.Len(t, messages, 1)
	msg := messages[0]
	assert.Equal(t, "alerts@example.com", msg.Username)
	assert.Equal(t, "alerts@example.com", msg.From)
	assert.Equal(t, []string{"ops@example.com", "fax-team@example.com"}, msg.To)

	data := string(msg.Data)
	assert.Contains(t, data, "Subject: [mailsync] Enrichment failed for message 12")
	assert.Contains(t, data, "cycle-1")
	assert.Contains(t, data, "/storage/pdfs/12_b.pdf: FAILED (kept)")
	assert.Contains(t, data, "upload: status=500")
}

func TestSMTPNotifier_NoRecipients(t *testing.T) {
	notifier := NewSMTPNotifier("127.0.0.1:1", "a@example.com", "", nil, zerolog.Nop())
	notifier.send = func(string, sasl.Client, string, []string, io.Reader) error {
		t.Fatal("send must not be called")
		return nil
	}

	assert.NoError(t, notifier.NotifyFailure(context.Background(), "c", failedSummary()))
}

func TestSMTPNotifier_SendError(t *testing.T) {
	notifier := NewSMTPNotifier("127.0.0.1:1", "a@example.com", "", []string{"ops@example.com"}, zerolog.Nop())
	notifier.send = func(_ string, auth sasl.Client, _ string, _ []string, _ io.Reader) error {
		assert.Nil(t, auth)
		return errors.New("connection refused")
	}

	err := notifier.NotifyFailure(context.Background(), "c", failedSummary())
	assert.ErrorContains(t, err, "connection refused")
}

func TestSMTPNotifier_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	notifier := NewSMTPNotifier("127.0.0.1:1", "a@example.com", "", []string{"ops@example.com"}, zerolog.Nop())
	assert.ErrorIs(t, notifier.NotifyFailure(ctx, "c", failedSummary()), context.Canceled)
}
