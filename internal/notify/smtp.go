// Package notify sends failure alerts by email.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
)

// SendFunc delivers a rendered message. It matches smtp.SendMail.
type SendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// SMTPNotifier mails a report for every message whose documents were not all enriched.
type SMTPNotifier struct {
	addr       string
	username   string
	password   string
	recipients []string
	send       SendFunc
	now        func() time.Time
	logger     zerolog.Logger
}

// NewSMTPNotifier creates a notifier sending through addr as username.
func NewSMTPNotifier(addr, username, password string, recipients []string, logger zerolog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		addr:       addr,
		username:   username,
		password:   password,
		recipients: recipients,
		send:       smtp.SendMail,
		now:        time.Now,
		logger:     logger.With().Str("component", "notify").Logger(),
	}
}

// NotifyFailure sends the alert for one message.
func (n *SMTPNotifier) NotifyFailure(ctx context.Context, cycleID string, summary models.MessageSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(n.recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[mailsync] Enrichment failed for message %s", summary.ID)
	msg, err := n.render(subject, failureReport(cycleID, summary))
	if err != nil {
		return err
	}

	var auth sasl.Client
	if n.password != "" {
		auth = sasl.NewPlainClient("", n.username, n.password)
	}
	if err := n.send(n.addr, auth, n.username, n.recipients, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}

	n.logger.Info().Str("message_id", summary.ID).Strs("to", n.recipients).Msg("Failure alert sent")
	return nil
}

func (n *SMTPNotifier) render(subject, body string) ([]byte, error) {
	var h mail.Header
	h.SetDate(n.now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Name: "mailsync", Address: n.username}})
	to := make([]*mail.Address, 0, len(n.recipients))
	for _, r := range n.recipients {
		to = append(to, &mail.Address{Address: r})
	}
	h.SetAddressList("To", to)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert message: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("failed to write alert body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish alert message: %w", err)
	}
	return buf.Bytes(), nil
}

func failureReport(cycleID string, summary models.MessageSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cycle:   %s\n", cycleID)
	fmt.Fprintf(&b, "Message: %s\n", summary.ID)
	fmt.Fprintf(&b, "Subject: %s\n", summary.Subject)
	fmt.Fprintf(&b, "From:    %s\n\n", summary.From)
	b.WriteString("The message is recorded as processed and will not be retried automatically.\n")
	b.WriteString("Files of failed documents were kept for manual follow-up.\n\n")

	for _, att := range summary.Attachments {
		status := "ok"
		if !att.Succeeded {
			status = "FAILED (kept)"
		}
		fmt.Fprintf(&b, "- %s: %s\n", att.Path, status)
		writeStep(&b, "upload", att.Upload.StepResult)
		writeStep(&b, "conversion", att.Conversion.StepResult)
		writeStep(&b, "matching", att.Match.StepResult)
		writeStep(&b, "registry", att.Registry.StepResult)
	}
	return b.String()
}

func writeStep(b *strings.Builder, name string, r models.StepResult) {
	if r.Status == "" {
		return
	}
	if r.Message == "" {
		fmt.Fprintf(b, "    %-10s %s\n", name, r.Status)
		return
	}
	fmt.Fprintf(b, "    %-10s %s: %s\n", name, r.Status, r.Message)
}
