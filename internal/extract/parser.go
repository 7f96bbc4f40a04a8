package extract

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/jhillyerd/enmime"
)

// DocumentExtension is the file extension of attachments that are enriched.
const DocumentExtension = ".pdf"

// ParsedAttachment is a document attachment found in a message.
type ParsedAttachment struct {
	Filename string
	Content  []byte
}

// ParsedMessage is the decoded content of a raw message.
type ParsedMessage struct {
	Subject     string
	From        string
	To          string
	Date        string
	Body        string
	Attachments []ParsedAttachment
}

// ParseMessage decodes headers, finds the plain-text body and collects document attachments.
func ParseMessage(raw []byte) (*ParsedMessage, error) {
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if envelope.Root == nil {
		return nil, fmt.Errorf("failed to parse message: no MIME root")
	}

	header := envelope.Root.Header
	msg := &ParsedMessage{
		Subject: DecodeHeader(header.Get("Subject")),
		From:    DecodeHeader(header.Get("From")),
		To:      DecodeHeader(header.Get("To")),
		Date:    strings.TrimSpace(header.Get("Date")),
	}

	body, ok := firstPlainText(envelope.Root)
	if !ok {
		body = envelope.Text
	}
	msg.Body = ToValidUTF8(body)

	walkParts(envelope.Root, func(p *enmime.Part) {
		if !isDocumentAttachment(p) {
			return
		}
		msg.Attachments = append(msg.Attachments, ParsedAttachment{
			Filename: p.FileName,
			Content:  p.Content,
		})
	})

	return msg, nil
}

// firstPlainText returns the first text/plain part that is not an attachment, depth first.
func firstPlainText(p *enmime.Part) (string, bool) {
	if p == nil {
		return "", false
	}
	if strings.EqualFold(p.ContentType, "text/plain") && !strings.EqualFold(p.Disposition, "attachment") {
		return string(p.Content), true
	}
	for child := p.FirstChild; child != nil; child = child.NextSibling {
		if text, ok := firstPlainText(child); ok {
			return text, true
		}
	}
	return "", false
}

// walkParts visits every part depth first.
func walkParts(p *enmime.Part, visit func(*enmime.Part)) {
	if p == nil {
		return
	}
	visit(p)
	for child := p.FirstChild; child != nil; child = child.NextSibling {
		walkParts(child, visit)
	}
}

func isDocumentAttachment(p *enmime.Part) bool {
	if !strings.EqualFold(p.Disposition, "attachment") || p.FileName == "" {
		return false
	}
	return strings.EqualFold(path.Ext(p.FileName), DocumentExtension)
}
