package testutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"
)

// TestAttachment is a MIME part added by BuildMessage.
type TestAttachment struct {
	Filename    string
	ContentType string
	Disposition string
	Data        []byte
}

// PDFAttachment returns an attachment part with a minimal PDF payload.
func PDFAttachment(filename string) TestAttachment {
	return TestAttachment{
		Filename:    filename,
		ContentType: "application/pdf",
		Disposition: "attachment",
		Data:        []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n"),
	}
}

// BuildMessage renders a multipart/mixed message. subject, from and to are written verbatim,
// so they may carry RFC 2047 encoded words.
func BuildMessage(messageID, subject, from, to string, date time.Time, body string, attachments ...TestAttachment) []byte {
	const boundary = "=_sync_test_boundary"

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	buf.WriteString(body)
	buf.WriteString("\r\n")

	for _, a := range attachments {
		disposition := a.Disposition
		if disposition == "" {
			disposition = "attachment"
		}
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: %s; name=\"%s\"\r\n", a.ContentType, a.Filename)
		fmt.Fprintf(&buf, "Content-Disposition: %s; filename=\"%s\"\r\n", disposition, a.Filename)
		buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		buf.WriteString(base64.StdEncoding.EncodeToString(a.Data))
		buf.WriteString("\r\n")
	}

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}
