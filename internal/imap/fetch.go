package imap

import (
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// ErrMessageNotFound is returned when the server has no message with the requested UID.
var ErrMessageNotFound = errors.New("message not found")

// FetchRawMessage fetches the full RFC 822 bytes of the message with the given UID.
// It uses BODY.PEEK[] so the \Seen flag is left alone.
func FetchRawMessage(c *client.Client, uid uint32) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		if msg == nil || raw != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	if readErr != nil {
		return nil, fmt.Errorf("failed to read message body: %w", readErr)
	}

	if raw == nil {
		return nil, fmt.Errorf("uid %d: %w", uid, ErrMessageNotFound)
	}

	return raw, nil
}
