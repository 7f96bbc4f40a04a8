package imap

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"
)

// Options describes how to reach the mailbox.
type Options struct {
	Address  string
	Username string
	Password string
	Folder   string
	UseTLS   bool
}

// Session is one logged-in connection with the sync folder selected.
// It is opened once per sync cycle and is not safe for concurrent use.
type Session struct {
	client *client.Client
	folder string
	total  uint32
	logger zerolog.Logger
}

// Open dials, logs in and selects the folder read-only.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	folder := opts.Folder
	if folder == "" {
		folder = "INBOX"
	}

	c, err := ConnectToIMAP(opts.Address, opts.UseTLS)
	if err != nil {
		return nil, err
	}

	if err := Login(c, opts.Username, opts.Password); err != nil {
		_ = c.Logout()
		return nil, err
	}

	mbox, err := c.Select(folder, true)
	if err != nil {
		_ = c.Logout()
		return nil, &TransportError{Op: "select", Err: fmt.Errorf("failed to select %s: %w", folder, err)}
	}

	logger.Debug().Str("folder", folder).Uint32("messages", mbox.Messages).Msg("mailbox session opened")

	return &Session{
		client: c,
		folder: folder,
		total:  mbox.Messages,
		logger: logger,
	}, nil
}

// Folder returns the selected folder name.
func (s *Session) Folder() string {
	return s.folder
}

// MessageCount returns the number of messages reported when the folder was selected.
func (s *Session) MessageCount() uint32 {
	return s.total
}

// Search lists message ids dated on or after the day of since, oldest first.
func (s *Session) Search(ctx context.Context, since time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uids, err := SearchSince(s.client, since)
	if err != nil {
		return nil, &TransportError{Op: "search", Err: err}
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// Fetch returns the raw bytes of the message with the given id.
// Failures on a dropped connection are reported as TransportError.
func (s *Session) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}

	raw, err := FetchRawMessage(s.client, uint32(uid))
	if err != nil {
		if connectionLost(s.client) {
			return nil, &TransportError{Op: "fetch", Err: err}
		}
		return nil, err
	}
	return raw, nil
}

// Capabilities lists the server capabilities, sorted.
func (s *Session) Capabilities() ([]string, error) {
	caps, err := s.client.Capability()
	if err != nil {
		return nil, &TransportError{Op: "capability", Err: err}
	}

	names := make([]string, 0, len(caps))
	for name := range caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close logs out. It is safe to call on an already closed session.
func (s *Session) Close() error {
	if s == nil || s.client == nil || connectionLost(s.client) {
		return nil
	}
	if err := s.client.Logout(); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	return nil
}
