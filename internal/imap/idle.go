package imap

import (
	"context"
	"time"

	idle "github.com/emersion/go-imap-idle"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"
)

// idleRetryDelay is the backoff after a failed or ended IDLE session.
const idleRetryDelay = 10 * time.Second

// idleFallbackPoll is the NOOP interval for servers without IDLE support.
const idleFallbackPoll = 5 * time.Second

// IdleWatcher keeps a dedicated connection in IDLE and calls OnNewMail
// whenever the folder's message count grows.
type IdleWatcher struct {
	opts       Options
	onNewMail  func(ctx context.Context)
	logger     zerolog.Logger
	retryDelay time.Duration
}

// NewIdleWatcher creates a watcher. onNewMail must not block for long.
func NewIdleWatcher(opts Options, onNewMail func(ctx context.Context), logger zerolog.Logger) *IdleWatcher {
	return &IdleWatcher{
		opts:       opts,
		onNewMail:  onNewMail,
		logger:     logger,
		retryDelay: idleRetryDelay,
	}
}

// Run blocks until ctx is canceled, reconnecting after errors.
func (w *IdleWatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.watchOnce(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("IMAP IDLE session ended")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryDelay):
		}
	}
}

// watchOnce runs one IDLE session until it fails or ctx is canceled.
func (w *IdleWatcher) watchOnce(ctx context.Context) error {
	session, err := Open(ctx, w.opts, w.logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = session.Close()
	}()

	c := session.client
	known := session.MessageCount()

	idleClient := idle.NewClient(c)

	updates := make(chan imapclient.Update, 10)
	c.Updates = updates

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- idleClient.IdleWithFallback(stop, idleFallbackPoll)
	}()

	w.logger.Info().Str("folder", session.Folder()).Msg("IMAP IDLE watching for new mail")

	for {
		select {
		case <-ctx.Done():
			close(stop)
			<-done
			return nil
		case err := <-done:
			return err
		case update := <-updates:
			if update == nil {
				continue
			}
			known = w.handleUpdate(ctx, session.Folder(), known, update)
		}
	}
}

// handleUpdate fires OnNewMail when a mailbox update reports more messages than known.
func (w *IdleWatcher) handleUpdate(ctx context.Context, folder string, known uint32, update imapclient.Update) uint32 {
	mboxUpdate, ok := update.(*imapclient.MailboxUpdate)
	if !ok || mboxUpdate.Mailbox == nil {
		return known
	}

	status := mboxUpdate.Mailbox
	if status.Name != "" && status.Name != folder {
		return known
	}

	if status.Messages <= known {
		return status.Messages
	}

	w.logger.Info().Uint32("messages", status.Messages).Msg("IMAP IDLE detected new mail")
	if w.onNewMail != nil {
		w.onNewMail(ctx)
	}
	return status.Messages
}
