package imap

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// dialTimeout bounds connection establishment to the mailbox server.
const dialTimeout = 5 * time.Second

// commandTimeout bounds each command sent over an open session.
const commandTimeout = 2 * time.Minute

// TransportError reports a mailbox connection or authentication failure.
// A sync cycle that hits one aborts without touching its state.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("imap %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ConnectToIMAP connects to the IMAP server with a 5-second timeout.
// useTLS: true for production (TLS), false for tests (non-TLS).
func ConnectToIMAP(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: dialTimeout,
	}

	if useTLS {
		c, err := client.DialWithDialerTLS(dialer, server, nil)
		if err != nil {
			return nil, &TransportError{Op: "dial", Err: fmt.Errorf("failed to dial with TLS: %w", err)}
		}
		c.Timeout = commandTimeout
		return c, nil
	}

	// Non-TLS connection for testing
	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: fmt.Errorf("failed to dial: %w", err)}
	}
	c.Timeout = commandTimeout

	return c, nil
}

// Login authenticates with the IMAP server.
func Login(c *client.Client, username, password string) error {
	if err := c.Login(username, password); err != nil {
		return &TransportError{Op: "login", Err: fmt.Errorf("failed to authenticate: %w", err)}
	}

	return nil
}

// connectionLost reports whether the client can no longer be used.
func connectionLost(c *client.Client) bool {
	if c == nil {
		return true
	}
	return c.State() == imap.LogoutState
}
