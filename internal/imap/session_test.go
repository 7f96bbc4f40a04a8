package imap

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/daishi-37/yahei-fax-ocr/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(server *testutil.TestIMAPServer) Options {
	return Options{
		Address:  server.Address,
		Username: server.Username(),
		Password: server.Password(),
		Folder:   "INBOX",
		UseTLS:   false,
	}
}

func TestOpen(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	defer server.Close()

	ctx := context.Background()

	t.Run("logs in and selects the folder", func(t *testing.T) {
		session, err := Open(ctx, testOptions(server), zerolog.Nop())
		require.NoError(t, err)
		defer func() {
			_ = session.Close()
		}()

		assert.Equal(t, "INBOX", session.Folder())
		caps, err := session.Capabilities()
		require.NoError(t, err)
		assert.Contains(t, caps, "IMAP4rev1")
	})

	t.Run("wrong password is a transport error", func(t *testing.T) {
		opts := testOptions(server)
		opts.Password = "wrong"

		_, err := Open(ctx, opts, zerolog.Nop())
		require.Error(t, err)
		assert.True(t, IsTransportError(err))
	})

	t.Run("unreachable server is a transport error", func(t *testing.T) {
		opts := testOptions(server)
		opts.Address = "127.0.0.1:1"

		_, err := Open(ctx, opts, zerolog.Nop())
		require.Error(t, err)
		assert.True(t, IsTransportError(err))
	})

	t.Run("missing folder is a transport error", func(t *testing.T) {
		opts := testOptions(server)
		opts.Folder = "Faxes"

		_, err := Open(ctx, opts, zerolog.Nop())
		require.Error(t, err)
		assert.True(t, IsTransportError(err))
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := Open(canceled, testOptions(server), zerolog.Nop())
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestSessionSearch(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	defer server.Close()
	server.EnsureINBOX(t)

	now := time.Now()
	seeded := server.ExistingUIDs(t, "INBOX")
	server.AddMessage(t, "INBOX", "<old@example.com>", "Old", "a@example.com", "b@example.com", now.AddDate(0, 0, -10))
	newUID1 := server.AddRawMessage(t, "INBOX", "<new1@example.com>",
		testutil.BuildMessage("<new1@example.com>", "New 1", "a@example.com", "b@example.com", now, "body"), now)
	newUID2 := server.AddRawMessage(t, "INBOX", "<new2@example.com>",
		testutil.BuildMessage("<new2@example.com>", "New 2", "a@example.com", "b@example.com", now, "body"), now)

	session, err := Open(context.Background(), testOptions(server), zerolog.Nop())
	require.NoError(t, err)
	defer func() {
		_ = session.Close()
	}()

	ids, err := session.Search(context.Background(), now.AddDate(0, 0, -3))
	require.NoError(t, err)

	var want []string
	for _, uid := range seeded {
		want = append(want, strconv.FormatUint(uint64(uid), 10))
	}
	want = append(want, strconv.FormatUint(uint64(newUID1), 10), strconv.FormatUint(uint64(newUID2), 10))

	assert.Equal(t, want, ids, "ids are oldest first and exclude messages before the since day")
}

func TestSessionFetch(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	defer server.Close()
	server.EnsureINBOX(t)

	raw := testutil.BuildMessage("<fetch@example.com>", "Fetch me", "a@example.com", "b@example.com", time.Now(), "hello", testutil.PDFAttachment("fax.pdf"))
	uid := server.AddRawMessage(t, "INBOX", "<fetch@example.com>", raw, time.Now())

	ctx := context.Background()
	session, err := Open(ctx, testOptions(server), zerolog.Nop())
	require.NoError(t, err)

	t.Run("returns the raw message", func(t *testing.T) {
		got, err := session.Fetch(ctx, strconv.FormatUint(uint64(uid), 10))
		require.NoError(t, err)
		assert.Contains(t, string(got), "Subject: Fetch me")
		assert.Contains(t, string(got), `filename="fax.pdf"`)
	})

	t.Run("unknown uid is not a transport error", func(t *testing.T) {
		_, err := session.Fetch(ctx, "9999")
		require.Error(t, err)
		assert.False(t, IsTransportError(err))
		assert.True(t, errors.Is(err, ErrMessageNotFound))
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := session.Fetch(ctx, "abc")
		require.Error(t, err)
		assert.False(t, IsTransportError(err))
	})

	t.Run("fetch after close is a transport error", func(t *testing.T) {
		require.NoError(t, session.Close())
		_, err := session.Fetch(ctx, strconv.FormatUint(uint64(uid), 10))
		require.Error(t, err)
		assert.True(t, IsTransportError(err))
		assert.NoError(t, session.Close(), "closing twice is a no-op")
	})
}

func TestFetchRawMessageNilClient(t *testing.T) {
	_, err := FetchRawMessage(nil, 1)
	require.Error(t, err)
	assert.Equal(t, "client is nil", err.Error())

	_, err = SearchSince(nil, time.Now())
	require.Error(t, err)
}
