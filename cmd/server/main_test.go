package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/daishi-37/yahei-fax-ocr/internal/app"
	"github.com/daishi-37/yahei-fax-ocr/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:            "test",
		IMAPServer:             "127.0.0.1",
		IMAPPort:               1,
		StoragePath:            t.TempDir(),
		StateBackend:           config.StateBackendFile,
		PollingIntervalMinutes: 5,
		Port:                   "8080",
		APIToken:               "secret",
		Timezone:               "UTC",
	}
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	a, err := app.New(context.Background(), getTestConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return NewServer(a)
}

func TestHandleRoot(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handleRoot(w, req)

	res := w.Result()
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			t.Fatalf("failed to close response body: %v", err)
		}
	}(res.Body)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/plain", res.Header.Get("Content-Type"))

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "Mail sync API is running", string(body))
}

func TestNewServer(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"root", http.MethodGet, "/", "", http.StatusOK},
		{"unknown path", http.MethodGet, "/api/v1/threads", "", http.StatusNotFound},
		{"metrics are public", http.MethodGet, "/metrics", "", http.StatusOK},
		{"status requires token", http.MethodGet, "/api/v1/emails/status", "", http.StatusUnauthorized},
		{"status with token", http.MethodGet, "/api/v1/emails/status", "secret", http.StatusOK},
		{"latest with token", http.MethodGet, "/api/v1/emails/latest", "secret", http.StatusOK},
		{"poll with wrong token", http.MethodPost, "/api/v1/emails/poll", "nope", http.StatusUnauthorized},
		{"poll rejects GET", http.MethodGet, "/api/v1/emails/poll", "secret", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestNewServer_PollReportsFailedCycle(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/emails/poll", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)
}
