package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workflowRequest struct {
	Inputs       map[string]any `json:"inputs"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
}

func newWorkflowServer(t *testing.T, apiKey string, run func(t *testing.T, req workflowRequest) (int, string)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+apiKey, r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "tester", r.FormValue("user"))
		writeJSON(w, http.StatusCreated, map[string]any{"id": "file-1", "name": "fax.pdf"})
	})
	mux.HandleFunc("/workflows/run", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+apiKey, r.Header.Get("Authorization"))
		var req workflowRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "blocking", req.ResponseMode)
		assert.Equal(t, "tester", req.User)
		status, body := run(t, req)
		writeRaw(w, status, body)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestConversionClient_Convert(t *testing.T) {
	ctx := testContext(t)

	t.Run("returns decoded items", func(t *testing.T) {
		server := newWorkflowServer(t, "ocr-key", func(t *testing.T, req workflowRequest) (int, string) {
			file, ok := req.Inputs["file"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "file-1", file["upload_file_id"])
			assert.Equal(t, "local_file", file["transfer_method"])
			assert.Equal(t, "pdf", req.Inputs["file_type"])
			return http.StatusOK, `{"data":{"status":"succeeded","outputs":{"result":{"data":[{"sourceEntity":"ACME","content":"total 100","category":"Invoice"}]}}}}`
		})

		result := NewConversionClient(server.URL, "ocr-key", "tester", noRetry).Convert(ctx, tempPDF(t, "fax.pdf"))
		require.True(t, result.OK(), result.Message)
		assert.Equal(t, []models.ExtractedItem{{SourceEntity: "ACME", Content: "total 100", Category: "Invoice"}}, result.Items)
	})

	t.Run("malformed output is an empty success", func(t *testing.T) {
		server := newWorkflowServer(t, "ocr-key", func(*testing.T, workflowRequest) (int, string) {
			return http.StatusOK, `{"data":{"status":"succeeded","outputs":{}}}`
		})

		result := NewConversionClient(server.URL, "ocr-key", "tester", noRetry).Convert(ctx, tempPDF(t, "fax.pdf"))
		assert.True(t, result.OK())
		assert.Empty(t, result.Items)
		assert.Equal(t, models.ExtractedItem{}, result.First())
	})

	t.Run("failed workflow is an error", func(t *testing.T) {
		server := newWorkflowServer(t, "ocr-key", func(*testing.T, workflowRequest) (int, string) {
			return http.StatusOK, `{"data":{"status":"failed","error":"model overloaded"}}`
		})

		result := NewConversionClient(server.URL, "ocr-key", "tester", noRetry).Convert(ctx, tempPDF(t, "fax.pdf"))
		assert.Equal(t, models.StatusError, result.Status)
		assert.Contains(t, result.Message, "model overloaded")
	})

	t.Run("server error is an error", func(t *testing.T) {
		server := newWorkflowServer(t, "ocr-key", func(*testing.T, workflowRequest) (int, string) {
			return http.StatusInternalServerError, `{"code":"internal","message":"boom"}`
		})

		result := NewConversionClient(server.URL, "ocr-key", "tester", noRetry).Convert(ctx, tempPDF(t, "fax.pdf"))
		assert.Equal(t, models.StatusError, result.Status)
		assert.Contains(t, result.Message, "boom")
	})

	t.Run("missing key skips", func(t *testing.T) {
		result := NewConversionClient("http://127.0.0.1:1", "", "tester", noRetry).Convert(ctx, "x.pdf")
		assert.Equal(t, models.StatusSkipped, result.Status)
	})
}

func TestMatchClient_Match(t *testing.T) {
	ctx := testContext(t)
	entries := []models.DirectoryEntry{
		{ID: "c1", DisplayName: "ACME Corporation", Abbreviation: "ACME"},
		{ID: "c2", DisplayName: "Globex", Abbreviation: "GBX"},
	}

	t.Run("sends the directory and decodes the answer", func(t *testing.T) {
		server := newWorkflowServer(t, "match-key", func(t *testing.T, req workflowRequest) (int, string) {
			assert.Equal(t, "acme corp", req.Inputs["name"])

			raw, ok := req.Inputs["clients"].(string)
			require.True(t, ok)
			var sent []map[string]string
			require.NoError(t, json.Unmarshal([]byte(raw), &sent))
			require.Len(t, sent, 2)
			assert.Equal(t, map[string]string{"id": "c1", "name": "ACME Corporation", "abbreviation": "ACME"}, sent[0])

			return http.StatusOK, `{"data":{"outputs":{"result":"{\"id\":\"c1\",\"name\":\"ACME Corporation\"}"}}}`
		})

		answer, err := NewMatchClient(server.URL, "match-key", "tester", noRetry).Match(ctx, "acme corp", entries)
		require.NoError(t, err)
		assert.Equal(t, MatchAnswer{ID: "c1", Name: "ACME Corporation"}, answer)
	})

	t.Run("missing key is not configured", func(t *testing.T) {
		_, err := NewMatchClient("http://127.0.0.1:1", "", "tester", noRetry).Match(ctx, "acme", entries)
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}
