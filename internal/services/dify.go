package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/go-resty/resty/v2"
)

const (
	conversionService = "conversion"
	matchService      = "matching"
)

// ErrNotConfigured is returned by clients whose credentials are missing.
var ErrNotConfigured = errors.New("service not configured")

// workflowClient talks to a Dify-compatible workflow API. Each workflow has its own key.
type workflowClient struct {
	client *resty.Client
	apiKey string
	user   string
}

func newWorkflowClient(baseURL, apiKey, user string, opts ClientOptions) *workflowClient {
	c := newRestyClient(baseURL, opts)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &workflowClient{client: c, apiKey: apiKey, user: user}
}

type fileUploadResponse struct {
	ID string `json:"id"`
}

type workflowRunResponse struct {
	WorkflowRunID string `json:"workflow_run_id"`
	Data          struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"data"`
}

// uploadFile stores a local file with the workflow service and returns its file id.
func (w *workflowClient) uploadFile(ctx context.Context, service, path string) (string, error) {
	var body fileUploadResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetFormData(map[string]string{"user": w.user}).
		SetResult(&body).
		Post("/files/upload")
	if err := checkResponse(service, resp, err); err != nil {
		return "", err
	}
	if body.ID == "" {
		return "", fmt.Errorf("%s: file upload returned no id", service)
	}
	return body.ID, nil
}

// run executes the workflow in blocking mode and returns the raw response body.
func (w *workflowClient) run(ctx context.Context, service string, inputs map[string]any) ([]byte, error) {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"inputs":        inputs,
			"response_mode": "blocking",
			"user":          w.user,
		}).
		Post("/workflows/run")
	if err := checkResponse(service, resp, err); err != nil {
		return nil, err
	}

	var status workflowRunResponse
	if json.Unmarshal(resp.Body(), &status) == nil && strings.EqualFold(status.Data.Status, "failed") {
		msg := status.Data.Error
		if msg == "" {
			msg = "workflow failed"
		}
		return nil, fmt.Errorf("%s: %s", service, msg)
	}

	return resp.Body(), nil
}

// ConversionClient runs the document conversion workflow.
type ConversionClient struct {
	workflow *workflowClient
}

// NewConversionClient creates a ConversionClient. An empty apiKey disables conversion.
func NewConversionClient(baseURL, apiKey, user string, opts ClientOptions) *ConversionClient {
	return &ConversionClient{workflow: newWorkflowClient(baseURL, apiKey, user, opts)}
}

// Convert uploads the document and returns the extracted items. Missing or malformed
// output yields a successful result with no items.
func (c *ConversionClient) Convert(ctx context.Context, path string) models.ConversionResult {
	if c.workflow.apiKey == "" {
		return models.ConversionResult{StepResult: models.Skipped("conversion service not configured")}
	}

	fileID, err := c.workflow.uploadFile(ctx, conversionService, path)
	if err != nil {
		return models.ConversionResult{StepResult: models.Failed(err.Error())}
	}

	payload, err := c.workflow.run(ctx, conversionService, map[string]any{
		"file": map[string]any{
			"type":            "document",
			"transfer_method": "local_file",
			"upload_file_id":  fileID,
		},
		"file_type": strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	})
	if err != nil {
		return models.ConversionResult{StepResult: models.Failed(err.Error())}
	}

	items := DecodeConversionItems(payload)
	msg := fmt.Sprintf("extracted %d item(s)", len(items))
	return models.ConversionResult{StepResult: models.Succeeded(msg), Items: items}
}

// MatchClient runs the fuzzy entity matching workflow.
type MatchClient struct {
	workflow *workflowClient
}

// NewMatchClient creates a MatchClient. An empty apiKey disables matching.
func NewMatchClient(baseURL, apiKey, user string, opts ClientOptions) *MatchClient {
	return &MatchClient{workflow: newWorkflowClient(baseURL, apiKey, user, opts)}
}

type matchCandidate struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// Match asks the matching workflow which directory entry best fits name.
func (c *MatchClient) Match(ctx context.Context, name string, entries []models.DirectoryEntry) (MatchAnswer, error) {
	if c.workflow.apiKey == "" {
		return MatchAnswer{}, ErrNotConfigured
	}

	candidates := make([]matchCandidate, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, matchCandidate{ID: e.ID, Name: e.DisplayName, Abbreviation: e.Abbreviation})
	}
	list, err := json.Marshal(candidates)
	if err != nil {
		return MatchAnswer{}, fmt.Errorf("failed to encode directory: %w", err)
	}

	payload, err := c.workflow.run(ctx, matchService, map[string]any{
		"name":    name,
		"clients": string(list),
	})
	if err != nil {
		return MatchAnswer{}, err
	}

	return DecodeMatchAnswer(payload), nil
}
