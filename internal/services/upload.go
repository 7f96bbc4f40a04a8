package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/go-resty/resty/v2"
)

const uploadService = "upload"

type uploadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		URL       string `json:"url"`
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
	} `json:"data"`
}

// UploadClient sends documents to the file upload service, which returns a
// time-limited retrieval URL.
type UploadClient struct {
	client      *resty.Client
	configured  bool
	expiryHours int
}

// NewUploadClient creates an UploadClient. An empty baseURL disables uploads.
func NewUploadClient(baseURL, apiKey string, expiryHours int, opts ClientOptions) *UploadClient {
	c := newRestyClient(baseURL, opts)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &UploadClient{
		client:      c,
		configured:  baseURL != "",
		expiryHours: expiryHours,
	}
}

// Upload posts the file as multipart form data with an expiry hint.
func (c *UploadClient) Upload(ctx context.Context, path string) models.UploadResult {
	if !c.configured {
		return models.UploadResult{StepResult: models.Skipped("upload service not configured")}
	}

	var body uploadResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetFormData(map[string]string{
			"expiry_hours": strconv.Itoa(c.expiryHours),
			"filename":     filepath.Base(path),
		}).
		SetResult(&body).
		Post("/upload")
	if err := checkResponse(uploadService, resp, err); err != nil {
		return models.UploadResult{StepResult: models.Failed(err.Error())}
	}

	if body.Status != "" && body.Status != "success" && body.Status != "ok" {
		msg := body.Message
		if msg == "" {
			msg = fmt.Sprintf("upload returned status %q", body.Status)
		}
		return models.UploadResult{StepResult: models.Failed(msg)}
	}
	if body.Data.URL == "" {
		return models.UploadResult{StepResult: models.Failed("upload response has no url")}
	}

	return models.UploadResult{
		StepResult: models.Succeeded("uploaded"),
		URL:        body.Data.URL,
		StartTime:  body.Data.StartTime,
		EndTime:    body.Data.EndTime,
	}
}
