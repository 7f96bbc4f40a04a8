package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/go-resty/resty/v2"
)

const (
	registryService = "registry"
	notionVersion   = "2022-06-28"
	notionPageSize  = 100
	// Notion rejects rich text segments longer than this.
	notionTextLimit = 2000
)

// Record is the set of properties written for one enriched document.
type Record struct {
	Title    string
	PDFURL   string
	ClientID string
	Body     string
	Category string
	Subject  string
	From     string
	Date     string
	Content  string
	Filename string
}

// NotionClient reads the client directory and writes document records.
type NotionClient struct {
	client              *resty.Client
	token               string
	recordDatabaseID    string
	directoryDatabaseID string
}

// NewNotionClient creates a NotionClient against baseURL (normally https://api.notion.com).
func NewNotionClient(baseURL, token, recordDatabaseID, directoryDatabaseID string, opts ClientOptions) *NotionClient {
	c := newRestyClient(strings.TrimRight(baseURL, "/")+"/v1", opts).
		SetHeader("Notion-Version", notionVersion)
	if token != "" {
		c.SetAuthToken(token)
	}
	return &NotionClient{
		client:              c,
		token:               token,
		recordDatabaseID:    recordDatabaseID,
		directoryDatabaseID: directoryDatabaseID,
	}
}

type notionText struct {
	PlainText string `json:"plain_text"`
}

type notionProperty struct {
	Type     string       `json:"type"`
	Title    []notionText `json:"title"`
	RichText []notionText `json:"rich_text"`
}

type notionPage struct {
	ID         string                    `json:"id"`
	URL        string                    `json:"url"`
	Properties map[string]notionProperty `json:"properties"`
}

type notionQueryResponse struct {
	Results    []notionPage `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor *string      `json:"next_cursor"`
}

// ListDirectory pages through the whole directory database.
func (c *NotionClient) ListDirectory(ctx context.Context) ([]models.DirectoryEntry, error) {
	return c.queryDirectory(ctx, nil)
}

// QueryDirectoryByName asks the registry for entries whose name contains name.
func (c *NotionClient) QueryDirectoryByName(ctx context.Context, name string) ([]models.DirectoryEntry, error) {
	return c.queryDirectory(ctx, map[string]any{
		"property": "Name",
		"title":    map[string]any{"contains": name},
	})
}

func (c *NotionClient) queryDirectory(ctx context.Context, filter map[string]any) ([]models.DirectoryEntry, error) {
	if c.token == "" || c.directoryDatabaseID == "" {
		return nil, ErrNotConfigured
	}

	var entries []models.DirectoryEntry
	var cursor string
	for {
		body := map[string]any{"page_size": notionPageSize}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		if filter != nil {
			body["filter"] = filter
		}

		var page notionQueryResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetPathParam("id", c.directoryDatabaseID).
			SetBody(body).
			SetResult(&page).
			Post("/databases/{id}/query")
		if err := checkResponse(registryService, resp, err); err != nil {
			return nil, err
		}

		for _, p := range page.Results {
			entries = append(entries, directoryEntry(p))
		}

		if !page.HasMore || page.NextCursor == nil || *page.NextCursor == "" {
			return entries, nil
		}
		cursor = *page.NextCursor
	}
}

func directoryEntry(p notionPage) models.DirectoryEntry {
	entry := models.DirectoryEntry{ID: p.ID}
	for name, prop := range p.Properties {
		switch {
		case prop.Type == "title" || (prop.Type == "" && len(prop.Title) > 0):
			entry.DisplayName = joinText(prop.Title)
		case name == "Abbreviation" || name == "略称":
			entry.Abbreviation = joinText(prop.RichText)
		}
	}
	return entry
}

func joinText(parts []notionText) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.PlainText)
	}
	return strings.TrimSpace(b.String())
}

// CreateRecord creates a page in the record database.
func (c *NotionClient) CreateRecord(ctx context.Context, rec Record) models.RegistryResult {
	if c.token == "" || c.recordDatabaseID == "" {
		return models.RegistryResult{StepResult: models.Failed("registry not configured")}
	}

	title := rec.Title
	if title == "" {
		title = "No Subject"
	}

	properties := map[string]any{
		"Name":     map[string]any{"title": textValue(title)},
		"Subject":  map[string]any{"rich_text": textValue(rec.Subject)},
		"From":     map[string]any{"rich_text": textValue(rec.From)},
		"Body":     map[string]any{"rich_text": textValue(rec.Body)},
		"Content":  map[string]any{"rich_text": textValue(rec.Content)},
		"Filename": map[string]any{"rich_text": textValue(rec.Filename)},
	}
	if rec.Date != "" {
		properties["Date"] = map[string]any{"date": map[string]any{"start": rec.Date}}
	}
	if rec.Category != "" {
		properties["Category"] = map[string]any{"select": map[string]any{"name": rec.Category}}
	}
	if rec.ClientID != "" {
		properties["Client"] = map[string]any{"relation": []map[string]any{{"id": rec.ClientID}}}
	}
	if rec.PDFURL != "" {
		properties["PDF"] = map[string]any{"files": []map[string]any{{
			"name":     fileLabel(rec.Filename),
			"type":     "external",
			"external": map[string]any{"url": rec.PDFURL},
		}}}
	}

	var page notionPage
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"parent":     map[string]any{"database_id": c.recordDatabaseID},
			"properties": properties,
		}).
		SetResult(&page).
		Post("/pages")
	if err := checkResponse(registryService, resp, err); err != nil {
		return models.RegistryResult{StepResult: models.Failed(err.Error())}
	}
	if page.ID == "" {
		return models.RegistryResult{StepResult: models.Failed("registry response has no page id")}
	}

	return models.RegistryResult{
		StepResult: models.Succeeded("record created"),
		PageID:     page.ID,
		URL:        page.URL,
		Title:      title,
	}
}

func textValue(s string) []map[string]any {
	if s == "" {
		return []map[string]any{}
	}
	r := []rune(s)
	if len(r) > notionTextLimit {
		r = r[:notionTextLimit]
	}
	return []map[string]any{{"text": map[string]any{"content": string(r)}}}
}

func fileLabel(filename string) string {
	if filename == "" {
		return "document.pdf"
	}
	return fmt.Sprintf("%.100s", filename)
}
