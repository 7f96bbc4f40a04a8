// Package services holds the HTTP clients for the upload, conversion,
// matching and registry services used during enrichment.
package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultRetryCount = 3
	retryWaitTime     = 200 * time.Millisecond
	retryMaxWaitTime  = 5 * time.Second
	userAgent         = "yahei-fax-ocr/1.0"
)

// APIError is a non-2xx response from an external service.
type APIError struct {
	Service    string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: status=%d code=%s message=%s", e.Service, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status=%d message=%s", e.Service, e.StatusCode, e.Message)
}

// ClientOptions tunes the shared HTTP client.
type ClientOptions struct {
	Timeout    time.Duration
	RetryCount int
	HTTPClient *http.Client
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	} else if o.RetryCount == 0 {
		o.RetryCount = defaultRetryCount
	}
	return o
}

// newRestyClient builds a client that retries rate limits and server errors.
func newRestyClient(baseURL string, opts ClientOptions) *resty.Client {
	opts = opts.withDefaults()

	var c *resty.Client
	if opts.HTTPClient != nil {
		c = resty.NewWithClient(opts.HTTPClient)
	} else {
		c = resty.New()
	}

	return c.
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(retryWaitTime).
		SetRetryMaxWaitTime(retryMaxWaitTime).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})
}

// checkResponse turns transport failures and non-2xx responses into errors.
func checkResponse(service string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s request failed: %w", service, err)
	}
	if resp.IsSuccess() {
		return nil
	}

	apiErr := &APIError{
		Service:    service,
		StatusCode: resp.StatusCode(),
		Message:    strings.TrimSpace(resp.String()),
	}

	var parsed map[string]any
	if json.Unmarshal(resp.Body(), &parsed) == nil {
		if code, ok := parsed["code"].(string); ok {
			apiErr.Code = code
		}
		if message, ok := parsed["message"].(string); ok && strings.TrimSpace(message) != "" {
			apiErr.Message = message
		}
	}

	return apiErr
}
