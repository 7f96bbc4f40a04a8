package models

import "time"

// StepStatus is the terminal status of one enrichment step.
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusError   StepStatus = "error"
	StatusSkipped StepStatus = "skipped"
)

// StepResult is the structured status carried by every enrichment step.
type StepResult struct {
	Status  StepStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

// OK reports whether the step succeeded.
func (r StepResult) OK() bool {
	return r.Status == StatusSuccess
}

// Succeeded returns a success result.
func Succeeded(msg string) StepResult {
	return StepResult{Status: StatusSuccess, Message: msg}
}

// Failed returns an error result.
func Failed(msg string) StepResult {
	return StepResult{Status: StatusError, Message: msg}
}

// Skipped returns a skipped result.
func Skipped(msg string) StepResult {
	return StepResult{Status: StatusSkipped, Message: msg}
}

// UploadResult is the outcome of sending an attachment to the upload service.
type UploadResult struct {
	StepResult
	URL       string `json:"url,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// ExtractedItem is one document found by the conversion service.
// Every field is optional and empty when the service did not provide it.
type ExtractedItem struct {
	SourceEntity string `json:"source_entity,omitempty"`
	Content      string `json:"content,omitempty"`
	Category     string `json:"category,omitempty"`
}

// ConversionResult is the outcome of the document conversion service.
type ConversionResult struct {
	StepResult
	Items []ExtractedItem `json:"items,omitempty"`
}

// First returns the first extracted item, or the zero item when nothing was extracted.
func (r ConversionResult) First() ExtractedItem {
	if len(r.Items) == 0 {
		return ExtractedItem{}
	}
	return r.Items[0]
}

// MatchResult is the outcome of fuzzy-matching a source entity against the directory.
type MatchResult struct {
	StepResult
	Query string          `json:"query,omitempty"`
	Entry *DirectoryEntry `json:"entry,omitempty"`
}

// Matched reports whether a directory entry was accepted.
func (r MatchResult) Matched() bool {
	return r.Entry != nil
}

// RegistryResult is the outcome of creating the registry record.
type RegistryResult struct {
	StepResult
	PageID string `json:"page_id,omitempty"`
	URL    string `json:"url,omitempty"`
	Title  string `json:"title,omitempty"`
}

// AttachmentOutcome is the terminal record of one attachment's pass through enrichment.
type AttachmentOutcome struct {
	Path       string           `json:"path"`
	Upload     UploadResult     `json:"upload"`
	Conversion ConversionResult `json:"conversion"`
	Match      MatchResult      `json:"match"`
	Registry   RegistryResult   `json:"registry"`
	Succeeded  bool             `json:"succeeded"`
	Deleted    bool             `json:"deleted"`
}

// AllSucceeded is the logical AND of the outcomes' success flags.
func AllSucceeded(outcomes []AttachmentOutcome) bool {
	for _, o := range outcomes {
		if !o.Succeeded {
			return false
		}
	}
	return true
}

// MessageSummary reports what a cycle did with one message.
type MessageSummary struct {
	ID             string              `json:"id"`
	Subject        string              `json:"subject"`
	From           string              `json:"from"`
	Status         StepResult          `json:"status"`
	Attachments    []AttachmentOutcome `json:"attachments,omitempty"`
	AllSucceeded   bool                `json:"all_succeeded"`
	MessageDeleted bool                `json:"message_deleted"`
}

// CycleStatus is the overall status of one sync cycle.
type CycleStatus string

const (
	CycleCompleted CycleStatus = "completed"
	CycleFailed    CycleStatus = "failed"
)

// CycleResult is the report produced by one sync cycle.
type CycleResult struct {
	ID           string           `json:"id"`
	Status       CycleStatus      `json:"status"`
	Message      string           `json:"message,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Scanned      int              `json:"scanned"`
	Skipped      int              `json:"skipped"`
	StoppedEarly bool             `json:"stopped_early"`
	Watermark    *time.Time       `json:"watermark,omitempty"`
	Messages     []MessageSummary `json:"messages"`
}

// Processed returns the number of messages extracted during the cycle.
func (r *CycleResult) Processed() int {
	n := 0
	for _, m := range r.Messages {
		if m.Status.OK() {
			n++
		}
	}
	return n
}
