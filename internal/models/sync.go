package models

import "time"

// Watermark marks the upper bound of the last completed sync cycle.
type Watermark struct {
	LastPollTime time.Time `json:"last_poll_time"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DedupLedger is the set of message ids that have already been extracted.
type DedupLedger struct {
	ProcessedIDs map[string]struct{}
	LastUpdated  time.Time

	added []string
}

// NewDedupLedger creates a ledger seeded with the given ids.
func NewDedupLedger(ids []string, lastUpdated time.Time) *DedupLedger {
	l := &DedupLedger{
		ProcessedIDs: make(map[string]struct{}, len(ids)),
		LastUpdated:  lastUpdated,
	}
	for _, id := range ids {
		l.ProcessedIDs[id] = struct{}{}
	}
	return l
}

// Contains reports whether id has already been processed.
func (l *DedupLedger) Contains(id string) bool {
	_, ok := l.ProcessedIDs[id]
	return ok
}

// Add records id as processed. Adding an existing id is a no-op.
func (l *DedupLedger) Add(id string, now time.Time) {
	if l.ProcessedIDs == nil {
		l.ProcessedIDs = make(map[string]struct{})
	}
	if _, ok := l.ProcessedIDs[id]; ok {
		return
	}
	l.ProcessedIDs[id] = struct{}{}
	l.added = append(l.added, id)
	l.LastUpdated = now
}

// Len returns the number of processed ids.
func (l *DedupLedger) Len() int {
	return len(l.ProcessedIDs)
}

// IDs returns the processed ids in no particular order.
func (l *DedupLedger) IDs() []string {
	ids := make([]string, 0, len(l.ProcessedIDs))
	for id := range l.ProcessedIDs {
		ids = append(ids, id)
	}
	return ids
}

// Added returns the ids added since the ledger was loaded or last marked saved.
func (l *DedupLedger) Added() []string {
	return append([]string(nil), l.added...)
}

// MarkSaved clears the pending additions after a successful save.
func (l *DedupLedger) MarkSaved() {
	l.added = nil
}

// SkipReason explains why a planner candidate was not selected.
type SkipReason string

const (
	SkipAlreadyProcessed SkipReason = "already_processed"
)

// SkippedMessage is a message id the planner chose not to process.
type SkippedMessage struct {
	ID     string     `json:"id"`
	Reason SkipReason `json:"reason"`
}

// SyncPlan is the output of the sync planner for one cycle.
type SyncPlan struct {
	Candidates   []string         `json:"candidates"`
	Skipped      []SkippedMessage `json:"skipped"`
	Scanned      int              `json:"scanned"`
	StoppedEarly bool             `json:"stopped_early"`
	Since        time.Time        `json:"since"`
	NewWatermark time.Time        `json:"new_watermark"`
}
