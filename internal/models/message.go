package models

import "time"

// MessageRecord is the parsed form of one fetched message. It is not modified after extraction.
type MessageRecord struct {
	ID              string    `json:"id"`
	Subject         string    `json:"subject"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Date            string    `json:"date"`
	Body            string    `json:"body"`
	ReceivedAt      time.Time `json:"received_at"`
	MessagePath     string    `json:"message_path"`
	AttachmentPaths []string  `json:"attachment_paths"`
}

// StoredMessage describes a raw message file kept in artifact storage.
type StoredMessage struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// DirectoryEntry is one row of the registry's client table.
type DirectoryEntry struct {
	ID           string `json:"id"`
	DisplayName  string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}
