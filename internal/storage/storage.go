// Package storage keeps raw messages and extracted attachments on local disk
// until enrichment finishes.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/daishi-37/yahei-fax-ocr/internal/fsutil"
	"github.com/daishi-37/yahei-fax-ocr/internal/models"
)

const (
	emailsDir      = "emails"
	attachmentsDir = "pdfs"
	messageExt     = ".eml"
)

// Store lays out artifacts as {root}/emails/{id}.eml and {root}/pdfs/{id}_{filename}.
type Store struct {
	root string
}

// New creates the storage directories under root.
func New(root string) (*Store, error) {
	for _, dir := range []string{filepath.Join(root, emailsDir), filepath.Join(root, attachmentsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the storage root.
func (s *Store) Root() string {
	return s.root
}

// MessagePath returns where the raw message with the given id is kept.
func (s *Store) MessagePath(id string) string {
	return filepath.Join(s.root, emailsDir, SafeName(id)+messageExt)
}

// AttachmentPath returns where an attachment of the given message is kept.
func (s *Store) AttachmentPath(id, filename string) string {
	return filepath.Join(s.root, attachmentsDir, SafeName(id)+"_"+SafeName(filename))
}

// SaveMessage writes the raw message bytes and returns the file path.
func (s *Store) SaveMessage(id string, raw []byte) (string, error) {
	path := s.MessagePath(id)
	if err := fsutil.WriteFileAtomic(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to save message %s: %w", id, err)
	}
	return path, nil
}

// SaveAttachment writes one attachment and returns the file path.
func (s *Store) SaveAttachment(id, filename string, content []byte) (string, error) {
	path := s.AttachmentPath(id, filename)
	if err := fsutil.WriteFileAtomic(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to save attachment %s of message %s: %w", filename, id, err)
	}
	return path, nil
}

// Remove deletes a stored artifact. A file that is already gone is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// LatestMessages lists up to limit stored messages, most recently written first.
func (s *Store) LatestMessages(limit int) ([]models.StoredMessage, error) {
	dir := filepath.Join(s.root, emailsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.StoredMessage{}, nil
		}
		return nil, fmt.Errorf("failed to list stored messages: %w", err)
	}

	messages := make([]models.StoredMessage, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), messageExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		messages = append(messages, models.StoredMessage{
			ID:         strings.TrimSuffix(entry.Name(), messageExt),
			Filename:   entry.Name(),
			Path:       filepath.Join(dir, entry.Name()),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].ModifiedAt.Equal(messages[j].ModifiedAt) {
			return messages[i].Filename > messages[j].Filename
		}
		return messages[i].ModifiedAt.After(messages[j].ModifiedAt)
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// SafeName reduces name to a single path element.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "unnamed"
	}
	return name
}
