package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePaths(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(store.Root(), "emails", "42.eml"), store.MessagePath("42"))
	assert.Equal(t, filepath.Join(store.Root(), "pdfs", "42_fax.pdf"), store.AttachmentPath("42", "fax.pdf"))
	assert.Equal(t, filepath.Join(store.Root(), "pdfs", "42_passwd"), store.AttachmentPath("42", "../../etc/passwd"))
	assert.Equal(t, filepath.Join(store.Root(), "pdfs", "42_evil.pdf"), store.AttachmentPath("42", `C:\temp\evil.pdf`))
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"fax.pdf":         "fax.pdf",
		"a/b/c.pdf":       "c.pdf",
		`dir\file.pdf`:    "file.pdf",
		"":                "unnamed",
		"..":              "unnamed",
		"/":               "unnamed",
		"請求書_0714.pdf": "請求書_0714.pdf",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, SafeName(in))
		})
	}
}

func TestSaveAndRemove(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	msgPath, err := store.SaveMessage("7", []byte("raw"))
	require.NoError(t, err)
	attPath, err := store.SaveAttachment("7", "fax.pdf", []byte("%PDF"))
	require.NoError(t, err)

	data, err := os.ReadFile(attPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	require.NoError(t, store.Remove(msgPath))
	require.NoError(t, store.Remove(attPath))
	assert.NoFileExists(t, msgPath)
	assert.NoFileExists(t, attPath)

	assert.NoError(t, store.Remove(attPath), "removing a missing file is not an error")
}

func TestLatestMessages(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "3"} {
		path, err := store.SaveMessage(id, []byte("raw "+id))
		require.NoError(t, err)
		mod := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}
	_, err = store.SaveAttachment("3", "fax.pdf", []byte("%PDF"))
	require.NoError(t, err)

	latest, err := store.LatestMessages(2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "3", latest[0].ID)
	assert.Equal(t, "2", latest[1].ID)
	assert.Equal(t, "3.eml", latest[0].Filename)
	assert.Equal(t, int64(len("raw 3")), latest[0].SizeBytes)

	all, err := store.LatestMessages(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
