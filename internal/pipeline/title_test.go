package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTitle(t *testing.T) {
	tests := []struct {
		name     string
		category string
		date     string
		abbr     string
		want     string
	}{
		{"all parts", "Invoice", "2025-07-14T00:00:00+09:00", "ACME", "【Invoice 07/14】ACME"},
		{"no category", "", "2025-07-14T00:00:00+09:00", "ACME", "【07/14】ACME"},
		{"no category or date", "", "", "ACME", "ACME"},
		{"no abbreviation", "Invoice", "2025-07-14T00:00:00+09:00", "", "【Invoice 07/14】"},
		{"message date header", "注文書", "Mon, 14 Jul 2025 09:30:00 +0900", "ACME", "【注文書 07/14】ACME"},
		{"plain date", "Invoice", "2025-12-01", "GBX", "【Invoice 12/01】GBX"},
		{"unparsable date", "Invoice", "yesterday", "ACME", "【Invoice】ACME"},
		{"nothing", "", "", "", ""},
		{"whitespace is empty", "  ", " ", " ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateTitle(tt.category, tt.date, tt.abbr))
		})
	}
}

func TestTitleOrSubject(t *testing.T) {
	assert.Equal(t, "【07/14】ACME", titleOrSubject("【07/14】ACME", "FAX"))
	assert.Equal(t, "FAX", titleOrSubject("", " FAX "))
	assert.Equal(t, "No Subject", titleOrSubject("", ""))
}

func TestTruncateRunes(t *testing.T) {
	body := strings.Repeat("a", 2500)
	assert.Len(t, truncateRunes(body, maxBodyRunes), 2000)

	jp := strings.Repeat("受", 2500)
	assert.Equal(t, 2000, len([]rune(truncateRunes(jp, maxBodyRunes))))

	assert.Equal(t, "short", truncateRunes("short", maxBodyRunes))
}

func TestIsoDate(t *testing.T) {
	assert.Equal(t, "2025-07-14T09:30:00+09:00", isoDate("Mon, 14 Jul 2025 09:30:00 +0900"))
	assert.Equal(t, "", isoDate("not a date"))
}
