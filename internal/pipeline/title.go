package pipeline

import (
	"net/mail"
	"strings"
	"time"
)

const (
	// maxBodyRunes caps the message body written to a registry record.
	maxBodyRunes = 2000
	noSubject    = "No Subject"
)

// GenerateTitle builds a registry title such as "【Invoice 07/14】ACME".
// Empty parts are left out: "【07/14】ACME" without a category and "ACME" without a
// category or a date. It returns "" when every part is empty.
func GenerateTitle(category, date, abbreviation string) string {
	var prefix []string
	if c := strings.TrimSpace(category); c != "" {
		prefix = append(prefix, c)
	}
	if t, ok := parseDate(date); ok {
		prefix = append(prefix, t.Format("01/02"))
	}

	abbreviation = strings.TrimSpace(abbreviation)
	if len(prefix) == 0 {
		return abbreviation
	}
	return "【" + strings.Join(prefix, " ") + "】" + abbreviation
}

// titleOrSubject falls back to the message subject when no title parts exist.
func titleOrSubject(title, subject string) string {
	if title != "" {
		return title
	}
	if s := strings.TrimSpace(subject); s != "" {
		return s
	}
	return noSubject
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate accepts ISO-8601 timestamps and RFC 5322 message dates.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// isoDate renders a message date for the registry, or "" when it cannot be parsed.
func isoDate(s string) string {
	t, ok := parseDate(s)
	if !ok {
		return ""
	}
	return t.Format(time.RFC3339)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
