package extract

import (
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeader turns an RFC 2047 header value into plain text. It never fails:
// undecodable encoded words are kept verbatim and invalid bytes become U+FFFD.
func DecodeHeader(raw string) string {
	if raw == "" {
		return ""
	}

	decoded, err := wordDecoder.DecodeHeader(raw)
	if err != nil {
		decoded = decodeWordsLeniently(raw)
	}

	return ToValidUTF8(strings.TrimSpace(decoded))
}

// decodeWordsLeniently decodes each whitespace-separated encoded word on its own,
// keeping any word that fails as it was.
func decodeWordsLeniently(raw string) string {
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	prevEncoded := false
	for _, field := range fields {
		word, err := wordDecoder.Decode(field)
		if err != nil {
			out = append(out, field)
			prevEncoded = false
			continue
		}
		// Whitespace between adjacent encoded words is not significant.
		if prevEncoded && len(out) > 0 {
			out[len(out)-1] += word
		} else {
			out = append(out, word)
		}
		prevEncoded = true
	}
	return strings.Join(out, " ")
}

// ToValidUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func ToValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}
