package services

import (
	"testing"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestDecodeConversionItems(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []models.ExtractedItem
	}{
		{
			name:    "top level result",
			payload: `{"result":{"data":[{"sourceEntity":"ACME","content":"c","category":"Invoice"}]}}`,
			want:    []models.ExtractedItem{{SourceEntity: "ACME", Content: "c", Category: "Invoice"}},
		},
		{
			name:    "workflow outputs with string-encoded result",
			payload: `{"data":{"outputs":{"result":"{\"data\":[{\"source_entity\":\"Globex\",\"category\":\"Order\"}]}"}}}`,
			want:    []models.ExtractedItem{{SourceEntity: "Globex", Category: "Order"}},
		},
		{
			name:    "fenced json",
			payload: "{\"result\":\"```json\\n{\\\"data\\\":[{\\\"sourceEntity\\\":\\\"ACME\\\"}]}\\n```\"}",
			want:    []models.ExtractedItem{{SourceEntity: "ACME"}},
		},
		{
			name:    "bare item",
			payload: `{"result":{"sourceEntity":"ACME","category":"Invoice"}}`,
			want:    []models.ExtractedItem{{SourceEntity: "ACME", Category: "Invoice"}},
		},
		{
			name:    "empty list",
			payload: `{"result":{"data":[]}}`,
			want:    []models.ExtractedItem{},
		},
		{name: "missing result", payload: `{"foo":"bar"}`},
		{name: "not json", payload: `<html>`},
		{name: "result is a scalar", payload: `{"result":42}`},
		{name: "data is a string", payload: `{"result":{"data":"nothing"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeConversionItems([]byte(tt.payload))
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMatchAnswer(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    MatchAnswer
	}{
		{"object", `{"result":{"id":"c1","name":"ACME"}}`, MatchAnswer{ID: "c1", Name: "ACME"}},
		{"string encoded", `{"result":"{\"id\":\"c2\",\"name\":\"Globex\"}"}`, MatchAnswer{ID: "c2", Name: "Globex"}},
		{"null id", `{"result":{"id":null,"name":""}}`, MatchAnswer{}},
		{"numeric id", `{"result":{"id":7}}`, MatchAnswer{ID: "7"}},
		{"no result", `{}`, MatchAnswer{}},
		{"garbage", `nope`, MatchAnswer{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeMatchAnswer([]byte(tt.payload)))
		})
	}
}
