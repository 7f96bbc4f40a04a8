package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/daishi-37/yahei-fax-ocr/internal/models"
)

// Workflow outputs arrive in several shapes: the result may sit at the top level or
// under data.outputs, may be JSON-encoded into a string, and item keys may be camelCase
// or snake_case. The decoders below accept all of them and map anything else to the
// empty value instead of failing.

// DecodeConversionItems extracts the items from a conversion service payload.
func DecodeConversionItems(payload []byte) []models.ExtractedItem {
	result := locateResult(payload)
	if result == nil {
		return nil
	}

	obj, ok := result.(map[string]any)
	if !ok {
		return itemsFrom(result)
	}

	data, ok := obj["data"]
	if !ok {
		// A bare item without the data wrapper.
		if item, ok := itemFrom(obj); ok {
			return []models.ExtractedItem{item}
		}
		return nil
	}
	return itemsFrom(unwrapString(data))
}

// MatchAnswer is the decoded answer of the matching service.
type MatchAnswer struct {
	ID   string
	Name string
}

// DecodeMatchAnswer extracts {id, name} from a matching service payload.
func DecodeMatchAnswer(payload []byte) MatchAnswer {
	obj, ok := locateResult(payload).(map[string]any)
	if !ok {
		return MatchAnswer{}
	}
	return MatchAnswer{
		ID:   stringField(obj, "id", "client_id", "clientId"),
		Name: stringField(obj, "name", "client_name", "clientName"),
	}
}

// locateResult finds the "result" value in a payload.
func locateResult(payload []byte) any {
	var root map[string]any
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil
	}

	if result, ok := root["result"]; ok {
		return unwrapString(result)
	}

	data, ok := root["data"].(map[string]any)
	if !ok {
		return nil
	}
	outputs, ok := unwrapString(data["outputs"]).(map[string]any)
	if !ok {
		return nil
	}
	if result, ok := outputs["result"]; ok {
		return unwrapString(result)
	}
	return outputs
}

// unwrapString decodes a JSON document carried inside a string value.
func unwrapString(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return v
	}
	return decoded
}

func itemsFrom(v any) []models.ExtractedItem {
	switch t := v.(type) {
	case []any:
		items := make([]models.ExtractedItem, 0, len(t))
		for _, raw := range t {
			obj, ok := unwrapString(raw).(map[string]any)
			if !ok {
				continue
			}
			if item, ok := itemFrom(obj); ok {
				items = append(items, item)
			}
		}
		return items
	case map[string]any:
		if item, ok := itemFrom(t); ok {
			return []models.ExtractedItem{item}
		}
	}
	return nil
}

func itemFrom(obj map[string]any) (models.ExtractedItem, bool) {
	item := models.ExtractedItem{
		SourceEntity: stringField(obj, "sourceEntity", "source_entity", "source", "sender"),
		Content:      stringField(obj, "content", "text"),
		Category:     stringField(obj, "category", "format", "type"),
	}
	if item == (models.ExtractedItem{}) {
		return item, false
	}
	return item, true
}

// stringField returns the first present key rendered as a trimmed string.
func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return strings.TrimSpace(t)
		case float64, bool:
			return fmt.Sprint(t)
		}
	}
	return ""
}
