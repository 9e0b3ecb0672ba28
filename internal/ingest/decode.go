package ingest

import (
	"bytes"
	"encoding/json"

	"github.com/clinref/clinref/internal/platform/apperr"
)

// DecodeBatch reads a batch request body. It accepts an envelope object
// holding the array under field, a bare array, or one bare object which
// becomes a batch of one.
func DecodeBatch[T any](body []byte, field string) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, apperr.Validation("request body is empty")
	}

	switch body[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, malformed(err)
		}
		return items, nil
	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, malformed(err)
		}
		if raw, ok := envelope[field]; ok {
			raw = bytes.TrimSpace(raw)
			if len(raw) == 0 || raw[0] != '[' {
				return nil, apperr.Validation("%s must be an array", field)
			}
			var items []T
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, malformed(err)
			}
			return items, nil
		}
		var item T
		if err := json.Unmarshal(body, &item); err != nil {
			return nil, malformed(err)
		}
		return []T{item}, nil
	default:
		return nil, apperr.Validation("request body must be a JSON object or array")
	}
}

func malformed(err error) error {
	e := apperr.Validation("malformed request body")
	e.Details = err.Error()
	return e
}
