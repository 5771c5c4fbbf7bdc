package vectordb

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MetaString returns the metadata value for key as a string.
// Missing and nil values yield "".
func MetaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

// MetaInt returns the metadata value for key as an integer.
// The second result is false when the key is absent or not numeric.
func MetaInt(meta map[string]any, key string) (int, bool) {
	v, ok := meta[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

// DecodeMetadata parses a JSON metadata object, keeping numbers as json.Number.
func DecodeMetadata(raw []byte) (map[string]any, error) {
	meta := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return meta, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return meta, nil
}

// page slices records according to limit and offset.
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
