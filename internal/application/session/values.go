package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Values is the decoded content of a session
type Values map[string]any

// Has reports whether field holds a non-empty value
func (v Values) Has(field string) bool {
	val, ok := v[field]
	if !ok || val == nil {
		return false
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String retrieves a field as a trimmed string
func (v Values) String(field string) string {
	switch val := v[field].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// Int retrieves a field as an integer, accepting JSON numbers and digit strings
func (v Values) Int(field string) (int, bool) {
	switch val := v[field].(type) {
	case float64:
		if val != float64(int(val)) {
			return 0, false
		}
		return int(val), true
	case int:
		return val, true
	case int64:
		return int(val), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	}
	return 0, false
}

// Merge returns a copy of v with other's fields written over it
func (v Values) Merge(other Values) Values {
	merged := make(Values, len(v)+len(other))
	for k, val := range v {
		merged[k] = val
	}
	for k, val := range other {
		merged[k] = val
	}
	return merged
}

// Decode copies the session into a struct using its json tags
func (v Values) Decode(into any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode session values: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to decode session values: %w", err)
	}
	return nil
}
