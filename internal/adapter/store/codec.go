package store

import (
	"encoding/json"
	"strings"
)

// stringList is the result of decoding a stored email or phone collection.
// Fallback is set when the raw value was not a JSON list and was wrapped as-is.
type stringList struct {
	Values   []string
	Fallback bool
}

func encodeStringList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeStringList accepts a JSON array, a JSON string, or any other raw
// scalar, so rows written by older clients still read back as lists.
func decodeStringList(raw string) stringList {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return stringList{Values: []string{}}
	}

	var list []string
	if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
		if list == nil {
			list = []string{}
		}
		return stringList{Values: list}
	}

	var single string
	if err := json.Unmarshal([]byte(trimmed), &single); err == nil {
		return stringList{Values: []string{single}, Fallback: true}
	}

	return stringList{Values: []string{raw}, Fallback: true}
}
