// Package jsonrecover extracts JSON from VLM responses that are possibly
// fence-wrapped, dict-wrapped, or truncated mid-object (spec §4.5, C4).
package jsonrecover

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnparseable is returned when every recovery strategy fails to produce
// valid JSON ("VLM-unparseable" per spec §4.5).
var ErrUnparseable = errors.New("jsonrecover: VLM output unparseable")

// wrapperKeys are the dict keys checked, in order, when the payload is an
// object wrapping the array the caller actually wants.
var wrapperKeys = []string{"symbols", "data"}

// Parse recovers a JSON value (object, array, or scalar) from raw model
// output. It tries, in order: fence-stripped direct parse, truncation
// recovery (trim to the last balanced '}', close a trailing array), and
// dict-unwrap of a "symbols"/"data" key.
func Parse(raw string) (any, error) {
	stripped := stripFences(raw)

	if v, err := directParse(stripped); err == nil {
		return unwrapIfNeeded(v), nil
	}

	if recovered, ok := recoverTruncated(stripped); ok {
		if v, err := directParse(recovered); err == nil {
			return unwrapIfNeeded(v), nil
		}
	}

	return nil, ErrUnparseable
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimPrefix(s, "JSON")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func directParse(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// recoverTruncated trims s to the last balanced '}' and, if the original
// payload looks array-shaped (begins with '['), strips a trailing comma and
// closes the array with ']'.
func recoverTruncated(s string) (string, bool) {
	lastBrace := strings.LastIndexByte(s, '}')
	if lastBrace < 0 {
		return "", false
	}
	prefix := s[:lastBrace+1]

	trimmedOriginal := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmedOriginal, "[") {
		// Not array-shaped: the trimmed prefix through the last '}' is the
		// best recovery we can offer for a bare object.
		return prefix, true
	}

	body := strings.TrimRight(prefix, " \t\r\n")
	body = strings.TrimSuffix(body, ",")
	if !strings.HasPrefix(strings.TrimSpace(body), "[") {
		body = "[" + body
	}
	return body + "]", true
}

// unwrapIfNeeded unwraps a dict payload keyed by "symbols" or "data" into
// its inner array/value, leaving arrays and other objects untouched.
func unwrapIfNeeded(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for _, key := range wrapperKeys {
		if inner, ok := m[key]; ok {
			return inner
		}
	}
	return v
}
