package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope prefixes used across the workflow. Workers mark their
// deliverables with these sentinels; the supervisor scans for them to detect
// completion.
const (
	AnalysisPrefix = "ANALYSIS:"
	StrategyPrefix = "STRATEGY:"
	DataPrefix     = "DATA:"
)

// BuildEnvelope serializes payload as JSON and prepends the given prefix,
// producing content like "STRATEGY: {...}". The result round-trips through
// ExtractEnvelope.
func BuildEnvelope(prefix string, payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("build envelope %q: %w", prefix, err)
	}
	return prefix + " " + string(b), nil
}

// ExtractEnvelope finds the first occurrence of prefix in text and decodes
// the JSON object that follows it. It returns false when the prefix is
// absent, no object follows it, or the object does not parse; callers treat
// that as "no payload" and keep whatever they already had.
func ExtractEnvelope(text, prefix string) (map[string]any, bool) {
	idx := strings.Index(text, prefix)
	if idx < 0 {
		return nil, false
	}
	rest := text[idx+len(prefix):]
	start := strings.IndexByte(rest, '{')
	if start < 0 {
		return nil, false
	}
	obj, ok := balancedObject(rest[start:])
	if !ok {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, false
	}
	return payload, true
}

// balancedObject returns the shortest prefix of s that forms a
// brace-balanced JSON object, honoring string literals and escapes.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
