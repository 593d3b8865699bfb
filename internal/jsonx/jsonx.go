// Package jsonx extracts JSON objects embedded in free-form model output.
package jsonx

import "encoding/json"

// FirstObject returns the first balanced, valid JSON object found in s,
// tolerating surrounding prose and markdown fences. The second return value
// is false when no valid object exists.
func FirstObject(s string) (string, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}

		candidate, ok := balancedFrom(s, start)
		if !ok {
			continue
		}
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// balancedFrom scans for the matching closing brace, honoring string
// literals and escape sequences.
func balancedFrom(s string, start int) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
