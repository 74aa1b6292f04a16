// Package extract recovers a single JSON object from free-form model output.
//
// Local models frequently wrap their JSON in prose or markdown fences, so
// the extractor takes the greedy span from the first '{' to the last '}'
// and parses that. The greedy span is deliberate: it tolerates surrounding
// text without a tokenizer, at the cost of over-capturing when the model
// emits several sequential objects. Do not "fix" this with a balanced-brace
// scan; retry behavior downstream depends on the current failure mode.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// snippetLen bounds how much of the raw response a ParseError carries.
const snippetLen = 200

// ParseError reports that a response could not be reduced to a JSON object.
// Snippet holds the leading portion of the raw text for diagnostics.
type ParseError struct {
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (raw snippet: %q)", e.Reason, e.Snippet)
}

// ExtractObject parses exactly one JSON object out of s.
//
// The candidate span runs from the first '{' to the last '}'. If no such
// span exists the whole string is tried as-is. Any failure is returned as
// a *ParseError; the function never returns a partial object.
func ExtractObject(s string) (map[string]any, error) {
	if s == "" {
		return nil, &ParseError{Reason: "empty model response"}
	}

	candidate := s
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		candidate = s[start : end+1]
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, &ParseError{
			Reason:  fmt.Sprintf("JSON parse failed: %v", err),
			Snippet: snippet(s),
		}
	}
	return obj, nil
}

func snippet(s string) string {
	if len(s) > snippetLen {
		return s[:snippetLen]
	}
	return s
}
