// Suggestion-output parsing. Providers are prompted to return a JSON array
// of suggestion objects; models frequently wrap that array in markdown
// fences or preamble, so extraction is tolerant about everything except the
// array itself.
package provider

import (
	"encoding/json"
	"strings"
)

// suggestionItem matches the shape providers are prompted to emit.
type suggestionItem struct {
	Message string `json:"message"`
}

// ParseSuggestions extracts the non-empty suggestion strings from raw model
// output. It accepts either a bare JSON array of {message} objects or of
// plain strings, with or without markdown fencing. It returns nil when no
// structurally valid, non-empty array can be found; the executor treats that
// as a malformed attempt.
func ParseSuggestions(raw string) []string {
	frag := extractArray(raw)
	if frag == "" {
		return nil
	}

	var items []suggestionItem
	if err := json.Unmarshal([]byte(frag), &items); err == nil {
		out := collect(len(items), func(i int) string { return items[i].Message })
		if len(out) > 0 {
			return out
		}
	}

	var plain []string
	if err := json.Unmarshal([]byte(frag), &plain); err == nil {
		out := collect(len(plain), func(i int) string { return plain[i] })
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// extractArray returns the outermost [...] fragment of s, or "".
func extractArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// collect gathers trimmed, non-empty strings by index.
func collect(n int, at func(int) string) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if v := strings.TrimSpace(at(i)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
