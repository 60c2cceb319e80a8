package utils

import "strings"

// Mask irreversibly shortens a secret for logging: it keeps a short prefix
// and suffix and replaces the middle with asterisks. Values too short to
// expose anything safely come back fully masked.
//
// Example:
//
//	utils.Mask("sk-proj-abcdef123456") // "sk-p…3456" style, never the middle
func Mask(secret string) string {
	const keep = 4
	s := strings.TrimSpace(secret)
	if s == "" {
		return ""
	}
	if len(s) <= keep*2 {
		return strings.Repeat("*", len(s))
	}
	return s[:keep] + strings.Repeat("*", 4) + s[len(s)-keep:]
}
