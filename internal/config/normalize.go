package config

import (
	"regexp"
	"strings"
)

// AnonymousUserID is used when a sanitized user id ends up empty.
const AnonymousUserID = "anonymous"

var (
	validIDRe    = regexp.MustCompile(`^[a-z0-9][a-z0-9_.@-]{0,63}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_.@-]+`)
	leadingDash  = regexp.MustCompile(`^[-.]+`)
	trailingDash = regexp.MustCompile(`[-.]+$`)
)

// NormalizeUserID converts a user-provided id into a form that is safe to use
// as a directory name:
//   - Lowercase, max 64 chars
//   - Only [a-z0-9_.@-] allowed
//   - Invalid chars replaced with "-"
//   - Leading/trailing dashes and dots stripped
//   - Empty result defaults to "anonymous"
func NormalizeUserID(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return AnonymousUserID
	}

	lower := strings.ToLower(trimmed)
	if validIDRe.MatchString(lower) {
		return lower
	}

	// Best-effort: collapse invalid chars to "-"
	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")

	if len(result) > 64 {
		result = result[:64]
	}

	if result == "" {
		return AnonymousUserID
	}
	return result
}
