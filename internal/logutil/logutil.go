package logutil

import (
	"net/url"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization":
		return true
	case normalized == "code":
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "session"):
		return true
	case strings.Contains(normalized, "auth"):
		return true
	default:
		return false
	}
}

// RedactURLForLog redacts userinfo and sensitive query values from a URL.
// Unparseable input is returned as-is.
func RedactURLForLog(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" && u.User == nil {
		return raw
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	if u.RawQuery != "" {
		query := u.Query()
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			for _, v := range query[k] {
				if IsSensitiveLogField(k) {
					v = "[REDACTED]"
				}
				parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}
	return u.String()
}

var textOnly = bluemonday.StrictPolicy()

// PageTextForLog strips all markup from an HTML snapshot and collapses
// whitespace, truncated to maxChars.
func PageTextForLog(html string, maxChars int) string {
	text := textOnly.Sanitize(html)
	return TruncateForLog(strings.Join(strings.Fields(text), " "), maxChars)
}

// TruncateForLog returns a single-line truncated preview for unstructured values.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	// Cut on a rune boundary so multi-byte text stays valid UTF-8.
	n := 0
	for i := range normalized {
		if n == maxChars {
			return normalized[:i] + "... [truncated]"
		}
		n++
	}
	return normalized
}
