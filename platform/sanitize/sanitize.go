// Package sanitize provides text sanitization utilities for inbound
// free-text content (webhook payload fields, conversation messages).
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// htmlTagRegex matches HTML tags
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML removes all HTML tags from a string, making it safe for text-only storage.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text sanitizes a string for safe text storage by stripping HTML
// and trimming whitespace. Use for source-provided text fields.
func Text(s string) string {
	return StripHTML(s)
}

// Message sanitizes an inbound conversation message before it is handed to
// rule matching or the extractor: control characters are removed (newlines
// and tabs kept) and the result is truncated to maxLen.
func Message(s string, maxLen int) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sb.WriteRune(r)
	}
	result := strings.TrimSpace(sb.String())
	if maxLen > 0 && len(result) > maxLen {
		result = result[:maxLen]
	}
	return result
}
