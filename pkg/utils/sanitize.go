package utils

import (
	"regexp"
	"strings"
)

// --- Slug Sanitization ---
var invalidSlugChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F\s]`) // Characters unsafe in file names
var consecutiveUnderscores = regexp.MustCompile(`_+`)
var repeatedSpace = regexp.MustCompile(`\s+`)

const maxSlugLength = 200

// SanitizeSlug cleans a slug so it can be used verbatim as a cache or image file name.
// Well-formed slugs (lowercase, digits, dashes) pass through unchanged.
func SanitizeSlug(slug string) string {
	sanitized := invalidSlugChars.ReplaceAllString(slug, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_. ")

	if len(sanitized) > maxSlugLength {
		sanitized = strings.Trim(sanitized[:maxSlugLength], "_. ")
	}
	return sanitized
}

// CollapseSpace trims s and collapses internal whitespace runs to a single space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(repeatedSpace.ReplaceAllString(s, " "))
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
