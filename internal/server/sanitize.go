package server

import (
	"regexp"
	"strings"
)

// Patterns scrubbed from error text before it leaves the process.
var (
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`),
		regexp.MustCompile(`(?i)token\s*[:=]\s*\S+`),
		regexp.MustCompile(`(?i)secret\s*[:=]\s*\S+`),
		regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*\S+`),
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://\S+`),
		regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(:\d+)?\b`),
		regexp.MustCompile(`(^|\s)[/\\][a-zA-Z0-9_\-./\\]+`),
	}

	stackTracePatterns = []*regexp.Regexp{
		regexp.MustCompile(`goroutine \d+`),
		regexp.MustCompile(`\S+\.go:\d+`),
		regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`),
	}

	whitespace = regexp.MustCompile(`\s+`)
)

// SanitizeError returns err's message with credentials, addresses, paths
// and stack fragments removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString scrubs s the same way as SanitizeError.
func SanitizeString(s string) string {
	if s == "" {
		return ""
	}
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, " [REDACTED]")
	}
	for _, p := range stackTracePatterns {
		s = p.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
