package logging

import "regexp"

// Sanitizer redacts credential-looking substrings before they reach log
// output. Agent CLIs occasionally echo environment or request headers, so
// raw payloads are never logged unsanitized.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

const redacted = "[REDACTED]"

// NewSanitizer creates a sanitizer with the default patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|authorization)(["':=\s]+)[\w\-\.+/=]{8,}`),
			regexp.MustCompile(`sk-[A-Za-z0-9\-_]{20,}`),
			regexp.MustCompile(`Bearer\s+[\w\-\.=]+`),
		},
	}
}

// Sanitize replaces credential-looking substrings with a redaction marker.
func (s *Sanitizer) Sanitize(input string) string {
	out := input
	for i, re := range s.patterns {
		if i == 0 {
			out = re.ReplaceAllString(out, "${1}${2}"+redacted)
			continue
		}
		out = re.ReplaceAllString(out, redacted)
	}
	return out
}
