// Package redact centralizes the sensitive-substring scrubbing applied to
// any string that may reach a chat channel or a model observation: absolute
// filesystem paths and long bearer-like tokens.
package redact

import "regexp"

var (
	// absPathRe matches Unix-style absolute paths of at least two segments.
	absPathRe = regexp.MustCompile(`(?:^|[\s"'` + "`" + `])(/[A-Za-z0-9_.\-]+(?:/[A-Za-z0-9_.\-]+)+)`)
	// bearerLikeRe matches runs of 20+ token-looking characters (alnum, -, _, .)
	// that look like API keys, JWTs, or bearer tokens.
	bearerLikeRe = regexp.MustCompile(`\b[A-Za-z0-9_\-\.]{20,}\b`)
)

// String scrubs absolute paths and bearer-like tokens from s, replacing
// them with fixed placeholders so redaction is detectable but uninformative.
func String(s string) string {
	s = absPathRe.ReplaceAllStringFunc(s, func(m string) string {
		// keep any leading delimiter captured by the non-greedy prefix
		for i, r := range m {
			if r == '/' {
				return m[:i] + "[redacted-path]"
			}
		}
		return "[redacted-path]"
	})
	s = bearerLikeRe.ReplaceAllString(s, "[redacted-token]")
	return s
}

// Error scrubs err's message the same way String does, returning a plain
// string (never an error) since the result is meant for user-facing surfaces.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
