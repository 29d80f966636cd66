// Package privacy scrubs credentials and identifiers from text that leaves
// the process: log fields, error reports and telemetry.
package privacy

import (
	"net/url"
	"regexp"
)

// Pre-compiled patterns, ScrubMessage runs on every reported error.
var (
	urlQueryPattern = regexp.MustCompile(`((?:https?|tcp|ssl|tls|wss?|mqtts?)://[^?\s]+)\?\S*`)
	userInfoPattern = regexp.MustCompile(`((?:https?|tcp|ssl|tls|wss?|mqtts?)://)[^@/\s]+@`)
	secretPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)password[=:]\S+`),
		regexp.MustCompile(`(?i)token[=:]\S+`),
		regexp.MustCompile(`(?i)device[_-]?id[=:]\S+`),
		regexp.MustCompile(`[0-9a-fA-F]{32,}`),
	}
)

// ScrubMessage removes URL credentials, query strings, key=value secrets and
// long hex identifiers from message.
func ScrubMessage(message string) string {
	scrubbed := urlQueryPattern.ReplaceAllString(message, "$1?[REDACTED]")
	scrubbed = userInfoPattern.ReplaceAllString(scrubbed, "$1[REDACTED]@")
	for _, p := range secretPatterns {
		scrubbed = p.ReplaceAllString(scrubbed, "[REDACTED]")
	}
	return scrubbed
}

// SanitizeURL reduces a URL to scheme://host[:port] for display.
// Credentials, path and query are dropped. Input that does not parse as an
// absolute URL is scrubbed as free text instead.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ScrubMessage(raw)
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}

// scrubbedError reports a scrubbed message and unwraps to the raw error.
type scrubbedError struct {
	err error
	msg string
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }

// WrapError scrubs the message of err for logs and reports while keeping
// errors.Is and errors.As on the original chain. A nil err stays nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &scrubbedError{err: err, msg: ScrubMessage(err.Error())}
}
