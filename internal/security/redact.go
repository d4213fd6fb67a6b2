// Package security masks credentials before they reach logs, errors or output.
package security

import (
	"net/url"
	"regexp"
	"strings"
)

// sensitivePatterns find credentials embedded in free text such as a
// transport error that quotes the request URL.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(token|access_token|auth_token|api_?key|key|secret|password|passphrase)=([^&\s"']+)`),
	regexp.MustCompile(`(?i)\b(bearer)\s+([A-Za-z0-9_\-\.=]+)`),
	regexp.MustCompile(`([a-z][a-z0-9+.\-]*://[^:/@\s]+):([^@\s]+)@`),
}

// MaskCredential keeps just enough of value to tell two credentials apart.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks every credential found in s.
func Redact(s string) string {
	for i, pattern := range sensitivePatterns {
		if i == len(sensitivePatterns)-1 {
			s = pattern.ReplaceAllString(s, "$1:***@")
			continue
		}
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			groups := pattern.FindStringSubmatch(match)
			sep := match[len(groups[1]) : len(match)-len(groups[2])]
			return groups[1] + sep + MaskCredential(groups[2])
		})
	}
	return s
}

// RedactURL masks the userinfo password and sensitive query values of raw.
// Unparseable input falls back to Redact.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return Redact(raw)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	u.RawQuery = Redact(u.RawQuery)
	out := u.String()
	// url.String escapes the mask characters in userinfo.
	return strings.Replace(out, ":%2A%2A%2A@", ":***@", 1)
}

type redactedError struct {
	err error
	msg string
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// RedactError returns err with credentials masked in its message. The
// original stays reachable through errors.Is and errors.As.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	masked := Redact(msg)
	if masked == msg {
		return err
	}
	return &redactedError{err: err, msg: masked}
}
