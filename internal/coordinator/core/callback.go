package core

import (
	"fmt"
	"net/url"
)

// CallbackHeader is the header a worker uses to announce where a job should
// be sent if none is available right away.
const CallbackHeader = "CPEE-CALLBACK"

// ParseCallbackHeader validates the values of the callback header.
// Only the first value is considered.
func ParseCallbackHeader(values []string) (*url.URL, error) {
	if len(values) == 0 {
		return nil, ErrCallbackMissing
	}
	raw := values[0]
	if !isHeaderString(raw) {
		return nil, ErrCallbackNotAString
	}
	return ParseCallbackURL(raw)
}

// ParseCallbackURL accepts absolute URLs with a host, e.g. http://robot:9000/done.
func ParseCallbackURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallbackNotAURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute URL", ErrCallbackNotAURL, raw)
	}
	return u, nil
}

// isHeaderString reports whether s only holds visible ASCII, space and tab.
func isHeaderString(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
