// Package privacy provides URL hygiene for dwell: sensitive query-parameter
// redaction and the user's domain exclusion list. Everything persisted or
// sent to the summarization collaborator passes through here first.
package privacy

import (
	"net/url"
	"strings"
)

// RedactedValue replaces the value of a sensitive query parameter.
const RedactedValue = "redacted"

// sensitiveParams are query-parameter names whose values are never stored.
// Matched case-insensitively as substrings, so "api_key" and "sessionid"
// are both caught.
var sensitiveParams = []string{
	"token",
	"key",
	"secret",
	"password",
	"passwd",
	"auth",
	"session",
	"sid",
	"credential",
	"signature",
}

// RedactURL strips fragments and replaces sensitive query-parameter values.
// Unparseable URLs are returned unchanged; the tracker and engine drop those
// on their own terms.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		changed := false
		for name := range q {
			if isSensitiveParam(name) {
				q.Set(name, RedactedValue)
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}

	return u.String()
}

func isSensitiveParam(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveParams {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Exclusions is a user-configured set of domains that the tracker and the
// history mirror skip entirely. A listed domain also excludes its subdomains.
type Exclusions struct {
	domains map[string]struct{}
}

// NewExclusions builds an exclusion set from configured domain names.
func NewExclusions(domains []string) *Exclusions {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return &Exclusions{domains: set}
}

// Excluded reports whether a domain (or any parent of it) is excluded.
func (e *Exclusions) Excluded(domain string) bool {
	if e == nil || len(e.domains) == 0 {
		return false
	}
	domain = strings.ToLower(domain)
	for {
		if _, ok := e.domains[domain]; ok {
			return true
		}
		i := strings.IndexByte(domain, '.')
		if i < 0 {
			return false
		}
		domain = domain[i+1:]
	}
}
