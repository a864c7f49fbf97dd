// Package origin validates browser Origin headers against a configured
// allowlist before a WebSocket upgrade is accepted.
package origin

import (
	"net/url"
	"strings"
)

// Allowlist holds normalized allowed origins. A single "*" entry allows
// everything; an empty Origin header (non-browser client) is always allowed.
type Allowlist struct {
	allowAll bool
	allowed  map[string]struct{}
}

func NewAllowlist(origins []string) *Allowlist {
	al := &Allowlist{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			al.allowAll = true
			continue
		}
		if normalized, ok := normalize(o); ok {
			al.allowed[normalized] = struct{}{}
		}
	}
	return al
}

// Allows reports whether a request with the given Origin header may connect.
func (al *Allowlist) Allows(originHeader string) bool {
	if strings.TrimSpace(originHeader) == "" {
		return true
	}
	if al.allowAll {
		return true
	}
	normalized, ok := normalize(originHeader)
	if !ok {
		return false
	}
	_, found := al.allowed[normalized]
	return found
}

// normalize reduces an origin to lowercase scheme://host[:port] with default
// ports stripped. Anything with userinfo, path, query or fragment is rejected.
func normalize(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return "", false
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	return scheme + "://" + host, true
}
