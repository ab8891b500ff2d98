package server

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
)

type OriginChecker struct {
	allowedOrigins []string
	allowAll       bool
}

// NewOriginChecker accepts the given origins. "*" accepts any origin and an
// empty list accepts only origins matching the request host.
func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	normalized := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
		if origin != "" {
			normalized = append(normalized, origin)
		}
	}

	return &OriginChecker{
		allowedOrigins: normalized,
		allowAll:       slices.Contains(normalized, "*"),
	}
}

func (c *OriginChecker) Check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if c.allowAll {
		return true
	}

	if len(c.allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}

		return strings.EqualFold(u.Host, r.Host)
	}

	return slices.Contains(c.allowedOrigins, strings.TrimRight(strings.ToLower(origin), "/"))
}
