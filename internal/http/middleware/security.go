package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultHSTSMaxAge = 180 * 24 * time.Hour
	exposeHeadersKey  = "Access-Control-Expose-Headers"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// HSTS sends Strict-Transport-Security on HTTPS requests only.
	HSTS       bool
	HSTSMaxAge time.Duration
	// NoStore disables caching for every response. Leave it off when
	// handlers revalidate with ETags.
	NoStore bool
	// LockdownPolicy denies browser features the API never needs.
	LockdownPolicy bool
	// ExposeHeaders are made readable to browser clients next to
	// X-Request-ID.
	ExposeHeaders []string
}

// SecurityHeaders stamps the fixed hardening headers of a JSON API and
// merges the exposed header list into whatever CORS already set.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	fixed := http.Header{}
	fixed.Set("X-Content-Type-Options", "nosniff")
	fixed.Set("X-Frame-Options", "DENY")
	fixed.Set("Referrer-Policy", "no-referrer")
	fixed.Set("Cross-Origin-Resource-Policy", "same-site")
	if opt.LockdownPolicy {
		fixed.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
		fixed.Set("X-Permitted-Cross-Domain-Policies", "none")
	}
	if opt.NoStore {
		fixed.Set("Cache-Control", "no-store")
		fixed.Set("Pragma", "no-cache")
	}

	var hsts string
	if opt.HSTS {
		age := opt.HSTSMaxAge
		if age <= 0 {
			age = defaultHSTSMaxAge
		}
		hsts = "max-age=" + strconv.FormatInt(int64(age/time.Second), 10) + "; includeSubDomains"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range fixed {
			h[k] = v
		}
		if hsts != "" && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		names := opt.ExposeHeaders
		if h.Get(requestIDHeader) != "" {
			names = append([]string{requestIDHeader}, names...)
		}
		if merged := mergeTokens(h.Get(exposeHeadersKey), names); merged != "" {
			h.Set(exposeHeadersKey, merged)
		}
		c.Next()
	}
}

// mergeTokens appends names to a comma-separated header value, skipping
// names already present (case-insensitive).
func mergeTokens(cur string, names []string) string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range strings.Split(cur, ",") {
		if tok = strings.TrimSpace(tok); tok != "" && !seen[strings.ToLower(tok)] {
			seen[strings.ToLower(tok)] = true
			out = append(out, tok)
		}
	}
	for _, n := range names {
		if !seen[strings.ToLower(n)] {
			seen[strings.ToLower(n)] = true
			out = append(out, n)
		}
	}
	return strings.Join(out, ", ")
}

// isHTTPS trusts X-Forwarded-Proto from the fronting proxy.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
