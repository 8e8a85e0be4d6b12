package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	redacted       = "[REDACTED]"
	maxLoggedQuery = 2048
)

// RedactOptions extends the default masking of RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are masked in addition to Authorization, Cookie and
	// Set-Cookie. Matching is case-insensitive.
	MaskHeaders []string
	// MaskParams are masked in addition to access_token and token.
	MaskParams []string
	// SkipPaths are served without an access line (health checks, scrapes). The
	// request-scoped logger is still attached.
	SkipPaths []string
}

// Order matters: ids first so their digit groups never look like phones.
var piiPatterns = []struct {
	re   *regexp.Regexp
	mark string
}{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

func scrubPII(s string) string {
	for _, p := range piiPatterns {
		if s == "" {
			break
		}
		s = p.re.ReplaceAllString(s, p.mark)
	}
	return s
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

type redactor struct {
	headers map[string]bool
	params  map[string]bool
}

func newRedactor(opts RedactOptions) redactor {
	set := func(dst map[string]bool, names ...string) map[string]bool {
		for _, n := range names {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				dst[n] = true
			}
		}
		return dst
	}
	r := redactor{
		headers: set(map[string]bool{}, "authorization", "cookie", "set-cookie"),
		params:  set(map[string]bool{}, "access_token", "token"),
	}
	set(r.headers, opts.MaskHeaders...)
	set(r.params, opts.MaskParams...)
	return r
}

func (r redactor) header(h http.Header) *zerolog.Event {
	d := zerolog.Dict()
	for k, vv := range h {
		if r.headers[strings.ToLower(k)] {
			d.Str(k, redacted)
			continue
		}
		d.Str(k, scrubPII(strings.Join(vv, ", ")))
	}
	return d
}

func (r redactor) query(raw string) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return scrubPII(clip(raw, maxLoggedQuery))
	}
	for k := range q {
		if r.params[strings.ToLower(k)] {
			q[k] = []string{redacted}
		}
	}
	plain, _ := url.QueryUnescape(q.Encode())
	return scrubPII(clip(plain, maxLoggedQuery))
}

// RedactingLogger writes one access line per request and attaches a
// request-scoped logger for LoggerFrom. Bodies are never logged, so message
// content stays out of the logs. Credential headers and token parameters are
// masked; ids, emails and phone numbers in the rest are scrubbed. 4xx lines
// log at warn, 5xx and collected Gin errors at error.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	rd := newRedactor(opts)
	skip := make(map[string]bool, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		rid := RequestIDFrom(c)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}

		scoped := log.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", route).
			Logger()
		c.Set(loggerKey, &scoped)

		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		headers := rd.header(c.Request.Header)
		query := rd.query(c.Request.URL.RawQuery)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError || len(c.Errors) > 0:
			ev = scoped.Error()
		case status >= http.StatusBadRequest:
			ev = scoped.Warn()
		default:
			ev = scoped.Info()
		}
		if len(c.Errors) > 0 {
			ev.Str("errors", c.Errors.String())
		}
		ev.Str("user_id", UserID(c)).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", headers).
			Msg("http_request")
	}
}
