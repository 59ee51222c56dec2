package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxQueryLogLength caps the logged query string.
const maxQueryLogLength = 512

const redacted = "[REDACTED]"

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits and separators only, so hex ids are left alone.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// alwaysMasked headers never reach the log in any form.
var alwaysMasked = []string{"authorization", "cookie", "set-cookie", "proxy-authorization"}

// redactPII masks addresses with MaskEmail, keeping the sender domain that
// triage decisions hinge on, and blanks phone numbers.
func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = emailRE.ReplaceAllStringFunc(s, MaskEmail)
	return phoneRE.ReplaceAllString(s, "[phone]")
}

// truncate cuts s to n bytes plus an ellipsis. n <= 0 disables the cap.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// RedactOptions adds header names (case-insensitive) whose values are
// replaced wholesale, on top of the credential headers.
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger writes one "http_request" line per request after the
// handler chain finishes. Bodies are never logged. Addresses in the path,
// query and headers are masked; unmatched paths are logged scrubbed since
// they may embed a rule key. Level follows the status: info, warn for 4xx,
// error for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := make(map[string]struct{}, len(alwaysMasked)+len(opts.MaskHeaders))
	for _, h := range alwaysMasked {
		masked[h] = struct{}{}
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = redactPII(c.Request.URL.Path)
		}
		query := truncate(redactPII(c.Request.URL.RawQuery), maxQueryLogLength)
		headers := scrubHeaders(c, masked)

		c.Next()

		status := c.Writer.Status()
		ev := accessEvent(status)
		if u := UserEmail(c); u != "" {
			ev = ev.Str("user", MaskEmail(u))
		}
		if IsReplay(c) {
			ev = ev.Bool("replay", true)
		}
		rid := RequestIDFrom(c)
		if rid == "" {
			rid = c.Writer.Header().Get(requestIDHeader)
		}
		ev.Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", route).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

func accessEvent(status int) *zerolog.Event {
	switch {
	case status >= 500:
		return log.Error()
	case status >= 400:
		return log.Warn()
	default:
		return log.Info()
	}
}

func scrubHeaders(c *gin.Context, masked map[string]struct{}) map[string]string {
	out := make(map[string]string, len(c.Request.Header))
	for k, vv := range c.Request.Header {
		if _, ok := masked[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = redactPII(strings.Join(vv, ", "))
	}
	return out
}
