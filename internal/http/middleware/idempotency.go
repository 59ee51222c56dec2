package middleware

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key on rule mutations.
const HeaderIdempotencyKey = "Idempotency-Key"

// DefaultIdempotencyKeyLen caps keys when IdempotencyOptions.MaxLen is unset.
const DefaultIdempotencyKeyLen = 200

// defaultKeyPattern accepts token characters plus ':' so keys like
// "rules:2024-05-01:7" work.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether a stored response exists for this mailbox, route
// template and key. Handlers serve the stored body instead of mutating again.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions tunes key validation. Expiry belongs to the lookup.
type IdempotencyOptions struct {
	MaxLen  int            // <= 0 means DefaultIdempotencyKeyLen
	Pattern *regexp.Regexp // nil means ^[A-Za-z0-9._~\-:]+$
}

// IdempotencyLookup reports whether a still-valid response is stored for
// (userEmail, route, key) at now. route is the gin route template, so one key
// may be reused across endpoints. Errors are logged and treated as a miss.
type IdempotencyLookup func(ctx context.Context, userEmail, route, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator checks Idempotency-Key on unsafe methods and marks
// replays. Safe methods ignore the header. A malformed key is rejected with
// 400 before the handler runs. Mount it after Identity: replays are scoped to
// the mailbox, so the lookup is skipped for anonymous requests.
//
// On a replay the request is also flagged so the rate limiter lets it through.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultIdempotencyKeyLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		var problem string
		switch {
		case len(key) > maxLen:
			problem = fmt.Sprintf("Idempotency-Key exceeds %d characters", maxLen)
		case !pat.MatchString(key):
			problem = "Idempotency-Key contains invalid characters"
		}
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":       "bad_idempotency_key",
				"message":    problem,
				"request_id": RequestIDFrom(c),
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		user := UserEmail(c)
		if lookup == nil || user == "" {
			c.Next()
			return
		}
		exists, err := lookup(c.Request.Context(), user, c.FullPath(), key, time.Now().UTC())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Str("route", c.FullPath()).Msg("idempotency lookup failed")
		}
		if exists && err == nil {
			httpReplays.WithLabelValues(routeLabel(c)).Inc()
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
