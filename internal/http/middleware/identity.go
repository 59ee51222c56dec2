// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the mailbox owner for every API request. Authentication
// happens upstream (gateway or mail client proxy); the triage API only trusts
// the X-User-Email header it forwards and partitions all data by it.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mail-triage/internal/mailaddr"
)

// HeaderUserEmail carries the mailbox owner address.
const HeaderUserEmail = "X-User-Email"

// ctxKeyUser is the Gin context key holding the normalized owner address.
const ctxKeyUser = "userEmail"

// Identity requires a syntactically valid X-User-Email header. The normalized
// address is stored in the context (see UserEmail) and the request-scoped
// logger is rebuilt so downstream logs carry the masked user.
//
// Missing or malformed identities are rejected with 401 and the standard
// error envelope.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserEmail))
		if raw == "" || !mailaddr.Valid(raw) {
			msg := "missing " + HeaderUserEmail + " header"
			if raw != "" {
				msg = "invalid " + HeaderUserEmail + " header"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "unauthorized",
				"message":    msg,
			})
			return
		}
		c.Set(ctxKeyUser, mailaddr.Normalize(raw))
		attachLogger(c)
		c.Next()
	}
}

// UserEmail returns the owner address resolved by Identity, or "".
func UserEmail(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUser); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// MaskEmail keeps the first rune of the local part and the domain:
// "alice@example.com" becomes "a***@example.com".
func MaskEmail(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	local := []rune(addr[:at])
	return string(local[0]) + "***" + addr[at:]
}
