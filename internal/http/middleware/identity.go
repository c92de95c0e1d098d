// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. The service trusts the X-User-ID
// header as a stand-in for an external identity provider; the value is
// stored under the "userID" context key so logging, idempotency and rate
// limiting can key on it. Whether the id names a real account is decided
// later by the handlers.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the caller identity.
const HeaderUserID = "X-User-ID"

const ctxKeyUserID = "userID"

// maxUserIDLen bounds what is accepted from the header.
const maxUserIDLen = 64

// Identity stashes the trimmed X-User-ID header in the Gin context. Oversized
// values are ignored.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" && len(id) <= maxUserIDLen {
			c.Set(ctxKeyUserID, id)
		}
		c.Next()
	}
}

// UserID returns the identity stashed by Identity, or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
