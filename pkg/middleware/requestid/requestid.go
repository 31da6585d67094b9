// Package requestid tags every request with a correlation ID. The ID rides
// the X-Request-ID header both ways, so a support ticket quoting the header
// can be matched to the server logs.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// Header is the request/response header carrying the correlation ID.
const Header = "X-Request-ID"

const contextKey = "request_id"

// Middleware adopts the caller's X-Request-ID when present, otherwise mints
// a random one, and echoes it on the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = newID()
		}

		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)

		c.Next()
	}
}

// Value returns the request's correlation ID, or empty outside the
// middleware.
func Value(c *gin.Context) string {
	if v, ok := c.Get(contextKey); ok {
		if id, isStr := v.(string); isStr {
			return id
		}
	}
	return ""
}

func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// The timestamp fallback keeps the request traceable even when the
		// entropy source misbehaves.
		return fmt.Sprintf("t-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
