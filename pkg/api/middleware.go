package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// securityHeaders sets standard security response headers on every
// response, generalizing the teacher's echo securityHeaders middleware
// to gin.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// authRequired enforces spec.md §4.7's bearer/API-key auth on every
// non-health endpoint: Authorization: Bearer <token> or X-Api-Key:
// <token> must equal the configured process token. An empty process
// token fails closed — every request is rejected, never waved through.
func authRequired(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		presented := c.GetHeader("X-Api-Key")
		if presented == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				presented = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if presented == "" || presented != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
