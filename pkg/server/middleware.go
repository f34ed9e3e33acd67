package server

import (
	"fmt"
	"net/http"

	"github.com/go-training/clickup-mcp/pkg/core"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowHeaders  = "Mcp-Protocol-Version, Mcp-Session-Id, Authorization, Content-Type"
	corsAllowMethods  = "GET, POST, DELETE, OPTIONS"
	corsExposeHeaders = "Mcp-Session-Id, WWW-Authenticate, X-Request-Id"
)

// corsMiddleware allows browser-based MCP clients to reach every route.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		c.Header("Access-Control-Expose-Headers", corsExposeHeaders)
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// sessionAuthMiddleware rejects requests without a bearer session id and
// tells the client where to sign in.
func (s *Server) sessionAuthMiddleware(c *gin.Context) {
	if core.SessionIDFromRequest(c.Request) == "" {
		c.Header("WWW-Authenticate", fmt.Sprintf(
			`Bearer resource_metadata=%q, authorization_uri=%q`,
			s.cfg.BaseURL+protectedResourcePath,
			s.AuthorizeURL(),
		))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":             "unauthorized",
			"error_description": "sign in at " + s.AuthorizeURL() + " and send the session id as a bearer token",
		})
		return
	}
	c.Next()
}

// rateLimitMiddleware limits requests per client IP.
func rateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// requestIDMiddleware attaches a request id to the request context and echoes it back.
func requestIDMiddleware(c *gin.Context) {
	ctx := core.WithRequestID(c.Request.Context())
	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Request-Id", core.RequestIDFromContext(ctx))
	c.Next()
}
