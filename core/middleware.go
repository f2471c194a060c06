package core

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const identityContextKey = "identity"
const bearerPrefix = "Bearer "

// AuthGate intercepts every request before route handlers run. It extracts
// the bearer token, verifies it, and either attaches the resolved identity
// to the request or short-circuits with 401. Evaluation is pure in-memory
// work over the token and the server secret; the gate never blocks.
//
// Public routes pass through without a token; when a valid token is present
// anyway the identity is attached for whoever cares.
func AuthGate(codec *TokenCodec, policy *AccessPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		public := policy.IsPublic(c.Request.Method, c.Request.URL.Path)

		if !ok {
			if public {
				c.Next()
				return
			}
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		identity, err := codec.Verify(token, time.Now())
		if err != nil {
			if public {
				c.Next()
				return
			}
			// Malformed, forged, and expired all look the same to the caller.
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// bearerToken strips the bearer scheme from an Authorization header value.
func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// CurrentIdentity returns the authenticated identity the gate attached to
// this request, if any.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// CORSMiddleware sets CORS headers for the configured origins and answers
// preflight requests. Credentials are allowed and the Authorization header
// is exposed so browser clients can read issued tokens.
func CORSMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := allowed[strings.ToLower(origin)]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Expose-Headers", "Authorization")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}
