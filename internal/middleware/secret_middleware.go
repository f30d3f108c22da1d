// internal/middleware/secret_middleware.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"chargecast-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// SharedSecret guards the session lifecycle and scheduler endpoints with
// a single pre-shared secret, accepted either as a bearer token or in the
// X-Relay-Secret header. Comparison is constant time.
func SharedSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			response.Unauthorized(c, "relay secret not configured")
			return
		}

		presented := c.GetHeader("X-Relay-Secret")
		if presented == "" {
			auth := c.GetHeader("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				presented = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			response.Unauthorized(c, "invalid or missing relay secret")
			return
		}
		c.Next()
	}
}
