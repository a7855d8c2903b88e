package auth

import (
	"net/http"
	"strings"

	"agro-payment-svc/middleware"
	"agro-payment-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "caller_identity"

// Middleware rejects requests without a verifiable bearer credential before
// any handler logic runs.
func Middleware(verifier Verifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Missing or invalid token"})
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			logger.Warn("Token verification failed",
				zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid token"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// Identity returns the caller resolved by Middleware.
func Identity(c *gin.Context) (*models.CallerIdentity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*models.CallerIdentity)
	return identity, ok
}
