package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dispatch/internal/relay"
)

// ContextKeyCourierID is the gin context key carrying the
// authenticated courier's ID.
const ContextKeyCourierID = "courierID"

// CourierAuthMiddleware returns middleware that requires a courier
// bearer token and stores the courier ID in the request context.
func CourierAuthMiddleware(auth *relay.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		identity, err := auth.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if identity.Role != relay.RoleCourier {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "courier role required"})
			return
		}

		c.Set(ContextKeyCourierID, identity.ID)
		c.Next()
	}
}

// CourierID returns the authenticated courier ID from the context.
func CourierID(c *gin.Context) string {
	return c.GetString(ContextKeyCourierID)
}
