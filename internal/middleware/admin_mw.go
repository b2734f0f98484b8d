package middleware

import (
	"net/http"

	"lot_registry/internal/model"

	"github.com/gin-gonic/gin"
)

// AdminMiddleware rejects requests whose actor is not an administrator
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorVal, exists := c.Get(AuthActorKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Actor not found in context, ensure JWT middleware runs first"})
			return
		}

		actor, ok := actorVal.(model.Actor)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid actor type in context"})
			return
		}

		if !actor.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
			return
		}

		c.Next()
	}
}
