package middleware

import (
	"net/http"
	"strings"

	"lot_registry/internal/model"
	"lot_registry/internal/utils"

	"github.com/gin-gonic/gin"
)

const (
	// AuthActorKey is the gin context key holding the authenticated actor.
	AuthActorKey = "authActor"
)

// JWTAuthMiddleware creates a middleware for JWT authentication. It places
// the actor record {id, is_admin} in the request context for every
// downstream permission check.
func JWTAuthMiddleware(jwtUtil *utils.JWTUtil) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		tokenString := parts[1]
		claims, err := jwtUtil.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		// Set actor information in context
		c.Set(AuthActorKey, model.Actor{ID: claims.UserID, IsAdmin: claims.IsAdmin})

		c.Next()
	}
}
