package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collab-service/internal/identity"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

// Context keys set for downstream handlers.
const (
	ContextUserIDKey = "userID"
	ContextUserKey   = "user"
)

// AuthMiddleware validates the Authorization header against the identity
// resolver and refreshes the local user directory with the claimed identity.
func AuthMiddleware(resolver identity.Resolver, users repositories.UserRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		user, err := resolver.ResolveToken(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if err := users.UpsertUser(c.Request.Context(), user); err != nil {
			logger.Warn("user directory upsert failed", zap.Int("user_id", user.ID), zap.Error(err))
		}

		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// UserFromContext returns the authenticated user placed by AuthMiddleware.
func UserFromContext(c *gin.Context) (models.User, bool) {
	val, ok := c.Get(ContextUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
