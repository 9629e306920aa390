package auth

import (
	"chat-delivery/domain"
	"chat-delivery/errors"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"

	internalKeyHeader = "X-Internal-Key"
)

// RequireUser rejects requests without a valid Bearer token and exposes the
// user to the handlers through the gin context.
func RequireUser(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := tokens.ValidateToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    errors.CodeUnauthenticated,
				"message": err.Error(),
			})
			return
		}
		c.Set(string(UserIDKey), userID)
		c.Next()
	}
}

// RequireInternalKey guards the endpoints called by the CRUD layer.
func RequireInternalKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(internalKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    errors.CodeUnauthenticated,
				"message": "invalid internal key",
			})
			return
		}
		c.Next()
	}
}

// UserIDFrom returns the user set by RequireUser.
func UserIDFrom(c *gin.Context) domain.UserID {
	return c.MustGet(string(UserIDKey)).(domain.UserID)
}
