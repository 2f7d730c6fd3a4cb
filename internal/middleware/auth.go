package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"syncplane/internal/auth"
)

const accountIDContextKey = "accountID"

func AccountIDFromContext(c *gin.Context) (string, bool) {
	value, ok := c.Get(accountIDContextKey)
	if !ok {
		return "", false
	}
	accountID, ok := value.(string)
	return accountID, ok && accountID != ""
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's account id in the request context.
func RequireAuth(cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c)
			return
		}
		claims, err := auth.VerifyToken(token, cfg)
		if err != nil {
			unauthorized(c)
			return
		}
		c.Set(accountIDContextKey, claims.AccountID())
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
	c.Abort()
}
