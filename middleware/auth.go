package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phillip/cobudget-go/apperrors"
	"github.com/phillip/cobudget-go/config"
	"github.com/phillip/cobudget-go/models"
	"github.com/phillip/cobudget-go/services"
	"github.com/phillip/cobudget-go/utils"
)

// Authenticator resolves a session token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware attaches the session user to the request when a valid token is
// presented. Anonymous requests pass through; use RequireAuth to reject them.
func AuthMiddleware(cfg *config.Config, auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := sessionToken(c, cfg.CookieName)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			c.Abort()
			return
		}
		if token == "" {
			c.Next()
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !apperrors.Is(err, apperrors.KindUnauthenticated) {
				utils.LogError("authenticate", err, map[string]interface{}{"path": c.FullPath()})
			}
			c.Next()
			return
		}

		c.Set("user_id", user.ID.Hex())
		c.Request = c.Request.WithContext(services.WithUser(c.Request.Context(), user))
		c.Next()
	}
}

// RequireAuth rejects requests that AuthMiddleware left anonymous.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if services.UserFrom(c.Request.Context()) == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// sessionToken reads the bearer header, falling back to the session cookie.
// ok is false for a malformed Authorization header.
func sessionToken(c *gin.Context, cookieName string) (token string, ok bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	cookie, err := c.Cookie(cookieName)
	if err != nil {
		return "", true
	}
	return cookie, true
}
