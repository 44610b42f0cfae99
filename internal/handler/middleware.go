package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "username"

// TokenVerifier resolves a bearer token to a username. The real verifier
// lives at the auth edge; this service only consumes its result.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// PassthroughVerifier treats the token itself as the username. Meant for
// deployments where a fronting proxy has already authenticated the caller,
// and for local development.
type PassthroughVerifier struct{}

func (PassthroughVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

// Identity extracts the caller's username from the Authorization header and
// stores it in the request context. With disabled=true the X-Username
// header wins, defaulting to "dev".
func Identity(verifier TokenVerifier, disabled bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if disabled {
			username := c.GetHeader("X-Username")
			if username == "" {
				username = "dev"
			}
			c.Set(identityKey, username)
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response{
				Code:    http.StatusUnauthorized,
				Message: "missing bearer token",
			})
			return
		}
		username, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Warn("token verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, response{
				Code:    http.StatusUnauthorized,
				Message: "invalid token",
			})
			return
		}
		c.Set(identityKey, username)
		c.Next()
	}
}

func username(c *gin.Context) string {
	return c.GetString(identityKey)
}

// CORS allows browser clients on other origins; the stream endpoint and the
// mini-app frontend are served elsewhere.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Username")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
