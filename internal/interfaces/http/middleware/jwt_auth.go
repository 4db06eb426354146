// Package middleware provides the gin middleware chain of the sessiond API.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// extractBearer extracts the token from the Authorization header.
func extractBearer(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// RequirePrincipal verifies the caller's principal token and stashes the
// principal id in both gin and request contexts. Principal tokens are minted
// by the account platform with a shared HMAC secret; they identify the human
// owner, not the delegated session.
func RequirePrincipal(secret string, issuer string, log logger.Logger) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		tokenStr := extractBearer(c.Request.Header.Get("Authorization"))
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    constants.ErrCodeUnauthorized,
				"message": "missing bearer token",
			})
			return
		}

		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
		if issuer != "" {
			opts = append(opts, jwt.WithIssuer(issuer))
		}
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return key, nil
		}, opts...)
		if err != nil || !token.Valid {
			log.Warn(c.Request.Context(), "principal token verification failed",
				logger.Any("error", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    constants.ErrCodeUnauthorized,
				"message": "invalid principal token",
			})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    constants.ErrCodeUnauthorized,
				"message": "invalid token claims",
			})
			return
		}
		principalID, _ := claims["sub"].(string)
		if principalID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    constants.ErrCodeUnauthorized,
				"message": "token has no subject",
			})
			return
		}

		c.Set(string(constants.ContextKeyPrincipalID), principalID)
		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyPrincipalID, principalID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// PrincipalFromContext returns the authenticated principal id, if any.
func PrincipalFromContext(c *gin.Context) string {
	if v, ok := c.Get(string(constants.ContextKeyPrincipalID)); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
