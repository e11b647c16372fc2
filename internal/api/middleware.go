package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// Constants for context keys
const (
	ContextUserKey = "user"
)

// jwtClaims is the payload the identity provider signs.
type jwtClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// AuthMiddleware resolves the caller from an optional bearer token. Requests
// without an Authorization header continue as anonymous; a header carrying a
// bad token is rejected.
func AuthMiddleware(authService service.AuthService, issuer string) gin.HandlerFunc {
	jwtSecret := []byte(authService.GetJWTSecret())

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		// Expecting "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		claims := &jwtClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return jwtSecret, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortWithError(c, http.StatusUnauthorized, "Token has expired")
			} else {
				abortWithError(c, http.StatusUnauthorized, "Invalid token")
			}
			return
		}

		if !token.Valid || claims.Email == "" || claims.ExpiresAt == nil {
			abortWithError(c, http.StatusUnauthorized, "Invalid token or missing claims")
			return
		}
		if issuer != "" && !claims.VerifyIssuer(issuer, true) {
			abortWithError(c, http.StatusUnauthorized, "Invalid token issuer")
			return
		}

		user, err := authService.Resolve(c.Request.Context(), service.Identity{
			Email: claims.Email,
			Name:  claims.Name,
			Image: claims.Picture,
		})
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to resolve user", "email", claims.Email, "error", err)
			abortWithError(c, http.StatusInternalServerError, "Could not load user")
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

// RequireSignedIn rejects anonymous callers. Must run AFTER AuthMiddleware.
func RequireSignedIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			abortWithError(c, http.StatusUnauthorized, service.ErrUnauthorized.Error())
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers without the admin flag. Must run AFTER
// AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			abortWithError(c, http.StatusUnauthorized, service.ErrUnauthorized.Error())
			return
		}
		if !user.CanModerate() {
			abortWithError(c, http.StatusForbidden, service.ErrForbidden.Error())
			return
		}
		c.Next()
	}
}

// currentUser returns the resolved caller, or nil for anonymous requests.
func currentUser(c *gin.Context) *domain.User {
	raw, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	user, _ := raw.(*domain.User)
	return user
}

// viewerKey partitions cached listings by caller.
func viewerKey(c *gin.Context) string {
	if user := currentUser(c); user != nil {
		return user.ID
	}
	return "anonymous"
}
