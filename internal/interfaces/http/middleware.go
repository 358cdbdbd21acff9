package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jinwill/docflow/internal/application/engine"
)

// AuthConfig holds token settings
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// Claims represents the JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

const actorKey = "actor"

// GenerateToken generates a new JWT token for a user
func GenerateToken(userID, role string, cfg AuthConfig) (string, time.Time, error) {
	expiresAt := time.Now().Add(cfg.TokenTTL)

	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// AuthMiddleware validates the bearer token and stores the acting user
func AuthMiddleware(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(actorKey, engine.Actor{ID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

// AdminOnly rejects non-admin callers. Must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentActor(c).IsAdmin() {
			c.JSON(http.StatusForbidden, Response{Success: false, Error: "administrator role required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// currentActor gets the acting user from context
func currentActor(c *gin.Context) engine.Actor {
	if v, exists := c.Get(actorKey); exists {
		if actor, ok := v.(engine.Actor); ok {
			return actor
		}
	}
	return engine.Actor{}
}
