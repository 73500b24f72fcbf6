package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Actor roles supplied by the session layer.
const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
	RoleInternal = "internal"
)

const (
	ctxActorID = "actor_id"
	ctxRole    = "role"
)

// Actor is the authenticated identity attached to every call.
type Actor struct {
	ID   string
	Role string
}

// ParseToken validates a bearer token and extracts the actor claims.
// Shared by the HTTP middleware and the websocket upgrade path.
func ParseToken(secret, tokenString string) (Actor, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Actor{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Actor{}, jwt.ErrTokenInvalidClaims
	}

	actor := Actor{}
	if sub, ok := claims["sub"].(string); ok {
		actor.ID = sub
	}
	if role, ok := claims["role"].(string); ok {
		actor.Role = role
	}
	if actor.ID == "" || actor.Role == "" {
		return Actor{}, jwt.ErrTokenInvalidClaims
	}
	return actor, nil
}

// Middleware authenticates requests with a bearer token and stores the
// actor in the gin context.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		actor, err := ParseToken(secret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxActorID, actor.ID)
		c.Set(ctxRole, actor.Role)
		c.Next()
	}
}

// RequireRole rejects requests whose actor has none of the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := FromContext(c)
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// FromContext returns the actor stored by Middleware.
func FromContext(c *gin.Context) Actor {
	return Actor{
		ID:   c.GetString(ctxActorID),
		Role: c.GetString(ctxRole),
	}
}
