package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// Session attaches the bearer token's actor to the context when the token is valid.
// It never aborts; handlers decide what an anonymous caller may do.
func Session(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			tokenStr := strings.TrimSpace(authz[len("bearer "):])
			if actor, err := Parse(tokenStr, signingKey, issuer); err == nil {
				c.Set(actorKey, actor)
			}
		}
		c.Next()
	}
}

// RequireActor aborts with 401 when Session found no valid actor.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ActorFrom(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// ActorFrom returns the request's actor, or nil for anonymous callers.
func ActorFrom(c *gin.Context) *Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, ok := v.(Actor)
	if !ok {
		return nil
	}
	return &actor
}
