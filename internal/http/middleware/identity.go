// README: Identity middleware; trusts an already-verified actor identity handed down by the edge.
package middleware

import "github.com/gin-gonic/gin"

const (
	ctxActorID   = "actor_id"
	ctxActorRole = "actor_role"
)

// Identity copies the pre-verified actor headers into the request context.
// Verification itself happens at the edge (API gateway); this service only
// consumes the result.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxActorID, c.GetHeader("X-Actor-Id"))
		c.Set(ctxActorRole, c.GetHeader("X-Actor-Role"))
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxActorID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxActorRole)
}
