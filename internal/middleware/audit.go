package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/acadhub/curricula-api/internal/models"
	"github.com/acadhub/curricula-api/internal/repository"
)

// Audit records an audit event after a successful request. It is used
// for coarse endpoints whose handler does not emit a finer-grained
// event itself.
func Audit(repo *repository.AuditRepository, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var actorID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			user := claims.(*models.JWTClaims)
			actorID = &user.UserID
		}

		var resourceID *string
		if id := c.Param("id"); id != "" {
			resourceID = &id
		}

		_ = repo.CreateAuditEvent(c.Request.Context(), &models.AuditEvent{
			ActorID:    actorID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
		})
	}
}
