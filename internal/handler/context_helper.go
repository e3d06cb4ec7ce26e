package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/acadhub/curricula-api/internal/middleware"
	"github.com/acadhub/curricula-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

const contextEntityTypeKey = "entityType"

// EntityType pins the entity type for a route group. Courses and
// degrees share handlers; the group they are mounted under decides
// which kind the request addresses.
func EntityType(segment string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextEntityTypeKey, segment)
		c.Next()
	}
}

// entityKindFromParam maps a route segment to an entity kind.
func entityKindFromParam(raw string) (models.EntityKind, bool) {
	switch raw {
	case "courses":
		return models.EntityKindCourse, true
	case "degrees":
		return models.EntityKindDegree, true
	default:
		return "", false
	}
}

func entityKindFromContext(c *gin.Context) (models.EntityKind, bool) {
	return entityKindFromParam(c.GetString(contextEntityTypeKey))
}
