package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/pkg/jwt"
	"github.com/libren/support-chat/pkg/log"
	"github.com/libren/support-chat/pkg/response"
)

const identityKey = "identity"

// Auth resolves the caller's identity from a bearer token. WebSocket
// upgrades cannot set headers from the browser, so a token query
// parameter is accepted as a fallback.
func Auth(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			response.Unauthorized(c, "missing token")
			c.Abort()
			return
		}

		claims, err := manager.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set(identityKey, domain.Identity{
			UserID: claims.UserID,
			Name:   claims.Name,
			Role:   domain.Role(claims.Role),
		})
		c.Set(log.FieldUserID, claims.UserID)
		c.Next()
	}
}

// RequireLibrarian guards the librarian-only surface.
func RequireLibrarian() gin.HandlerFunc {
	return func(c *gin.Context) {
		if identityFrom(c).Role != domain.RoleLibrarian {
			response.Forbidden(c, "librarian role required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) domain.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}
	}
	return v.(domain.Identity)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
