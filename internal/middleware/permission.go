package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/MoainAlabbasi/telegram-archive-bot/internal/service"
	appErrors "github.com/MoainAlabbasi/telegram-archive-bot/pkg/errors"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/response"
)

// RequirePermission guards a route behind one permission key. The admin flag
// bypasses role lookup inside HasPermission.
func RequirePermission(permSvc *service.PermissionService, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		granted, err := permSvc.HasPermission(c.Request.Context(), identity.UserID, key)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !granted {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin restricts a route to accounts with the admin flag.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !identity.IsAdmin {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
