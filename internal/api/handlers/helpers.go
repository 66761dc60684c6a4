package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"greendrake/r1/internal/api/middleware"
	"greendrake/r1/internal/utils"
)

// currentUserID extracts the authenticated user's ID set by AuthMiddleware.
func currentUserID(c *gin.Context) (utils.SixID, error) {
	raw, exists := c.Get(middleware.ContextKeyUserID)
	if !exists {
		return utils.SixID{}, fmt.Errorf("no authenticated user in context")
	}
	idStr, ok := raw.(string)
	if !ok {
		return utils.SixID{}, fmt.Errorf("unexpected user ID type in context")
	}
	return utils.ParseSixID(idStr)
}

// isStaff reports whether AuthMiddleware marked the caller as staff.
func isStaff(c *gin.Context) bool {
	raw, exists := c.Get(middleware.ContextKeyIsStaff)
	if !exists {
		return false
	}
	staff, ok := raw.(bool)
	return ok && staff
}
