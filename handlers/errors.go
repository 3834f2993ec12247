package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"service_hours_backend/domain/registration"
	"service_hours_backend/middleware"
)

var statusByKind = map[registration.Kind]int{
	registration.KindValidation:  http.StatusBadRequest,
	registration.KindNotFound:    http.StatusNotFound,
	registration.KindConflict:    http.StatusConflict,
	registration.KindForbidden:   http.StatusForbidden,
	registration.KindUnavailable: http.StatusServiceUnavailable,
}

// respondError writes a business error as {"error", "code"}. Anything else is
// logged and hidden behind a 500.
func respondError(c *gin.Context, err error, action string) {
	kind, code := registration.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		log.Printf("Error %s: %v", action, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action, "code": "Internal"})
		return
	}
	if status == http.StatusServiceUnavailable {
		log.Printf("Error %s: %v", action, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func actorFrom(c *gin.Context) registration.Actor {
	return registration.Actor{
		UserID: c.GetInt64(middleware.UserIDKey),
		Role:   c.GetString(middleware.UserRoleKey),
	}
}

func idParam(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + what + " ID", "code": "InvalidID"})
		return 0, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body for requests whose fields are all
// optional.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "InvalidBody"})
		return false
	}
	return true
}
