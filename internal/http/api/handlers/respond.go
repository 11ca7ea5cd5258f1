// Package handlers implements the HTTP endpoints behind the gate chain.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"azkaban/internal/apierr"
	"azkaban/internal/identity"
	"azkaban/internal/models"
	"azkaban/internal/partners"
)

// Context keys set by the route middleware.
const (
	// ContextClaims holds the identity.Claims of the authenticated caller.
	ContextClaims = "authClaims"
	// ContextAdmin holds the *models.User admin record on admin routes.
	ContextAdmin = "adminUser"
)

// Error writes the response for a failed operation. Typed rejections carry
// their own status; upstream failures map to 502; anything else is a 500
// with a generic message so internals never leak.
func Error(c *gin.Context, err error) {
	if typed, ok := apierr.As(err); ok {
		c.JSON(typed.Status(), gin.H{"error": typed.Message})
		return
	}
	var upstream *partners.UpstreamError
	if errors.As(err, &upstream) {
		log.WithError(err).Warn("api: upstream failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": upstream.Error()})
		return
	}
	log.WithError(err).Error("api: internal error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// AbortError is Error for middleware: it also stops the handler chain.
func AbortError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// CurrentClaims returns the authenticated caller's claims.
func CurrentClaims(c *gin.Context) (identity.Claims, bool) {
	value, exists := c.Get(ContextClaims)
	if !exists {
		return identity.Claims{}, false
	}
	claims, ok := value.(identity.Claims)
	return claims, ok
}

// userJSON shapes a user record for responses. The identity provider subject
// id stays internal.
func userJSON(user *models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"picture":    user.Picture,
		"role":       user.Role,
		"active":     user.Active,
		"created_at": user.CreatedAt,
		"last_login": user.LastLogin,
	}
}
