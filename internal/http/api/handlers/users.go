package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"azkaban/internal/apierr"
	"azkaban/internal/directory"
	"azkaban/internal/models"
)

// UserHandler manages user directory endpoints.
type UserHandler struct {
	directory *directory.Directory
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(d *directory.Directory) *UserHandler {
	return &UserHandler{directory: d}
}

// Me returns the caller's own directory record.
func (h *UserHandler) Me(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		Error(c, apierr.New(apierr.KindUnauthenticated, "user not authenticated"))
		return
	}
	user, found := h.directory.GetBySubject(c.Request.Context(), claims.SubjectID)
	if !found {
		Error(c, apierr.New(apierr.KindNotFound, "user not found"))
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

// Sync upserts the caller's directory record from their identity claims.
func (h *UserHandler) Sync(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		Error(c, apierr.New(apierr.KindUnauthenticated, "user not authenticated"))
		return
	}
	user, errSync := h.directory.Sync(c.Request.Context(), claims.SubjectID, claims.Email, claims.Name, claims.Picture)
	if errSync != nil {
		Error(c, errSync)
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

// List returns directory users. Admin only; an optional search term filters
// on email and name.
func (h *UserHandler) List(c *gin.Context) {
	var (
		search = strings.TrimSpace(c.Query("search"))
		offset = parseIntQuery(c, "offset", 0)
		limit  = parseIntQuery(c, "limit", 100)
	)
	users := h.directory.List(c.Request.Context(), offset, limit, search)
	items := make([]gin.H, 0, len(users))
	for i := range users {
		items = append(items, userJSON(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"users": items,
		"count": len(items),
	})
}

// setStatusRequest defines the request body for activation changes.
type setStatusRequest struct {
	Active *bool `json:"active"`
}

// SetStatus updates a user's active flag. Admin only.
func (h *UserHandler) SetStatus(c *gin.Context) {
	var body setStatusRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Active == nil {
		Error(c, apierr.New(apierr.KindValidation, "missing active flag"))
		return
	}
	user, errSet := h.directory.SetActive(c.Request.Context(), c.Param("id"), *body.Active)
	if errSet != nil {
		Error(c, errSet)
		return
	}
	if user == nil {
		Error(c, apierr.New(apierr.KindNotFound, "user not found"))
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

// setRoleRequest defines the request body for role changes.
type setRoleRequest struct {
	Role string `json:"role"`
}

// SetRole updates a user's role. Admin only.
func (h *UserHandler) SetRole(c *gin.Context) {
	var body setRoleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		Error(c, apierr.New(apierr.KindValidation, "invalid json"))
		return
	}
	user, errSet := h.directory.SetRole(c.Request.Context(), c.Param("id"), strings.TrimSpace(body.Role))
	if errSet != nil {
		Error(c, errSet)
		return
	}
	if user == nil {
		Error(c, apierr.New(apierr.KindNotFound, "user not found"))
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

// Roles lists the assignable roles.
func (h *UserHandler) Roles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"roles": []string{models.RoleAdmin, models.RoleUser},
	})
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, errParse := strconv.Atoi(raw)
	if errParse != nil || value < 0 {
		return fallback
	}
	return value
}
