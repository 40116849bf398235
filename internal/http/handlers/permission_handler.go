package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/services"
)

// PermissionsResponse is the caller's view of the matrix.
type PermissionsResponse struct {
	Role     domain.Role             `json:"role" example:"teacher"`
	Features map[domain.Feature]bool `json:"features"`
}

// CheckResponse answers one feature check.
type CheckResponse struct {
	Feature domain.Feature `json:"feature" example:"view_logs"`
	Allowed bool           `json:"allowed"`
}

// UpdatePermissionsRequest is an admin edit of the matrix.
type UpdatePermissionsRequest struct {
	Changes []services.PermissionChange `json:"changes" binding:"required"`
}

// MatrixResponse is the full matrix.
type MatrixResponse struct {
	Permissions []domain.RolePermission `json:"permissions"`
}

// MyPermissions godoc
// @ID          myPermissions
// @Summary     Features the caller's role may use
// @Tags        Permissions
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.PermissionsResponse
// @Router      /permissions [get]
func (h *Handlers) MyPermissions(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	m, err := h.Permissions.Mine(c.Request.Context(), a)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, PermissionsResponse{Role: a.Role, Features: m})
}

// CheckPermission godoc
// @ID          checkPermission
// @Summary     Check one feature
// @Tags        Permissions
// @Produce     json
// @Security    BearerAuth
// @Param       feature  query     string  true  "Feature"
// @Success     200      {object}  handlers.CheckResponse
// @Failure     400      {object}  handlers.ErrorResponse
// @Router      /permissions/check [get]
func (h *Handlers) CheckPermission(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	f := domain.Feature(c.Query("feature"))
	allowed, err := h.Permissions.Check(c.Request.Context(), a, f)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, CheckResponse{Feature: f, Allowed: allowed})
}

// UpdatePermissions godoc
// @ID          updatePermissions
// @Summary     Edit the permission matrix
// @Description Admin only. Edited roles are evicted from the permission cache.
// @Tags        Permissions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.UpdatePermissionsRequest  true  "Changes"
// @Success     200   {object}  handlers.MatrixResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     403   {object}  handlers.ErrorResponse
// @Router      /admin/permissions [put]
func (h *Handlers) UpdatePermissions(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	var req UpdatePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "changes required")
		return
	}
	rows, err := h.Permissions.Update(c.Request.Context(), a, req.Changes)
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, MatrixResponse{Permissions: rows})
}
