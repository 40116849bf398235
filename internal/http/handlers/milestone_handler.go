package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/services"
)

// UpdateMilestoneRequest sets a child's progress on one milestone.
type UpdateMilestoneRequest struct {
	Status domain.MilestoneState `json:"status" binding:"required" example:"achieved"`
	Notes  string                `json:"notes,omitempty" example:"First steps at the park"`
}

// MilestoneCatalogResponse is the catalog.
type MilestoneCatalogResponse struct {
	Milestones []domain.Milestone `json:"milestones"`
}

// MilestoneProgressResponse merges the catalog with a child's progress.
type MilestoneProgressResponse struct {
	Milestones []services.MilestoneProgress `json:"milestones"`
}

// MilestoneCatalog godoc
// @ID          milestoneCatalog
// @Summary     Developmental milestone catalog
// @Tags        Milestones
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MilestoneCatalogResponse
// @Router      /milestones [get]
func (h *Handlers) MilestoneCatalog(c *gin.Context) {
	items, err := h.Milestones.Catalog(c.Request.Context())
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, MilestoneCatalogResponse{Milestones: items})
}

// MilestoneProgress godoc
// @ID          milestoneProgress
// @Summary     A child's milestone progress
// @Tags        Milestones
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Child ID"
// @Success     200  {object}  handlers.MilestoneProgressResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /children/{id}/milestones [get]
func (h *Handlers) MilestoneProgress(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	items, err := h.Milestones.Progress(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, MilestoneProgressResponse{Milestones: items})
}

// UpdateMilestone godoc
// @ID          updateMilestone
// @Summary     Set milestone progress
// @Description Upserts the status and notes. Milestones have no push feed; clients refetch the progress list.
// @Tags        Milestones
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id         path      string                           true  "Child ID"
// @Param       milestone  path      string                           true  "Milestone ID"
// @Param       body       body      handlers.UpdateMilestoneRequest  true  "Progress"
// @Success     200        {object}  domain.MilestoneStatus
// @Failure     400        {object}  handlers.ErrorResponse
// @Failure     404        {object}  handlers.ErrorResponse
// @Router      /children/{id}/milestones/{milestone} [put]
func (h *Handlers) UpdateMilestone(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	var req UpdateMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	st, err := h.Milestones.Update(c.Request.Context(), a, c.Param("id"), c.Param("milestone"), req.Status, req.Notes)
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, st)
}
