package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/services"
)

// SetRoleRequest is the onboarding payload.
type SetRoleRequest struct {
	Role domain.Role `json:"role" binding:"required" example:"teacher"`
}

// CreateChildRequest is the payload for adding a child.
type CreateChildRequest struct {
	Name string `json:"name" binding:"required" example:"Mia"`
	// DateOfBirth is YYYY-MM-DD.
	DateOfBirth string   `json:"date_of_birth,omitempty" example:"2022-03-14"`
	Allergies   []string `json:"allergies,omitempty"`
	Medications []string `json:"medications,omitempty"`
}

// AddMemberRequest grants a teacher or doctor access to a child.
type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required" example:"u-teacher"`
}

// ChildrenResponse lists the children visible to the caller.
type ChildrenResponse struct {
	Children []domain.Child `json:"children"`
}

// CareTeamResponse lists a child's care team.
type CareTeamResponse struct {
	Members []domain.CareTeamMember `json:"members"`
}

// Me godoc
// @ID          getMe
// @Summary     Current profile
// @Description Returns the caller's profile, creating it from the token claims on first use.
// @Tags        Profile
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.Profile
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	p, err := h.Profiles.Me(c.Request.Context(), a)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Display profile of another user
// @Description Returns name and role of a user, used to label pushed rows. The email is withheld.
// @Tags        Profile
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "User ID"
// @Success     200  {object}  domain.Profile
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /profiles/{id} [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	p, err := h.Profiles.Public(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}

// SetRole godoc
// @ID          setRole
// @Summary     Choose a role during onboarding
// @Description Sets the caller's role once. Admin cannot be self-assigned.
// @Tags        Profile
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.SetRoleRequest  true  "Role"
// @Success     200   {object}  domain.Profile
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "Role already set"
// @Router      /me/role [put]
func (h *Handlers) SetRole(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "role required")
		return
	}
	p, err := h.Profiles.SetRole(c.Request.Context(), a, req.Role)
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, p)
}

// CreateChild godoc
// @ID          createChild
// @Summary     Add a child
// @Description Adds a child owned by the calling parent. Supports Idempotency-Key.
// @Tags        Children
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                       false  "Retry key"
// @Param       body             body      handlers.CreateChildRequest  true   "Child"
// @Success     201              {object}  domain.Child
// @Failure     400              {object}  handlers.ErrorResponse
// @Failure     403              {object}  handlers.ErrorResponse
// @Router      /children [post]
func (h *Handlers) CreateChild(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	if h.replayed(c, a, func(id string) (any, error) { return h.Children.Get(ctx, a, id) }) {
		return
	}

	var req CreateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	in := services.ChildInput{Name: req.Name, Allergies: req.Allergies, Medications: req.Medications}
	if dob := strings.TrimSpace(req.DateOfBirth); dob != "" {
		t, err := time.Parse("2006-01-02", dob)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeValidation, "date_of_birth: must be YYYY-MM-DD")
			return
		}
		in.DateOfBirth = &t
	}

	child, err := h.Children.Create(ctx, a, in)
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	h.remember(c, a, child.ID)
	ok(c, http.StatusCreated, child)
}

// ListChildren godoc
// @ID          listChildren
// @Summary     Children visible to the caller
// @Tags        Children
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ChildrenResponse
// @Router      /children [get]
func (h *Handlers) ListChildren(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	items, err := h.Children.List(c.Request.Context(), a)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.Child{}
	}
	ok(c, http.StatusOK, ChildrenResponse{Children: items})
}

// GetChild godoc
// @ID          getChild
// @Summary     One child
// @Tags        Children
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Child ID"
// @Success     200  {object}  domain.Child
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /children/{id} [get]
func (h *Handlers) GetChild(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	child, err := h.Children.Get(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, child)
}

// AddCareTeamMember godoc
// @ID          addCareTeamMember
// @Summary     Grant a teacher or doctor access
// @Description Only the owning parent may add members.
// @Tags        Children
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                     true  "Child ID"
// @Param       body  body      handlers.AddMemberRequest  true  "Member"
// @Success     201   {object}  domain.CareTeamMember
// @Failure     403   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse  "Unknown child or profile"
// @Router      /children/{id}/care-team [post]
func (h *Handlers) AddCareTeamMember(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id required")
		return
	}
	m, err := h.Children.AddMember(c.Request.Context(), a, c.Param("id"), req.UserID)
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, m)
}

// ListCareTeam godoc
// @ID          listCareTeam
// @Summary     A child's care team
// @Tags        Children
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Child ID"
// @Success     200  {object}  handlers.CareTeamResponse
// @Router      /children/{id}/care-team [get]
func (h *Handlers) ListCareTeam(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	members, err := h.Children.Team(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, CareTeamResponse{Members: members})
}
