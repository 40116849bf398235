package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/realtime"
)

// feedFeature is the permission a resource's push channel requires. Empty
// means any care team member may listen.
var feedFeature = map[string]domain.Feature{
	realtime.ResourceLogs:          domain.FeatureViewLogs,
	realtime.ResourceMessages:      domain.FeatureViewMessages,
	realtime.ResourceNotifications: "",
}

// Feed godoc
// @ID          feed
// @Summary     Live row changes for a child
// @Description Upgrades to a websocket streaming insert/update events of one resource.
// @Description Browsers may pass the token as access_token since they cannot set headers.
// @Tags        Realtime
// @Security    BearerAuth
// @Param       id            path   string  true   "Child ID"
// @Param       resource      query  string  true   "logs, messages or notifications"
// @Param       access_token  query  string  false  "Bearer token for browsers"
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /children/{id}/feed/ws [get]
func (h *Handlers) Feed(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	resource := c.Query("resource")
	if !realtime.ValidResource(resource) {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "resource: must be logs, messages or notifications")
		return
	}
	ctx := c.Request.Context()
	childID := c.Param("id")

	if _, err := h.Children.Get(ctx, a, childID); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	if f := feedFeature[resource]; f != "" && h.Permissions != nil {
		allowed, err := h.Permissions.Check(ctx, a, f)
		if err != nil {
			serviceError(c, err, ErrCodeInternal)
			return
		}
		if !allowed {
			fail(c, http.StatusForbidden, ErrCodeForbidden, "your role cannot use "+string(f))
			return
		}
	}

	if err := h.Deps.Feed.Serve(c.Writer, c.Request, realtime.Topic(resource, childID), realtime.ForRecipient(a.UserID)); err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "realtime feed unavailable")
	}
}
