package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/services"
)

// UpdateNotificationRequest is the only accepted PATCH body. Read is
// one-way, so anything other than {"read": true} is rejected.
type UpdateNotificationRequest struct {
	Read *bool `json:"read" binding:"required" example:"true"`
}

// ListNotificationsResponse is a page of the caller's notifications.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

// UnreadCountResponse carries the badge count.
type UnreadCountResponse struct {
	Unread int64 `json:"unread" example:"3"`
}

// ReadAllResponse reports how many notifications changed.
type ReadAllResponse struct {
	Updated int64 `json:"updated" example:"3"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     Caller's notifications
// @Description Newest first, optionally limited to one child.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       child_id   query     string  false  "Child ID"
// @Param       page       query     int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query     int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200        {object}  handlers.ListNotificationsResponse
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.Notifications.ListPage(c.Request.Context(), a, c.Query("child_id"), page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: items, Pagination: newPagination(page, pageSize, total)})
}

// UnreadCount godoc
// @ID          unreadCount
// @Summary     Number of unread notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UnreadCountResponse
// @Router      /notifications/unread-count [get]
func (h *Handlers) UnreadCount(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	n, err := h.Notifications.UnreadCount(c.Request.Context(), a)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{Unread: n})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark one notification read
// @Description Only {"read": true} is accepted. Repeating it returns 200 with the row.
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                              true  "Notification ID"
// @Param       body  body      handlers.UpdateNotificationRequest  true  "Patch"
// @Success     200   {object}  domain.Notification
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /notifications/{id} [patch]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	var req UpdateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Read == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "read required")
		return
	}
	if !*req.Read {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "read: notifications cannot be marked unread")
		return
	}
	n, err := h.Notifications.MarkRead(c.Request.Context(), a, c.Param("id"))
	if errors.Is(err, services.ErrAlreadyRead) && n != nil {
		// Retried PATCHes converge on the same state.
		ok(c, http.StatusOK, n)
		return
	}
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, n)
}

// MarkAllNotificationsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark every notification read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ReadAllResponse
// @Router      /notifications/read-all [post]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), a)
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, ReadAllResponse{Updated: n})
}
