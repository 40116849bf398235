// Message HTTP handlers.
//
// Each child has one message room shared by its care team:
//   - POST /children/{id}/messages   (append a message)
//   - GET  /children/{id}/messages   (paginated, oldest first, ETag)
//
// Handlers stay transport-thin: bind, cap the payload at the edge, delegate
// to MessageService. Content normalization lives in the service so pushed
// rows and stored rows are identical.
package handlers

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// PostMessageRequest is the JSON payload for sending a message.
type PostMessageRequest struct {
	Content string `json:"content" binding:"required,min=1" example:"Mia napped for two hours today"`
	// ClientRef correlates the pushed row with the sender's placeholder.
	ClientRef string `json:"client_ref,omitempty" example:"temp-1000"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// maxContentRunes asks the service for its configured cap, falling back to
// 4000 when it does not expose one.
func maxContentRunes(svc MessageService) int {
	if m, ok := svc.(interface{ MaxRunes() int }); ok && m.MaxRunes() > 0 {
		return m.MaxRunes()
	}
	return 4000
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message to a child's room
// @Description Appends a message, pushes it on messages-{id} and notifies the care team.
// @Description Supports idempotency via the Idempotency-Key header (same key, same row).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Retry key"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true   "Child ID"
// @Param       body             body    handlers.PostMessageRequest  true  "Message"
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not on the care team"
// @Failure     404  {object}  handlers.ErrorResponse  "Child not found"
// @Router      /children/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	if h.replayed(c, a, func(id string) (any, error) { return h.Messages.Get(ctx, a, id) }) {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	if limit := maxContentRunes(h.Messages); utf8.RuneCountInString(req.Content) > limit*2 {
		// Far over the cap; the service would reject it after sanitizing anyway.
		fail(c, http.StatusBadRequest, ErrCodeValidation, fmt.Sprintf("content: max %d characters", limit))
		return
	}

	m, err := h.Messages.Send(ctx, a, c.Param("id"), req.Content, req.ClientRef)
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	h.remember(c, a, m.ID)
	ok(c, http.StatusCreated, m)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a child's room
// @Description Returns a page of messages, oldest first.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Child ID"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Child not found"
// @Router      /children/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	childID := c.Param("id")
	page, pageSize := clampPagination(c)

	items, total, err := h.Messages.ListPage(ctx, a, childID, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	if count, newest, err := h.Messages.Stats(ctx, childID); err == nil {
		if notModified(c, "messages", childID, page, pageSize, count, newest) {
			return
		}
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items, Pagination: newPagination(page, pageSize, total)})
}
