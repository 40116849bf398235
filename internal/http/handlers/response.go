// Package handlers implements the REST endpoints of the Parentrak API.
//
// Every error leaves through fail(), which writes the envelope
//
//	{"request_id": "...", "code": "not_found", "message": "child not found"}
//
// and logs 5xx with the request-scoped logger. Clients branch on code; the
// message is safe to show to users.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/http/middleware"
	"github.com/parentrak/parentrak-backend/internal/services"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message, safe to show to users
	Message string `json:"message" example:"child not found"`
}

// fail aborts with the error envelope. 5xx are logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// serviceError maps service errors onto the envelope. fallbackCode is used
// for unexpected errors.
func serviceError(c *gin.Context, err error, fallbackCode string) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		fail(c, http.StatusBadRequest, ErrCodeValidation, ve.Error())
	case errors.Is(err, services.ErrInvalidInput):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "you do not have access to this resource")
	case errors.Is(err, services.ErrChildNotFound),
		errors.Is(err, services.ErrLogNotFound),
		errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, services.ErrNotificationNotFound),
		errors.Is(err, services.ErrAppointmentNotFound),
		errors.Is(err, services.ErrMilestoneNotFound),
		errors.Is(err, services.ErrProfileNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrRoleAlreadySet):
		fail(c, http.StatusConflict, ErrCodeRoleAlreadySet, err.Error())
	case errors.Is(err, services.ErrAlreadyRead):
		fail(c, http.StatusConflict, ErrCodeAlreadyRead, err.Error())
	case errors.Is(err, services.ErrTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, err.Error())
	case errors.Is(err, services.ErrAIUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeAIUnavailable, "the AI service is unavailable, try again later")
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// notModified sets a weak ETag built from the requested page and the
// collection's (count, newest created_at), and reports whether the client's
// If-None-Match already matches it. Rows are append-only, so the pair
// changes whenever the list does; the page keeps each page's tag distinct.
func notModified(c *gin.Context, kind, childID string, page, pageSize int, count int64, newest *time.Time) bool {
	var ts int64
	if newest != nil {
		ts = newest.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d.%d:%d:%d"`, kind, childID, page, pageSize, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
