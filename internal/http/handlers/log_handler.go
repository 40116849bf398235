// Timeline HTTP handlers.
//
//   - GET  /children/{id}/logs              (paginated, newest first, ETag)
//   - POST /children/{id}/logs              (create, Idempotency-Key aware)
//   - GET  /children/{id}/logs/search       (keyword search)
//   - GET  /children/{id}/logs/export       (xlsx download)
//   - POST /children/{id}/documents         (multipart file -> log)
//   - POST /children/{id}/voice-notes       (multipart audio -> transcribed log)
package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/export"
	"github.com/parentrak/parentrak-backend/internal/search"
	"github.com/parentrak/parentrak-backend/internal/services"
	"github.com/parentrak/parentrak-backend/internal/utils"
)

// CreateLogRequest is the payload for a new timeline entry.
type CreateLogRequest struct {
	Title       string `json:"title" binding:"required" example:"Lunch"`
	Description string `json:"description" example:"Ate all her pasta and was happy"`
	AudioURL    string `json:"audio_url,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
	// ClientRef is echoed on the pushed row so the sender can reconcile its
	// optimistic placeholder.
	ClientRef string `json:"client_ref,omitempty" example:"temp-1718000000000"`
}

// ListLogsResponse is a page of the timeline.
type ListLogsResponse struct {
	Logs       []domain.LogEntry `json:"logs"`
	Pagination Pagination        `json:"pagination"`
}

// SearchLogsResponse holds ranked search hits.
type SearchLogsResponse struct {
	Results []search.Result `json:"results"`
}

// ListLogs godoc
// @ID          listLogs
// @Summary     Timeline of a child
// @Description Newest first. Supports a weak ETag via If-None-Match.
// @Tags        Logs
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Child ID"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListLogsResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /children/{id}/logs [get]
func (h *Handlers) ListLogs(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	childID := c.Param("id")
	page, pageSize := clampPagination(c)

	items, total, err := h.Logs.ListPage(ctx, a, childID, page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	// Access is checked above, so the ETag never leaks another child's state.
	if count, newest, err := h.Logs.Stats(ctx, childID); err == nil {
		if notModified(c, "logs", childID, page, pageSize, count, newest) {
			return
		}
	}
	ok(c, http.StatusOK, ListLogsResponse{Logs: items, Pagination: newPagination(page, pageSize, total)})
}

// CreateLog godoc
// @ID          createLog
// @Summary     Add a timeline entry
// @Description Derives tags and mood, pushes the row on logs-{id} and notifies the care team.
// @Tags        Logs
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      string                     true   "Child ID"
// @Param       Idempotency-Key  header    string                     false  "Retry key"
// @Param       body             body      handlers.CreateLogRequest  true   "Entry"
// @Success     201              {object}  domain.LogEntry
// @Failure     400              {object}  handlers.ErrorResponse
// @Failure     403              {object}  handlers.ErrorResponse
// @Router      /children/{id}/logs [post]
func (h *Handlers) CreateLog(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	if h.replayed(c, a, func(id string) (any, error) { return h.Logs.Get(ctx, a, id) }) {
		return
	}
	var req CreateLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required")
		return
	}
	e, err := h.Logs.Create(ctx, a, c.Param("id"), services.LogInput{
		Title:       req.Title,
		Description: req.Description,
		AudioURL:    req.AudioURL,
		DocumentURL: req.DocumentURL,
		ClientRef:   req.ClientRef,
	})
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	h.remember(c, a, e.ID)
	ok(c, http.StatusCreated, e)
}

// SearchLogs godoc
// @ID          searchLogs
// @Summary     Keyword search over the timeline
// @Tags        Logs
// @Produce     json
// @Security    BearerAuth
// @Param       id     path      string  true   "Child ID"
// @Param       q      query     string  true   "Query"
// @Param       limit  query     int     false  "Max hits"  minimum(1) maximum(50) default(10)
// @Success     200    {object}  handlers.SearchLogsResponse
// @Failure     400    {object}  handlers.ErrorResponse
// @Router      /children/{id}/logs/search [get]
func (h *Handlers) SearchLogs(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "q: required")
		return
	}
	limit := utils.QueryInt(c.Query("limit"), 10, 1, 50)
	res, err := h.Logs.Search(c.Request.Context(), a, c.Param("id"), q, limit)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, SearchLogsResponse{Results: res})
}

// ExportLogs godoc
// @ID          exportLogs
// @Summary     Download the timeline as a spreadsheet
// @Tags        Logs
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security    BearerAuth
// @Param       id   path  string  true  "Child ID"
// @Success     200  {file}    file
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /children/{id}/logs/export [get]
func (h *Handlers) ExportLogs(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	name, body, err := h.Logs.Export(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeExportFailed)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, export.ContentType, body)
}

// UploadDocument godoc
// @ID          uploadDocument
// @Summary     Attach a document to the timeline
// @Description Stores the file and creates a log pointing at it.
// @Tags        Logs
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       id           path      string  true   "Child ID"
// @Param       file         formData  file    true   "Document"
// @Param       title        formData  string  false  "Title"
// @Param       description  formData  string  false  "Description"
// @Param       client_ref   formData  string  false  "Client correlation id"
// @Success     201          {object}  domain.LogEntry
// @Failure     400          {object}  handlers.ErrorResponse
// @Failure     413          {object}  handlers.ErrorResponse
// @Router      /children/{id}/documents [post]
func (h *Handlers) UploadDocument(c *gin.Context) {
	h.upload(c, "file", h.Logs.AttachDocument)
}

// UploadVoiceNote godoc
// @ID          uploadVoiceNote
// @Summary     Record a voice note
// @Description Stores the audio, transcribes it when the AI service is up and creates a log.
// @Tags        Logs
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       id          path      string  true   "Child ID"
// @Param       audio       formData  file    true   "Audio"
// @Param       title       formData  string  false  "Title"
// @Param       client_ref  formData  string  false  "Client correlation id"
// @Success     201         {object}  domain.LogEntry
// @Failure     400         {object}  handlers.ErrorResponse
// @Failure     413         {object}  handlers.ErrorResponse
// @Router      /children/{id}/voice-notes [post]
func (h *Handlers) UploadVoiceNote(c *gin.Context) {
	h.upload(c, "audio", h.Logs.AddVoiceNote)
}

type uploadFunc func(ctx context.Context, a services.Actor, childID string, up services.Upload) (*domain.LogEntry, error)

// upload reads one multipart file from field and hands it to create.
func (h *Handlers) upload(c *gin.Context, field string, create uploadFunc) {
	a, found := actor(c)
	if !found {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+(1<<20))

	fh, err := c.FormFile(field)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "upload too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, field+": file required")
		return
	}
	if fh.Size > h.MaxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "upload too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload")
		return
	}
	defer f.Close()

	e, err := create(c.Request.Context(), a, c.Param("id"), services.Upload{
		Filename:    fh.Filename,
		ContentType: contentTypeOf(fh),
		Body:        f,
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		ClientRef:   c.PostForm("client_ref"),
	})
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, e)
}

func contentTypeOf(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
