package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// SummaryRequest picks who the summary is written for. Empty means the
// caller's own role.
type SummaryRequest struct {
	Audience domain.Role `json:"audience,omitempty" example:"parent"`
}

// SummaryResponse carries the generated summary.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// TranslateRequest is the payload for POST /translate.
type TranslateRequest struct {
	Text           string `json:"text" binding:"required" example:"Slept well after lunch"`
	TargetLanguage string `json:"target_language" binding:"required" example:"es"`
}

// TranslateResponse carries the translation.
type TranslateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// Insights godoc
// @ID          insights
// @Summary     Insights over recent logs
// @Description Uses the AI service when available, keyword heuristics otherwise.
// @Tags        Insights
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Child ID"
// @Success     200  {object}  services.InsightResult
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /children/{id}/insights [get]
func (h *Handlers) Insights(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	res, err := h.Deps.Insights.Insights(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, res)
}

// Summary godoc
// @ID          summary
// @Summary     Summarize recent logs for an audience
// @Description Stores the result on the child. Falls back to a clipped digest of titles.
// @Tags        Insights
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                   true   "Child ID"
// @Param       body  body      handlers.SummaryRequest  false  "Audience"
// @Success     200   {object}  handlers.SummaryResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /children/{id}/summary [post]
func (h *Handlers) Summary(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	var req SummaryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body")
			return
		}
	}
	s, err := h.Deps.Insights.Summary(c.Request.Context(), a, c.Param("id"), req.Audience)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, SummaryResponse{Summary: s})
}

// Digest godoc
// @ID          digest
// @Summary     PDF digest of the timeline
// @Description from and to are YYYY-MM-DD; defaults to the last seven days.
// @Tags        Insights
// @Produce     application/pdf
// @Security    BearerAuth
// @Param       id    path      string  true   "Child ID"
// @Param       from  query     string  false  "Start date"
// @Param       to    query     string  false  "End date"
// @Success     200   {file}    file
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     503   {object}  handlers.ErrorResponse  "AI unavailable"
// @Router      /children/{id}/digest [get]
func (h *Handlers) Digest(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	from, okFrom := parseDay(c, "from")
	to, okTo := parseDay(c, "to")
	if !okFrom || !okTo {
		return
	}
	if !to.IsZero() {
		// Inclusive end day.
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	pdf, err := h.Deps.Insights.Digest(c.Request.Context(), a, c.Param("id"), from, to)
	if err != nil {
		serviceError(c, err, ErrCodeExportFailed)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="digest.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Translate godoc
// @ID          translate
// @Summary     Translate text
// @Description No fallback: returns 503 ai_unavailable when the AI service is down.
// @Tags        Insights
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.TranslateRequest  true  "Text"
// @Success     200   {object}  handlers.TranslateResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     503   {object}  handlers.ErrorResponse
// @Router      /translate [post]
func (h *Handlers) Translate(c *gin.Context) {
	if _, found := actor(c); !found {
		return
	}
	var req TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text and target_language required")
		return
	}
	out, err := h.Deps.Insights.Translate(c.Request.Context(), req.Text, req.TargetLanguage)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, TranslateResponse{TranslatedText: out})
}

func parseDay(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, name+": must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
