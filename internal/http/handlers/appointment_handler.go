package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/services"
)

// CreateAppointmentRequest schedules a meeting about a child.
type CreateAppointmentRequest struct {
	Title          string             `json:"title" binding:"required" example:"Speech check-in"`
	Description    string             `json:"description,omitempty"`
	StartsAt       time.Time          `json:"starts_at" binding:"required" example:"2026-05-04T09:00:00Z"`
	EndsAt         time.Time          `json:"ends_at" binding:"required" example:"2026-05-04T09:30:00Z"`
	Location       string             `json:"location,omitempty" example:"Room 2"`
	MeetingType    domain.MeetingType `json:"meeting_type,omitempty" example:"video"`
	ParticipantIDs []string           `json:"participant_ids,omitempty"`
}

// RespondRequest carries a participant's answer.
type RespondRequest struct {
	Status domain.ResponseStatus `json:"status" binding:"required" example:"accepted"`
}

// AppointmentsResponse lists appointments.
type AppointmentsResponse struct {
	Appointments []domain.Appointment `json:"appointments"`
}

// ListAppointments godoc
// @ID          listAppointments
// @Summary     Appointments for a child
// @Description Ordered by start time. from (RFC 3339) hides earlier meetings.
// @Tags        Appointments
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string  true   "Child ID"
// @Param       from  query     string  false  "Earliest start (RFC 3339)"
// @Success     200   {object}  handlers.AppointmentsResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /children/{id}/appointments [get]
func (h *Handlers) ListAppointments(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	var from time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeValidation, "from: must be RFC 3339")
			return
		}
		from = t
	}
	items, err := h.Appointments.List(c.Request.Context(), a, c.Param("id"), from)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.Appointment{}
	}
	ok(c, http.StatusOK, AppointmentsResponse{Appointments: items})
}

// CreateAppointment godoc
// @ID          createAppointment
// @Summary     Schedule an appointment
// @Description Participants must be on the care team; each is invited by email and notified.
// @Tags        Appointments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      string                             true   "Child ID"
// @Param       Idempotency-Key  header    string                             false  "Retry key"
// @Param       body             body      handlers.CreateAppointmentRequest  true   "Appointment"
// @Success     201              {object}  domain.Appointment
// @Failure     400              {object}  handlers.ErrorResponse
// @Failure     403              {object}  handlers.ErrorResponse
// @Router      /children/{id}/appointments [post]
func (h *Handlers) CreateAppointment(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	var req CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title, starts_at and ends_at required")
		return
	}
	appt, err := h.Appointments.Create(c.Request.Context(), a, c.Param("id"), services.AppointmentInput{
		Title:          req.Title,
		Description:    req.Description,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		Location:       req.Location,
		MeetingType:    req.MeetingType,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, appt)
}

// RespondAppointment godoc
// @ID          respondAppointment
// @Summary     Accept or decline an appointment
// @Tags        Appointments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                   true  "Appointment ID"
// @Param       body  body      handlers.RespondRequest  true  "Answer"
// @Success     200   {object}  domain.Appointment
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse  "Not a participant"
// @Router      /appointments/{id}/respond [post]
func (h *Handlers) RespondAppointment(c *gin.Context) {
	a, found := actor(c)
	if !found {
		return
	}
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	appt, err := h.Appointments.Respond(c.Request.Context(), a, c.Param("id"), req.Status)
	if err != nil {
		serviceError(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, appt)
}
