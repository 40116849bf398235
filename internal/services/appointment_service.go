package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/email"
	"github.com/parentrak/parentrak-backend/internal/realtime"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

// Inviter sends appointment invitations.
type Inviter interface {
	Enabled() bool
	SendAppointmentInvite(ctx context.Context, inv email.Invite) error
}

// AppointmentInput is the payload for scheduling a meeting.
type AppointmentInput struct {
	Title          string
	Description    string
	StartsAt       time.Time
	EndsAt         time.Time
	Location       string
	MeetingType    domain.MeetingType
	ParticipantIDs []string
}

// AppointmentService schedules meetings about a child and records answers.
type AppointmentService struct {
	DB     *gorm.DB
	Pub    Publisher
	Mailer Inviter
	Log    zerolog.Logger
}

// Create schedules an appointment. Participants must be on the care team;
// the creator joins as accepted, everyone else starts pending, is notified
// and, when they have an email address, invited by mail.
func (s *AppointmentService) Create(ctx context.Context, a Actor, childID string, in AppointmentInput) (*domain.Appointment, error) {
	ctx, span := otel.Tracer("services/AppointmentService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("child.id", childID),
			attribute.Int("participants", len(in.ParticipantIDs)),
		))
	defer span.End()

	child, _, err := authorize(ctx, s.DB, childID, a.UserID)
	if err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.MeetingType == "" {
		in.MeetingType = domain.MeetingInPerson
	}
	switch {
	case in.Title == "":
		return nil, invalid("title", "required")
	case in.StartsAt.IsZero():
		return nil, invalid("starts_at", "required")
	case !in.EndsAt.After(in.StartsAt):
		return nil, invalid("ends_at", "must be after starts_at")
	case in.MeetingType != domain.MeetingInPerson && in.MeetingType != domain.MeetingVideo && in.MeetingType != domain.MeetingPhone:
		return nil, invalid("meeting_type", "must be in_person, video or phone")
	}

	team, err := repo.CareTeamUserIDs(ctx, s.DB, childID)
	if err != nil {
		return nil, err
	}
	onTeam := make(map[string]bool, len(team))
	for _, id := range team {
		onTeam[id] = true
	}
	now := time.Now().UTC()
	invitees := map[string]bool{}
	participants := []domain.Participant{{UserID: a.UserID, Status: domain.ResponseAccepted, RespondedAt: &now}}
	for _, id := range in.ParticipantIDs {
		id = strings.TrimSpace(id)
		if id == "" || id == a.UserID || invitees[id] {
			continue
		}
		if !onTeam[id] {
			return nil, invalid("participant_ids", fmt.Sprintf("%s is not on the care team", id))
		}
		invitees[id] = true
		participants = append(participants, domain.Participant{UserID: id, Status: domain.ResponsePending})
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].UserID < participants[j].UserID })

	appt := &domain.Appointment{
		ChildID:      childID,
		CreatedBy:    a.UserID,
		Title:        in.Title,
		Description:  strings.TrimSpace(in.Description),
		StartsAt:     in.StartsAt.UTC(),
		EndsAt:       in.EndsAt.UTC(),
		Location:     strings.TrimSpace(in.Location),
		MeetingType:  in.MeetingType,
		Participants: participants,
	}
	if err := repo.CreateAppointment(ctx, s.DB, appt); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(invitees))
	for id := range invitees {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.notify(ctx, child, appt, ids)
	s.invite(ctx, child, appt, ids)
	return appt, nil
}

func (s *AppointmentService) notify(ctx context.Context, child *domain.Child, appt *domain.Appointment, ids []string) {
	if len(ids) == 0 {
		return
	}
	ns := make([]domain.Notification, 0, len(ids))
	for _, id := range ids {
		ns = append(ns, domain.Notification{
			UserID:  id,
			ChildID: child.ID,
			Kind:    domain.NotificationAppointment,
			Title:   fmt.Sprintf("Appointment for %s", child.Name),
			Body:    fmt.Sprintf("%s on %s", appt.Title, appt.StartsAt.Format("Mon 2 Jan 15:04 MST")),
		})
	}
	if err := repo.CreateNotifications(ctx, s.DB, ns); err != nil {
		s.Log.Warn().Err(err).Str("appointment_id", appt.ID).Msg("appointment notifications")
		return
	}
	for i := range ns {
		publish(ctx, s.Pub, s.Log, realtime.EventInsert, realtime.ResourceNotifications, child.ID, ns[i].UserID, ns[i])
	}
}

func (s *AppointmentService) invite(ctx context.Context, child *domain.Child, appt *domain.Appointment, ids []string) {
	if s.Mailer == nil || !s.Mailer.Enabled() || len(ids) == 0 {
		return
	}
	profiles, err := repo.ListProfiles(ctx, s.DB, ids)
	if err != nil {
		s.Log.Warn().Err(err).Msg("load invitee profiles")
		return
	}
	for _, p := range profiles {
		if p.Email == "" {
			continue
		}
		err := s.Mailer.SendAppointmentInvite(ctx, email.Invite{
			ToEmail:       p.Email,
			ToName:        p.Name,
			ChildName:     child.Name,
			Title:         appt.Title,
			Description:   appt.Description,
			StartsAt:      appt.StartsAt,
			EndsAt:        appt.EndsAt,
			Location:      appt.Location,
			MeetingType:   string(appt.MeetingType),
			AppointmentID: appt.ID,
		})
		if err != nil {
			s.Log.Warn().Err(err).Str("appointment_id", appt.ID).Str("user_id", p.ID).Msg("send invite")
		}
	}
}

// List returns a child's appointments starting at or after from.
func (s *AppointmentService) List(ctx context.Context, a Actor, childID string, from time.Time) ([]domain.Appointment, error) {
	ctx, span := otel.Tracer("services/AppointmentService").Start(ctx, "List",
		trace.WithAttributes(attribute.String("child.id", childID)))
	defer span.End()

	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return nil, err
	}
	return repo.ListAppointments(ctx, s.DB, childID, from)
}

// Respond records the caller's answer. Only participants may respond.
func (s *AppointmentService) Respond(ctx context.Context, a Actor, appointmentID string, status domain.ResponseStatus) (*domain.Appointment, error) {
	ctx, span := otel.Tracer("services/AppointmentService").Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("appointment.id", appointmentID),
			attribute.String("status", string(status)),
		))
	defer span.End()

	if status != domain.ResponseAccepted && status != domain.ResponseDeclined {
		return nil, invalid("status", "must be accepted or declined")
	}
	err := repo.RespondToAppointment(ctx, s.DB, appointmentID, a.UserID, status)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return repo.GetAppointment(ctx, s.DB, appointmentID)
}
