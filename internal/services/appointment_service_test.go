package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/realtime"
)

func TestAppointmentService_Create_InvitesAndNotifies(t *testing.T) {
	db := newSvcDB(t)
	childID := seedFamily(t, db)
	pub := &recordingPublisher{}
	mail := &fakeInviter{}
	s := &AppointmentService{DB: db, Pub: pub, Mailer: mail, Log: nopLog()}
	start := time.Now().Add(24 * time.Hour).Truncate(time.Minute)

	appt, err := s.Create(context.Background(), doctor, childID, AppointmentInput{
		Title:          "Check-up",
		StartsAt:       start,
		EndsAt:         start.Add(30 * time.Minute),
		MeetingType:    domain.MeetingVideo,
		ParticipantIDs: []string{parent.UserID, teacher.UserID, parent.UserID, doctor.UserID},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(appt.Participants) != 3 {
		t.Fatalf("participants = %+v", appt.Participants)
	}
	for _, p := range appt.Participants {
		want := domain.ResponsePending
		if p.UserID == doctor.UserID {
			want = domain.ResponseAccepted
		}
		if p.Status != want {
			t.Fatalf("%s status = %s", p.UserID, p.Status)
		}
	}
	// Parent and teacher have email addresses; the creator is not invited.
	if len(mail.sent) != 2 || mail.sent[0].ChildName != "Mia" {
		t.Fatalf("invites = %+v", mail.sent)
	}
	if n := len(pub.byResource(realtime.ResourceNotifications)); n != 2 {
		t.Fatalf("notifications = %d", n)
	}
}

func TestAppointmentService_Create_Validation(t *testing.T) {
	db := newSvcDB(t)
	childID := seedFamily(t, db)
	s := &AppointmentService{DB: db, Log: nopLog()}
	ctx := context.Background()
	start := time.Now().Add(time.Hour)

	_, err := s.Create(ctx, parent, childID, AppointmentInput{Title: "x", StartsAt: start, EndsAt: start})
	assertValidation(t, err, "ends_at")
	_, err = s.Create(ctx, parent, childID, AppointmentInput{Title: "x", StartsAt: start, EndsAt: start.Add(time.Hour), MeetingType: "carrier-pigeon"})
	assertValidation(t, err, "meeting_type")
	_, err = s.Create(ctx, parent, childID, AppointmentInput{Title: "x", StartsAt: start, EndsAt: start.Add(time.Hour), ParticipantIDs: []string{outsider.UserID}})
	assertValidation(t, err, "participant_ids")
	_, err = s.Create(ctx, parent, childID, AppointmentInput{StartsAt: start, EndsAt: start.Add(time.Hour)})
	assertValidation(t, err, "title")
}

func TestAppointmentService_Respond_And_List(t *testing.T) {
	db := newSvcDB(t)
	childID := seedFamily(t, db)
	s := &AppointmentService{DB: db, Log: nopLog()}
	ctx := context.Background()
	start := time.Now().Add(2 * time.Hour)

	appt, err := s.Create(ctx, parent, childID, AppointmentInput{
		Title: "Meeting", StartsAt: start, EndsAt: start.Add(time.Hour), ParticipantIDs: []string{teacher.UserID},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Respond(ctx, teacher, appt.ID, domain.ResponseDeclined)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	for _, p := range got.Participants {
		if p.UserID == teacher.UserID && (p.Status != domain.ResponseDeclined || p.RespondedAt == nil) {
			t.Fatalf("teacher answer not stored: %+v", p)
		}
	}
	if _, err := s.Respond(ctx, doctor, appt.ID, domain.ResponseAccepted); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("non participant: expected ErrAppointmentNotFound, got %v", err)
	}
	_, err = s.Respond(ctx, teacher, appt.ID, domain.ResponsePending)
	assertValidation(t, err, "status")

	list, err := s.List(ctx, doctor, childID, time.Now())
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %d %v", len(list), err)
	}
	list, _ = s.List(ctx, doctor, childID, start.Add(time.Minute))
	if len(list) != 0 {
		t.Fatalf("from filter ignored")
	}
}
