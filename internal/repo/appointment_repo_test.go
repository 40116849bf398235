package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

func TestAppointments_CreateListRespond(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	child := seedChild(t, db, "p1")

	start := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	a := &domain.Appointment{
		ChildID:     child,
		CreatedBy:   "p1",
		Title:       "Check-up",
		StartsAt:    start,
		EndsAt:      start.Add(30 * time.Minute),
		MeetingType: domain.MeetingVideo,
		Participants: []domain.Participant{
			{UserID: "d1"},
			{UserID: "t1"},
		},
	}
	if err := CreateAppointment(ctx, db, a); err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}

	got, err := GetAppointment(ctx, db, a.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if len(got.Participants) != 2 || got.Participants[0].Status != domain.ResponsePending {
		t.Fatalf("participants not stored as pending: %+v", got.Participants)
	}

	if err := RespondToAppointment(ctx, db, a.ID, "d1", domain.ResponseAccepted); err != nil {
		t.Fatalf("RespondToAppointment: %v", err)
	}
	if err := RespondToAppointment(ctx, db, a.ID, "stranger", domain.ResponseAccepted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non participant, got %v", err)
	}
	got, _ = GetAppointment(ctx, db, a.ID)
	if got.Participants[0].UserID != "d1" || got.Participants[0].Status != domain.ResponseAccepted || got.Participants[0].RespondedAt == nil {
		t.Fatalf("response not recorded: %+v", got.Participants[0])
	}

	list, err := ListAppointments(ctx, db, child, start.Add(time.Hour))
	if err != nil || len(list) != 0 {
		t.Fatalf("expected no upcoming after start+1h: err=%v n=%d", err, len(list))
	}
	list, err = ListAppointments(ctx, db, child, time.Time{})
	if err != nil || len(list) != 1 || len(list[0].Participants) != 2 {
		t.Fatalf("ListAppointments: err=%v list=%+v", err, list)
	}
}

func TestMilestoneStatus_Upsert(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	child := seedChild(t, db, "p1")

	if _, err := GetMilestone(ctx, db, "motor-walks"); err != nil {
		t.Fatalf("seeded milestone missing: %v", err)
	}
	s := &domain.MilestoneStatus{ChildID: child, MilestoneID: "motor-walks", Status: domain.MilestoneInProgress, UpdatedBy: "p1"}
	if err := UpsertMilestoneStatus(ctx, db, s); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	s2 := &domain.MilestoneStatus{ChildID: child, MilestoneID: "motor-walks", Status: domain.MilestoneAchieved, Notes: "first steps", UpdatedBy: "t1"}
	if err := UpsertMilestoneStatus(ctx, db, s2); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	rows, err := ListMilestoneStatuses(ctx, db, child)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected a single row, err=%v rows=%+v", err, rows)
	}
	if rows[0].Status != domain.MilestoneAchieved || rows[0].Notes != "first steps" || rows[0].UpdatedBy != "t1" {
		t.Fatalf("upsert did not overwrite: %+v", rows[0])
	}
}
