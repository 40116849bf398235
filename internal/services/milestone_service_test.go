package services

import (
	"context"
	"errors"
	"testing"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

func TestMilestoneService_ProgressDefaultsToNotYet(t *testing.T) {
	db := newSvcDB(t)
	child := seedFamily(t, db)
	s := &MilestoneService{DB: db}
	ctx := context.Background()

	cat, err := s.Catalog(ctx)
	if err != nil || len(cat) == 0 {
		t.Fatalf("catalog: err=%v len=%d", err, len(cat))
	}

	got, err := s.Progress(ctx, teacher, child)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(got) != len(cat) {
		t.Fatalf("progress should cover the catalog: %d vs %d", len(got), len(cat))
	}
	for _, p := range got {
		if p.Status != domain.MilestoneNotYet {
			t.Fatalf("%s: status=%q", p.ID, p.Status)
		}
	}

	if _, err := s.Progress(ctx, outsider, child); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider: expected ErrForbidden, got %v", err)
	}
	if _, err := s.Progress(ctx, parent, "missing"); !errors.Is(err, ErrChildNotFound) {
		t.Fatalf("missing child: expected ErrChildNotFound, got %v", err)
	}
}

func TestMilestoneService_Update(t *testing.T) {
	db := newSvcDB(t)
	child := seedFamily(t, db)
	s := &MilestoneService{DB: db}
	ctx := context.Background()

	row, err := s.Update(ctx, teacher, child, "motor-walks", domain.MilestoneInProgress, "  holding the rail  ")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if row.Notes != "holding the rail" || row.UpdatedBy != teacher.UserID {
		t.Fatalf("row = %+v", row)
	}
	if _, err := s.Update(ctx, parent, child, "motor-walks", domain.MilestoneAchieved, ""); err != nil {
		t.Fatalf("second update: %v", err)
	}

	got, _ := s.Progress(ctx, parent, child)
	var walks *MilestoneProgress
	for i := range got {
		if got[i].ID == "motor-walks" {
			walks = &got[i]
		}
	}
	if walks == nil || walks.Status != domain.MilestoneAchieved || walks.Notes != "" || walks.UpdatedBy != parent.UserID {
		t.Fatalf("latest write should win: %+v", walks)
	}

	_, err = s.Update(ctx, parent, child, "motor-walks", domain.MilestoneState("done"), "")
	assertValidation(t, err, "status")

	if _, err := s.Update(ctx, parent, child, "flies", domain.MilestoneAchieved, ""); !errors.Is(err, ErrMilestoneNotFound) {
		t.Fatalf("unknown milestone: expected ErrMilestoneNotFound, got %v", err)
	}
	if _, err := s.Update(ctx, outsider, child, "motor-walks", domain.MilestoneAchieved, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider: expected ErrForbidden, got %v", err)
	}
}
