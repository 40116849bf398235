package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

// MilestoneProgress is a catalog entry joined with the child's status.
type MilestoneProgress struct {
	domain.Milestone
	Status    domain.MilestoneState `json:"status"`
	Notes     string                `json:"notes"`
	UpdatedBy string                `json:"updated_by,omitempty"`
}

// MilestoneService reads the catalog and upserts per-child progress.
type MilestoneService struct {
	DB *gorm.DB
}

// Catalog returns every tracked milestone.
func (s *MilestoneService) Catalog(ctx context.Context) ([]domain.Milestone, error) {
	return repo.ListMilestones(ctx, s.DB)
}

// Progress returns the whole catalog with the child's status; milestones
// without a row are not_yet.
func (s *MilestoneService) Progress(ctx context.Context, a Actor, childID string) ([]MilestoneProgress, error) {
	ctx, span := otel.Tracer("services/MilestoneService").Start(ctx, "Progress",
		trace.WithAttributes(attribute.String("child.id", childID)))
	defer span.End()

	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return nil, err
	}
	catalog, err := repo.ListMilestones(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	statuses, err := repo.ListMilestoneStatuses(ctx, s.DB, childID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.MilestoneStatus, len(statuses))
	for _, st := range statuses {
		byID[st.MilestoneID] = st
	}
	out := make([]MilestoneProgress, 0, len(catalog))
	for _, m := range catalog {
		p := MilestoneProgress{Milestone: m, Status: domain.MilestoneNotYet}
		if st, ok := byID[m.ID]; ok {
			p.Status, p.Notes, p.UpdatedBy = st.Status, st.Notes, st.UpdatedBy
		}
		out = append(out, p)
	}
	return out, nil
}

// Update upserts the (child, milestone) row. Clients debounce edits, so one
// call carries the merged status and notes.
func (s *MilestoneService) Update(ctx context.Context, a Actor, childID, milestoneID string, status domain.MilestoneState, notes string) (*domain.MilestoneStatus, error) {
	ctx, span := otel.Tracer("services/MilestoneService").Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("child.id", childID),
			attribute.String("milestone.id", milestoneID),
		))
	defer span.End()

	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, invalid("status", "must be not_yet, in_progress or achieved")
	}
	if _, err := repo.GetMilestone(ctx, s.DB, milestoneID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMilestoneNotFound
		}
		return nil, err
	}
	row := &domain.MilestoneStatus{
		ChildID:     childID,
		MilestoneID: milestoneID,
		Status:      status,
		Notes:       strings.TrimSpace(notes),
		UpdatedBy:   a.UserID,
	}
	if err := repo.UpsertMilestoneStatus(ctx, s.DB, row); err != nil {
		return nil, err
	}
	return row, nil
}
