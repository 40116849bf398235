package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// ListMilestones returns the milestone catalog ordered by age window.
func ListMilestones(ctx context.Context, db *gorm.DB) ([]domain.Milestone, error) {
	var out []domain.Milestone
	err := db.WithContext(ctx).Order("min_age_month ASC, id ASC").Find(&out).Error
	return out, err
}

// GetMilestone fetches one catalog entry.
func GetMilestone(ctx context.Context, db *gorm.DB, id string) (*domain.Milestone, error) {
	var m domain.Milestone
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMilestoneStatuses returns the recorded statuses for a child.
func ListMilestoneStatuses(ctx context.Context, db *gorm.DB, childID string) ([]domain.MilestoneStatus, error) {
	var out []domain.MilestoneStatus
	err := db.WithContext(ctx).
		Where("child_id = ?", childID).
		Order("milestone_id ASC").
		Find(&out).Error
	return out, err
}

// UpsertMilestoneStatus inserts or overwrites the (child, milestone) row.
func UpsertMilestoneStatus(ctx context.Context, db *gorm.DB, s *domain.MilestoneStatus) error {
	s.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "child_id"}, {Name: "milestone_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "notes", "updated_by", "updated_at"}),
		}).
		Create(s).Error
}
