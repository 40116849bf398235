// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for children and
// their care team.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateChild(ctx, db, child) -> error
//     Inserts the child and its owning parent as the first care team member
//     in one transaction.
//
//   - ListChildrenForUser(ctx, db, userID) -> []domain.Child, error
//     Returns every child the user is a care team member of, newest first.
//
//   - GetChild(ctx, db, id) -> *domain.Child, error
//
//   - GetMembership(ctx, db, childID, userID) -> *domain.CareTeamMember, error
//     Returns ErrNotFound when the user has no access to the child.
//
//   - AddCareTeamMember / ListCareTeam / CareTeamUserIDs
//
//   - UpdateChildSummary(ctx, db, id, summary) -> error
//
// Usage:
//
//	child := &domain.Child{Name: "Mia", ParentID: uid}
//	if err := repo.CreateChild(ctx, db, child); err != nil {
//	    // handle DB failure
//	}
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateChild inserts c (assigning an ID when empty) together with the
// parent's care team membership.
func CreateChild(ctx context.Context, db *gorm.DB, c *domain.Child) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		return tx.Create(&domain.CareTeamMember{
			ChildID:   c.ID,
			UserID:    c.ParentID,
			Role:      domain.RoleParent,
			CreatedAt: now,
		}).Error
	})
}

// ListChildrenForUser returns the children userID can access, most recently
// created first.
func ListChildrenForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Child, error) {
	var out []domain.Child
	err := db.WithContext(ctx).
		Joins("JOIN care_team_members ctm ON ctm.child_id = children.id").
		Where("ctm.user_id = ?", userID).
		Order("children.created_at desc, children.id asc").
		Find(&out).Error
	return out, err
}

// GetChild fetches a child by id.
func GetChild(ctx context.Context, db *gorm.DB, id string) (*domain.Child, error) {
	var c domain.Child
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetMembership returns the (child, user) care team row.
func GetMembership(ctx context.Context, db *gorm.DB, childID, userID string) (*domain.CareTeamMember, error) {
	var m domain.CareTeamMember
	err := db.WithContext(ctx).
		Where("child_id = ? AND user_id = ?", childID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AddCareTeamMember grants userID access to childID. Adding an existing
// member updates the role.
func AddCareTeamMember(ctx context.Context, db *gorm.DB, childID, userID string, role domain.Role) (*domain.CareTeamMember, error) {
	m := &domain.CareTeamMember{
		ChildID:   childID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "child_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role"}),
		}).
		Create(m).Error
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListCareTeam returns the members of a child's care team in join order.
func ListCareTeam(ctx context.Context, db *gorm.DB, childID string) ([]domain.CareTeamMember, error) {
	var out []domain.CareTeamMember
	err := db.WithContext(ctx).
		Where("child_id = ?", childID).
		Order("created_at asc, user_id asc").
		Find(&out).Error
	return out, err
}

// CareTeamUserIDs returns the user ids with access to childID.
func CareTeamUserIDs(ctx context.Context, db *gorm.DB, childID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.CareTeamMember{}).
		Where("child_id = ?", childID).
		Order("user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}

// UpdateChildSummary stores the AI summary text on a child.
func UpdateChildSummary(ctx context.Context, db *gorm.DB, id, summary string) error {
	res := db.WithContext(ctx).
		Model(&domain.Child{}).
		Where("id = ?", id).
		Updates(map[string]any{"ai_summary": summary, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
