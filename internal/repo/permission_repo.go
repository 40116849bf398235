package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// ListPermissions returns the full role/feature matrix.
func ListPermissions(ctx context.Context, db *gorm.DB) ([]domain.RolePermission, error) {
	var out []domain.RolePermission
	err := db.WithContext(ctx).Order("role ASC, feature ASC").Find(&out).Error
	return out, err
}

// ListPermissionsForRole returns the matrix row of one role.
func ListPermissionsForRole(ctx context.Context, db *gorm.DB, role domain.Role) ([]domain.RolePermission, error) {
	var out []domain.RolePermission
	err := db.WithContext(ctx).Where("role = ?", role).Order("feature ASC").Find(&out).Error
	return out, err
}

// SetPermission upserts one matrix cell.
func SetPermission(ctx context.Context, db *gorm.DB, p *domain.RolePermission) error {
	p.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "role"}, {Name: "feature"}},
			DoUpdates: clause.AssignmentColumns([]string{"allowed", "updated_by", "updated_at"}),
		}).
		Create(p).Error
}
