package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// GetProfile fetches a profile by user id.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsureProfile inserts p when no profile with that id exists and returns the
// stored row either way. Existing rows are never overwritten.
func EnsureProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) (*domain.Profile, error) {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p).Error
	if err != nil {
		return nil, err
	}
	return GetProfile(ctx, db, p.ID)
}

// SetProfileRole assigns a role once. It returns ErrNotFound when the profile
// is missing or its role was already set.
func SetProfileRole(ctx context.Context, db *gorm.DB, id string, role domain.Role) error {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND role_set = ?", id, false).
		Updates(map[string]any{"role": role, "role_set": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListProfiles returns the profiles for ids, in no particular order.
func ListProfiles(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Profile, error) {
	var out []domain.Profile
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}
