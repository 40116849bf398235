// Aggregates behind the list endpoints' weak ETags.

package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// LogsStats returns aggregate metadata for a child's timeline: the total
// number of entries and the greatest CreatedAt among them. Entries are
// immutable, so (count, max created_at) changes whenever the list does.
//
// When the child has no entries, the returned count is 0 and maxCreatedAt is nil.
func LogsStats(ctx context.Context, db *gorm.DB, childID string) (count int64, maxCreatedAt *time.Time, err error) {
	return childStats(ctx, db, &domain.LogEntry{}, childID)
}

// MessagesStats returns the same aggregate for a child's message room.
func MessagesStats(ctx context.Context, db *gorm.DB, childID string) (count int64, maxCreatedAt *time.Time, err error) {
	return childStats(ctx, db, &domain.Message{}, childID)
}

func childStats(ctx context.Context, db *gorm.DB, model any, childID string) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(model).Where("child_id = ?", childID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// MAX(created_at) comes back as TEXT from SQLite, so read the newest row instead.
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(model).Where("child_id = ?", childID).
		Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
