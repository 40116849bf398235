// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for timeline log
// entries. Log entries are immutable, so there is no update or delete helper.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// CreateLog inserts e, assigning an ID and CreatedAt when they are empty.
func CreateLog(ctx context.Context, db *gorm.DB, e *domain.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(e).Error
}

// GetLog fetches a log entry by id.
func GetLog(ctx context.Context, db *gorm.DB, id string) (*domain.LogEntry, error) {
	var e domain.LogEntry
	if err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// CountLogs returns the number of log entries for childID.
func CountLogs(ctx context.Context, db *gorm.DB, childID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.LogEntry{}).
		Where("child_id = ?", childID).
		Count(&total).Error
	return total, err
}

// ListLogsPage returns a page of a child's timeline ordered newest first
// (CreatedAt DESC, ID ASC).
func ListLogsPage(ctx context.Context, db *gorm.DB, childID string, offset, limit int) ([]domain.LogEntry, error) {
	var out []domain.LogEntry
	err := db.WithContext(ctx).
		Where("child_id = ?", childID).
		Order("created_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListLogsBetween returns the entries created in [from, to), oldest first.
// A zero bound is open.
func ListLogsBetween(ctx context.Context, db *gorm.DB, childID string, from, to time.Time) ([]domain.LogEntry, error) {
	q := db.WithContext(ctx).Where("child_id = ?", childID)
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to)
	}
	var out []domain.LogEntry
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// ListRecentLogs returns up to limit of the newest entries.
func ListRecentLogs(ctx context.Context, db *gorm.DB, childID string, limit int) ([]domain.LogEntry, error) {
	return ListLogsPage(ctx, db, childID, 0, limit)
}
