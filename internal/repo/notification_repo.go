// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for notifications.
//
// The read flag is monotonic: MarkNotificationRead and MarkAllNotificationsRead
// only ever update rows where read = false, and nothing writes false.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// CreateNotifications inserts ns in one statement, assigning IDs and
// timestamps to entries that lack them.
func CreateNotifications(ctx context.Context, db *gorm.DB, ns []domain.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range ns {
		if ns[i].ID == "" {
			ns[i].ID = uuid.NewString()
		}
		if ns[i].CreatedAt.IsZero() {
			ns[i].CreatedAt = now
		}
	}
	return db.WithContext(ctx).Create(&ns).Error
}

// GetNotification fetches a notification by id, scoped to its recipient.
func GetNotification(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func notificationScope(db *gorm.DB, userID, childID string) *gorm.DB {
	q := db.Model(&domain.Notification{}).Where("user_id = ?", userID)
	if childID != "" {
		q = q.Where("child_id = ?", childID)
	}
	return q
}

// CountNotifications returns the total number of notifications for userID,
// optionally restricted to one child.
func CountNotifications(ctx context.Context, db *gorm.DB, userID, childID string) (int64, error) {
	var total int64
	err := notificationScope(db.WithContext(ctx), userID, childID).Count(&total).Error
	return total, err
}

// ListNotificationsPage returns a page of notifications, newest first.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, userID, childID string, offset, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := notificationScope(db.WithContext(ctx), userID, childID).
		Order("created_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountUnread returns the number of unread notifications for userID.
func CountUnread(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&total).Error
	return total, err
}

// MarkNotificationRead flips one unread notification owned by userID to read.
// It returns true when a row changed; false means the row was already read
// (or is missing, which callers distinguish with GetNotification).
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND user_id = ? AND read = ?", id, userID, false).
		Update("read", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkAllNotificationsRead marks every unread notification of userID as read
// and returns how many changed.
func MarkAllNotificationsRead(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}
