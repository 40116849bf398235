package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/realtime"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

// NotificationService reads and acknowledges the caller's notifications.
// Only the recipient can see or mark a notification, and read never goes
// back to false.
type NotificationService struct {
	DB  *gorm.DB
	Pub Publisher
	Log zerolog.Logger
}

// ListPage returns the caller's notifications, newest first, optionally for
// one child.
func (s *NotificationService) ListPage(ctx context.Context, a Actor, childID string, page, pageSize int) ([]domain.Notification, int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", a.UserID),
			attribute.String("child.id", childID),
		),
	)
	defer span.End()

	offset, limit := pageBounds(page, pageSize)
	total, err := repo.CountNotifications(ctx, s.DB, a.UserID, childID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, a.UserID, childID, offset, limit)
	return items, total, err
}

// UnreadCount returns how many of the caller's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, a Actor) (int64, error) {
	return repo.CountUnread(ctx, s.DB, a.UserID)
}

// MarkRead flips one notification to read and pushes the updated row to the
// recipient. Marking an already read notification returns ErrAlreadyRead.
func (s *NotificationService) MarkRead(ctx context.Context, a Actor, id string) (*domain.Notification, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("user.id", a.UserID),
			attribute.String("notification.id", id),
		),
	)
	defer span.End()

	changed, err := repo.MarkNotificationRead(ctx, s.DB, id, a.UserID)
	if err != nil {
		return nil, err
	}
	n, err := repo.GetNotification(ctx, s.DB, id, a.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !changed {
		return n, ErrAlreadyRead
	}
	publish(ctx, s.Pub, s.Log, realtime.EventUpdate, realtime.ResourceNotifications, n.ChildID, n.UserID, n)
	return n, nil
}

// MarkAllRead marks every unread notification of the caller as read and
// returns how many changed. No per-row events are pushed; clients refetch.
func (s *NotificationService) MarkAllRead(ctx context.Context, a Actor) (int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkAllRead", trace.WithAttributes(attribute.String("user.id", a.UserID)))
	defer span.End()
	return repo.MarkAllNotificationsRead(ctx, s.DB, a.UserID)
}
