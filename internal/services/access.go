package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/realtime"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

// Actor is the authenticated caller as established by the auth middleware.
type Actor struct {
	UserID string
	Role   domain.Role
	Name   string
	Email  string
}

// DisplayName falls back to the user id when no name is known.
func (a Actor) DisplayName() string {
	if n := strings.TrimSpace(a.Name); n != "" {
		return n
	}
	return a.UserID
}

// Publisher pushes row changes to realtime subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

// authorize loads the child and checks that userID is on its care team.
func authorize(ctx context.Context, db *gorm.DB, childID, userID string) (*domain.Child, *domain.CareTeamMember, error) {
	child, err := repo.GetChild(ctx, db, childID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrChildNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	m, err := repo.GetMembership(ctx, db, childID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrForbidden
	}
	if err != nil {
		return nil, nil, err
	}
	return child, m, nil
}

// publish sends one event. Push delivery is best effort: the row is already
// committed, so a broker failure is logged and swallowed.
func publish(ctx context.Context, pub Publisher, log zerolog.Logger, typ, resource, childID, recipient string, row any) {
	if pub == nil {
		return
	}
	ev, err := realtime.NewEvent(typ, resource, childID, row)
	if err != nil {
		log.Error().Err(err).Str("resource", resource).Msg("build realtime event")
		return
	}
	ev.Recipient = recipient
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("topic", ev.Topic()).Msg("publish realtime event")
	}
}

// notifyCareTeam writes one notification per care team member except the
// author and publishes each to the notification channel.
func notifyCareTeam(ctx context.Context, db *gorm.DB, pub Publisher, log zerolog.Logger, childID, authorID string, tmpl domain.Notification) ([]domain.Notification, error) {
	ids, err := repo.CareTeamUserIDs(ctx, db, childID)
	if err != nil {
		return nil, err
	}
	var ns []domain.Notification
	for _, uid := range ids {
		if uid == authorID {
			continue
		}
		n := tmpl
		n.UserID = uid
		n.ChildID = childID
		ns = append(ns, n)
	}
	if len(ns) == 0 {
		return nil, nil
	}
	if err := repo.CreateNotifications(ctx, db, ns); err != nil {
		return nil, err
	}
	for i := range ns {
		publish(ctx, pub, log, realtime.EventInsert, realtime.ResourceNotifications, childID, ns[i].UserID, ns[i])
	}
	return ns, nil
}

// pageBounds normalizes 1-based pagination.
func pageBounds(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}
