// Package services – MessageService
//
// MessageService owns a child's message room. Messages are append-only; each
// one is pushed on "messages-<child>" with the sender's client_ref so the
// sender's optimistic placeholder can be reconciled.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/realtime"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

// MessageService coordinates message persistence and fan-out.
type MessageService struct {
	DB  *gorm.DB
	Pub Publisher
	Log zerolog.Logger

	// MaxContentRunes caps message length; 4000 when unset.
	MaxContentRunes int
	// NotifyCareTeam also writes a notification per recipient.
	NotifyCareTeam bool
}

// MaxRunes returns the effective length cap.
func (s *MessageService) MaxRunes() int {
	if s.MaxContentRunes > 0 {
		return s.MaxContentRunes
	}
	return 4000
}

// Send appends a message from a to the child's room.
func (s *MessageService) Send(ctx context.Context, a Actor, childID, content, clientRef string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("child.id", childID),
			attribute.String("user.id", a.UserID),
		),
	)
	defer span.End()

	content = SanitizeContent(content)
	clientRef = strings.TrimSpace(clientRef)
	switch {
	case content == "":
		return nil, invalid("content", "required")
	case utf8.RuneCountInString(content) > s.MaxRunes():
		return nil, invalid("content", fmt.Sprintf("max %d characters", s.MaxRunes()))
	case len(clientRef) > maxClientRefLen:
		return nil, invalid("client_ref", fmt.Sprintf("max %d bytes", maxClientRefLen))
	}

	child, _, err := authorize(ctx, s.DB, childID, a.UserID)
	if err != nil {
		return nil, err
	}

	m, err := repo.CreateMessage(ctx, s.DB, childID, a.UserID, a.DisplayName(), content, clientRef)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Pub, s.Log, realtime.EventInsert, realtime.ResourceMessages, childID, "", m)

	if s.NotifyCareTeam {
		_, err := notifyCareTeam(ctx, s.DB, s.Pub, s.Log, childID, a.UserID, domain.Notification{
			Kind:  domain.NotificationNewMessage,
			Title: fmt.Sprintf("New message about %s", child.Name),
			Body:  fmt.Sprintf("%s: %s", m.AuthorName, clip(content, 140)),
		})
		if err != nil {
			s.Log.Warn().Err(err).Str("message_id", m.ID).Msg("notify care team")
		}
	}
	return m, nil
}

// ListPage returns a page of the room, oldest first.
func (s *MessageService) ListPage(ctx context.Context, a Actor, childID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("child.id", childID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return nil, 0, err
	}
	offset, limit := pageBounds(page, pageSize)
	total, err := repo.CountMessages(ctx, s.DB, childID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, childID, offset, limit)
	return items, total, err
}

// Get returns one message if the caller can see its room.
func (s *MessageService) Get(ctx context.Context, a Actor, id string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, _, err := authorize(ctx, s.DB, m.ChildID, a.UserID); err != nil {
		return nil, err
	}
	return m, nil
}

// Stats returns the message count and newest timestamp, for conditional GETs.
func (s *MessageService) Stats(ctx context.Context, childID string) (int64, *time.Time, error) {
	return repo.MessagesStats(ctx, s.DB, childID)
}

var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// SanitizeContent converts CRLF/CR to LF, collapses runs of three or more
// newlines to a paragraph break and trims surrounding whitespace.
func SanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-1]) + "…"
}
