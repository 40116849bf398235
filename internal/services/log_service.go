// Package services – LogService
//
// LogService owns the child timeline. Entries are immutable: tags, emotion
// score and per-audience summaries are derived once when the entry is
// created. Every insert is pushed on the "logs-<child>" channel and the rest
// of the care team gets a notification.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/ai"
	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/export"
	"github.com/parentrak/parentrak-backend/internal/realtime"
	"github.com/parentrak/parentrak-backend/internal/repo"
	"github.com/parentrak/parentrak-backend/internal/search"
	"github.com/parentrak/parentrak-backend/internal/storage"
)

// Assistant is the subset of the AI client the services call.
type Assistant interface {
	Enabled() bool
	GenerateInsights(ctx context.Context, logs []ai.LogInput) ([]ai.Insight, error)
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	Summarize(ctx context.Context, logs []ai.LogInput, audience string) (string, error)
	PDFDigest(ctx context.Context, childID string, from, to time.Time) ([]byte, error)
}

const (
	maxTitleRunes       = 255
	maxDescriptionRunes = 10000
	maxClientRefLen     = 64
	searchWindow        = 500
)

// LogInput is the payload for a new timeline entry.
type LogInput struct {
	Title       string
	Description string
	AudioURL    string
	DocumentURL string
	ClientRef   string
}

// Upload is an attachment posted with a log.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
	Title       string
	Description string
	ClientRef   string
}

// LogService coordinates timeline persistence, derivation and fan-out.
type LogService struct {
	DB    *gorm.DB
	Pub   Publisher
	AI    Assistant
	Store storage.Store
	Log   zerolog.Logger

	// SearchMinScore drops weak search hits.
	SearchMinScore float64
}

// Create validates in, derives tags and mood, stores the entry, pushes it
// and notifies the rest of the care team.
func (s *LogService) Create(ctx context.Context, a Actor, childID string, in LogInput) (*domain.LogEntry, error) {
	tr := otel.Tracer("services/LogService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("child.id", childID),
			attribute.String("user.id", a.UserID),
		),
	)
	defer span.End()

	child, _, err := authorize(ctx, s.DB, childID, a.UserID)
	if err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ClientRef = strings.TrimSpace(in.ClientRef)
	switch {
	case in.Title == "":
		return nil, invalid("title", "required")
	case utf8.RuneCountInString(in.Title) > maxTitleRunes:
		return nil, invalid("title", fmt.Sprintf("max %d characters", maxTitleRunes))
	case utf8.RuneCountInString(in.Description) > maxDescriptionRunes:
		return nil, invalid("description", fmt.Sprintf("max %d characters", maxDescriptionRunes))
	case len(in.ClientRef) > maxClientRefLen:
		return nil, invalid("client_ref", fmt.Sprintf("max %d bytes", maxClientRefLen))
	}

	text := in.Title + " " + in.Description
	e := &domain.LogEntry{
		ChildID:      childID,
		UserID:       a.UserID,
		AuthorRole:   a.Role,
		AuthorName:   a.DisplayName(),
		Title:        in.Title,
		Description:  in.Description,
		Tags:         ai.DeriveTags(text),
		EmotionScore: ai.EmotionScore(text),
		AudioURL:     in.AudioURL,
		DocumentURL:  in.DocumentURL,
		ClientRef:    in.ClientRef,
	}
	s.summarize(ctx, e)

	if err := repo.CreateLog(ctx, s.DB, e); err != nil {
		return nil, err
	}
	publish(ctx, s.Pub, s.Log, realtime.EventInsert, realtime.ResourceLogs, childID, "", e)

	logID := e.ID
	_, err = notifyCareTeam(ctx, s.DB, s.Pub, s.Log, childID, a.UserID, domain.Notification{
		LogID: &logID,
		Kind:  domain.NotificationNewLog,
		Title: fmt.Sprintf("New log for %s", child.Name),
		Body:  fmt.Sprintf("%s added %q", e.AuthorName, e.Title),
	})
	if err != nil {
		s.Log.Warn().Err(err).Str("log_id", e.ID).Msg("notify care team")
	}
	return e, nil
}

// summarize fills the per-audience summaries when the AI is reachable. The
// entry is stored without them otherwise.
func (s *LogService) summarize(ctx context.Context, e *domain.LogEntry) {
	if s.AI == nil || !s.AI.Enabled() {
		return
	}
	in := []ai.LogInput{toAIInput(*e)}
	targets := []struct {
		audience domain.Role
		dst      *string
	}{
		{domain.RoleParent, &e.ParentSummary},
		{domain.RoleTeacher, &e.TeacherSummary},
		{domain.RoleDoctor, &e.DoctorSummary},
	}
	for _, t := range targets {
		sum, err := s.AI.Summarize(ctx, in, string(t.audience))
		if err != nil {
			return
		}
		*t.dst = sum
	}
}

// ListPage returns a page of the timeline, newest first.
func (s *LogService) ListPage(ctx context.Context, a Actor, childID string, page, pageSize int) ([]domain.LogEntry, int64, error) {
	tr := otel.Tracer("services/LogService")
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
	total, err := repo.CountLogs(ctx, s.DB, childID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.LogEntry{}, 0, nil
	}
	items, err := repo.ListLogsPage(ctx, s.DB, childID, offset, limit)
	return items, total, err
}

// Get returns one entry if the caller is on the child's care team.
func (s *LogService) Get(ctx context.Context, a Actor, id string) (*domain.LogEntry, error) {
	e, err := repo.GetLog(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, _, err := authorize(ctx, s.DB, e.ChildID, a.UserID); err != nil {
		return nil, err
	}
	return e, nil
}

// Stats returns the entry count and newest timestamp, for conditional GETs.
func (s *LogService) Stats(ctx context.Context, childID string) (int64, *time.Time, error) {
	return repo.LogsStats(ctx, s.DB, childID)
}

// Search ranks the most recent entries against q.
func (s *LogService) Search(ctx context.Context, a Actor, childID, q string, limit int) ([]search.Result, error) {
	tr := otel.Tracer("services/LogService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("child.id", childID),
			attribute.String("query", q),
		),
	)
	defer span.End()

	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q) == "" {
		return nil, invalid("q", "required")
	}
	logs, err := repo.ListRecentLogs(ctx, s.DB, childID, searchWindow)
	if err != nil {
		return nil, err
	}
	idx := search.NewLogIndex(logs, search.WithMinScore(s.SearchMinScore))
	out := idx.TopK(q, limit)
	if out == nil {
		out = []search.Result{}
	}
	return out, nil
}

// Export renders the whole timeline, oldest first, as an xlsx workbook.
func (s *LogService) Export(ctx context.Context, a Actor, childID string) (string, []byte, error) {
	tr := otel.Tracer("services/LogService")
	ctx, span := tr.Start(ctx, "Export", trace.WithAttributes(attribute.String("child.id", childID)))
	defer span.End()

	child, _, err := authorize(ctx, s.DB, childID, a.UserID)
	if err != nil {
		return "", nil, err
	}
	logs, err := repo.ListLogsBetween(ctx, s.DB, childID, time.Time{}, time.Time{})
	if err != nil {
		return "", nil, err
	}
	b, err := export.LogsXLSX(child.Name, logs)
	if err != nil {
		return "", nil, err
	}
	name := fmt.Sprintf("%s-timeline-%s.xlsx", fileSafe(child.Name), time.Now().UTC().Format("20060102"))
	return name, b, nil
}

// AttachDocument stores an uploaded document and records a log pointing at it.
func (s *LogService) AttachDocument(ctx context.Context, a Actor, childID string, up Upload) (*domain.LogEntry, error) {
	tr := otel.Tracer("services/LogService")
	ctx, span := tr.Start(ctx, "AttachDocument", trace.WithAttributes(attribute.String("child.id", childID)))
	defer span.End()

	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return nil, err
	}
	url, err := s.put(ctx, childID, "documents", up.Filename, up.ContentType, up.Body)
	if err != nil {
		return nil, err
	}
	title := up.Title
	if strings.TrimSpace(title) == "" {
		title = "Document: " + up.Filename
	}
	return s.Create(ctx, a, childID, LogInput{
		Title:       title,
		Description: up.Description,
		DocumentURL: url,
		ClientRef:   up.ClientRef,
	})
}

// AddVoiceNote stores recorded audio, transcribes it when possible and
// records a log with the transcript as description. An unavailable AI leaves
// the transcript empty.
func (s *LogService) AddVoiceNote(ctx context.Context, a Actor, childID string, up Upload) (*domain.LogEntry, error) {
	tr := otel.Tracer("services/LogService")
	ctx, span := tr.Start(ctx, "AddVoiceNote", trace.WithAttributes(attribute.String("child.id", childID)))
	defer span.End()

	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return nil, err
	}
	audio, err := io.ReadAll(up.Body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, invalid("audio", "empty upload")
	}
	url, err := s.put(ctx, childID, "audio", up.Filename, up.ContentType, bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}

	transcript := ""
	if s.AI != nil {
		t, terr := s.AI.Transcribe(ctx, audio, up.ContentType)
		if terr != nil {
			s.Log.Info().Err(terr).Str("child_id", childID).Msg("transcription unavailable")
		} else {
			transcript = t
		}
	}
	title := up.Title
	if strings.TrimSpace(title) == "" {
		title = "Voice note"
	}
	return s.Create(ctx, a, childID, LogInput{
		Title:       title,
		Description: transcript,
		AudioURL:    url,
		ClientRef:   up.ClientRef,
	})
}

func (s *LogService) put(ctx context.Context, childID, kind, filename, contentType string, r io.Reader) (string, error) {
	if s.Store == nil {
		return "", errors.New("attachment storage not configured")
	}
	if strings.TrimSpace(filename) == "" {
		return "", invalid("file", "file name required")
	}
	url, err := s.Store.Put(ctx, storage.ObjectName(childID, kind, filename), contentType, r)
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return "", ErrTooLarge
	case errors.Is(err, storage.ErrBadName):
		return "", invalid("file", "invalid file name")
	}
	return url, err
}

func toAIInput(e domain.LogEntry) ai.LogInput {
	return ai.LogInput{
		Title:        e.Title,
		Description:  e.Description,
		Tags:         e.Tags,
		EmotionScore: e.EmotionScore,
		AuthorRole:   string(e.AuthorRole),
		CreatedAt:    e.CreatedAt,
	}
}

func toAIInputs(logs []domain.LogEntry) []ai.LogInput {
	out := make([]ai.LogInput, len(logs))
	for i, l := range logs {
		out[i] = toAIInput(l)
	}
	return out
}

func fileSafe(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "child"
	}
	return b.String()
}
