package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/ai"
	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

const (
	insightWindow     = 50
	summaryMaxRunes   = 600
	maxTranslateRunes = 5000
	maxDigestSpan     = 366 * 24 * time.Hour
)

// InsightResult carries insights and where they came from.
type InsightResult struct {
	Insights []ai.Insight `json:"insights"`
	Source   string       `json:"source"` // "ai" or "heuristic"
}

// InsightService produces AI-backed views of a child's timeline. Insights
// and summaries degrade to local heuristics; translation and PDF digests
// have no fallback and return ErrAIUnavailable.
type InsightService struct {
	DB  *gorm.DB
	AI  Assistant
	Log zerolog.Logger
}

// Insights analyses the most recent logs.
func (s *InsightService) Insights(ctx context.Context, a Actor, childID string) (*InsightResult, error) {
	ctx, span := otel.Tracer("services/InsightService").Start(ctx, "Insights",
		trace.WithAttributes(attribute.String("child.id", childID)))
	defer span.End()

	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return nil, err
	}
	logs, err := repo.ListRecentLogs(ctx, s.DB, childID, insightWindow)
	if err != nil {
		return nil, err
	}
	in := toAIInputs(logs)
	if len(in) >= ai.MinLogsForInsights && s.AI != nil {
		out, err := s.AI.GenerateInsights(ctx, in)
		if err == nil && len(out) > 0 {
			return &InsightResult{Insights: out, Source: "ai"}, nil
		}
		if err != nil {
			s.Log.Info().Err(err).Str("child_id", childID).Msg("insights fall back to heuristics")
		}
	}
	return &InsightResult{Insights: ai.HeuristicInsights(in), Source: "heuristic"}, nil
}

// Summary writes an audience-specific summary of recent logs and stores it
// as the child's AI summary.
func (s *InsightService) Summary(ctx context.Context, a Actor, childID string, audience domain.Role) (string, error) {
	ctx, span := otel.Tracer("services/InsightService").Start(ctx, "Summary",
		trace.WithAttributes(
			attribute.String("child.id", childID),
			attribute.String("audience", string(audience)),
		))
	defer span.End()

	if audience == "" {
		audience = a.Role
	}
	if audience != domain.RoleParent && audience != domain.RoleTeacher && audience != domain.RoleDoctor {
		return "", invalid("audience", "must be parent, teacher or doctor")
	}
	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return "", err
	}
	logs, err := repo.ListRecentLogs(ctx, s.DB, childID, insightWindow)
	if err != nil {
		return "", err
	}
	in := toAIInputs(logs)

	summary := ""
	if len(in) > 0 && s.AI != nil {
		if out, err := s.AI.Summarize(ctx, in, string(audience)); err == nil {
			summary = strings.TrimSpace(out)
		} else {
			s.Log.Info().Err(err).Str("child_id", childID).Msg("summary falls back to digest of titles")
		}
	}
	if summary == "" {
		summary = ai.FallbackSummary(in, summaryMaxRunes)
	}
	if err := repo.UpdateChildSummary(ctx, s.DB, childID, summary); err != nil {
		return "", err
	}
	return summary, nil
}

// Digest renders a PDF of the timeline between from and to.
func (s *InsightService) Digest(ctx context.Context, a Actor, childID string, from, to time.Time) ([]byte, error) {
	ctx, span := otel.Tracer("services/InsightService").Start(ctx, "Digest",
		trace.WithAttributes(attribute.String("child.id", childID)))
	defer span.End()

	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -7)
	}
	if !to.After(from) {
		return nil, invalid("to", "must be after from")
	}
	if to.Sub(from) > maxDigestSpan {
		return nil, invalid("from", "range must not exceed one year")
	}
	if s.AI == nil {
		return nil, ErrAIUnavailable
	}
	pdf, err := s.AI.PDFDigest(ctx, childID, from, to)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return nil, ErrAIUnavailable
		}
		return nil, err
	}
	return pdf, nil
}

// Translate renders text in target, a BCP 47 language tag.
func (s *InsightService) Translate(ctx context.Context, text, target string) (string, error) {
	ctx, span := otel.Tracer("services/InsightService").Start(ctx, "Translate",
		trace.WithAttributes(attribute.String("target", target)))
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return "", invalid("text", "required")
	}
	if utf8.RuneCountInString(text) > maxTranslateRunes {
		return "", invalid("text", fmt.Sprintf("max %d characters", maxTranslateRunes))
	}
	tag, err := language.Parse(strings.TrimSpace(target))
	if err != nil || tag == language.Und {
		return "", invalid("target_language", "must be a BCP 47 language tag")
	}
	if s.AI == nil {
		return "", ErrAIUnavailable
	}
	out, err := s.AI.Translate(ctx, text, tag.String())
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return "", ErrAIUnavailable
		}
		return "", err
	}
	return out, nil
}
