package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

// ChildInput is the payload for adding a child.
type ChildInput struct {
	Name        string
	DateOfBirth *time.Time
	Allergies   []string
	Medications []string
}

// ChildService manages children and their care teams.
type ChildService struct {
	DB *gorm.DB

	// NameMaxLen caps stored names by rune length.
	NameMaxLen int
	// NameLocale drives name casing; English when unset.
	NameLocale language.Tag
}

// Create adds a child owned by the caller. Only parents (and admins) own
// children.
func (s *ChildService) Create(ctx context.Context, a Actor, in ChildInput) (*domain.Child, error) {
	ctx, span := otel.Tracer("services/ChildService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", a.UserID)))
	defer span.End()

	if a.Role != domain.RoleParent && a.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	name := s.normalizeName(in.Name)
	if name == "" {
		return nil, invalid("name", "required")
	}
	if in.DateOfBirth != nil && in.DateOfBirth.After(time.Now()) {
		return nil, invalid("date_of_birth", "must not be in the future")
	}
	c := &domain.Child{
		ParentID:    a.UserID,
		Name:        name,
		DateOfBirth: in.DateOfBirth,
		Allergies:   cleanList(in.Allergies),
		Medications: cleanList(in.Medications),
	}
	if err := repo.CreateChild(ctx, s.DB, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the children the caller can access.
func (s *ChildService) List(ctx context.Context, a Actor) ([]domain.Child, error) {
	ctx, span := otel.Tracer("services/ChildService").Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.id", a.UserID)))
	defer span.End()
	return repo.ListChildrenForUser(ctx, s.DB, a.UserID)
}

// Get returns one child if the caller is on its care team.
func (s *ChildService) Get(ctx context.Context, a Actor, childID string) (*domain.Child, error) {
	ctx, span := otel.Tracer("services/ChildService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("child.id", childID)))
	defer span.End()
	c, _, err := authorize(ctx, s.DB, childID, a.UserID)
	return c, err
}

// AddMember grants a teacher or doctor access to a child. Only the owning
// parent may do this, and the member must have a profile.
func (s *ChildService) AddMember(ctx context.Context, a Actor, childID, userID string) (*domain.CareTeamMember, error) {
	ctx, span := otel.Tracer("services/ChildService").Start(ctx, "AddMember",
		trace.WithAttributes(
			attribute.String("child.id", childID),
			attribute.String("member.id", userID),
		))
	defer span.End()

	child, _, err := authorize(ctx, s.DB, childID, a.UserID)
	if err != nil {
		return nil, err
	}
	if child.ParentID != a.UserID {
		return nil, ErrForbidden
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalid("user_id", "required")
	}
	p, err := repo.GetProfile(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Role != domain.RoleTeacher && p.Role != domain.RoleDoctor {
		return nil, invalid("user_id", "care team members must be teachers or doctors")
	}
	return repo.AddCareTeamMember(ctx, s.DB, childID, userID, p.Role)
}

// Team lists a child's care team.
func (s *ChildService) Team(ctx context.Context, a Actor, childID string) ([]domain.CareTeamMember, error) {
	if _, _, err := authorize(ctx, s.DB, childID, a.UserID); err != nil {
		return nil, err
	}
	return repo.ListCareTeam(ctx, s.DB, childID)
}

func (s *ChildService) normalizeName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return ""
	}
	loc := s.NameLocale
	if loc == language.Und {
		loc = language.English
	}
	name = cases.Title(loc, cases.NoLower).String(name)
	max := s.NameMaxLen
	if max <= 0 {
		max = 100
	}
	if utf8.RuneCountInString(name) > max {
		name = string([]rune(name)[:max])
	}
	return name
}

func cleanList(in []string) domain.StringList {
	out := make(domain.StringList, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
