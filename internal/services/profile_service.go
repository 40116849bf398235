package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

// ProfileService manages the local profile mirrored from the identity
// provider.
type ProfileService struct {
	DB *gorm.DB
}

// Me returns the caller's profile, creating it from the token claims on
// first use.
func (s *ProfileService) Me(ctx context.Context, a Actor) (*domain.Profile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Me",
		trace.WithAttributes(attribute.String("user.id", a.UserID)))
	defer span.End()

	role := a.Role
	if !role.Valid() {
		role = domain.RoleParent
	}
	return repo.EnsureProfile(ctx, s.DB, &domain.Profile{
		ID:    a.UserID,
		Name:  a.Name,
		Email: a.Email,
		Role:  role,
	})
}

// SetRole records the role chosen during onboarding. It can only succeed
// once per profile. Admin cannot be self-assigned.
func (s *ProfileService) SetRole(ctx context.Context, a Actor, role domain.Role) (*domain.Profile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "SetRole",
		trace.WithAttributes(
			attribute.String("user.id", a.UserID),
			attribute.String("role", string(role)),
		))
	defer span.End()

	if !role.Valid() || role == domain.RoleAdmin {
		return nil, invalid("role", "must be parent, teacher or doctor")
	}
	if _, err := s.Me(ctx, a); err != nil {
		return nil, err
	}
	if err := repo.SetProfileRole(ctx, s.DB, a.UserID, role); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRoleAlreadySet
		}
		return nil, err
	}
	return repo.GetProfile(ctx, s.DB, a.UserID)
}

// Public returns another user's display profile. The email is withheld.
func (s *ProfileService) Public(ctx context.Context, a Actor, userID string) (*domain.Profile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Public",
		trace.WithAttributes(attribute.String("user.id", a.UserID)))
	defer span.End()

	p, err := repo.GetProfile(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if p.ID != a.UserID {
		p.Email = ""
	}
	return p, nil
}
