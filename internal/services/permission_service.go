package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

// PermissionCache is the read-through TTL cache over the matrix.
type PermissionCache interface {
	Allowed(ctx context.Context, role domain.Role, feature domain.Feature) (bool, error)
	Snapshot(ctx context.Context, role domain.Role) (map[domain.Feature]bool, error)
	Invalidate(role domain.Role)
}

// PermissionChange is one cell edit submitted by an admin.
type PermissionChange struct {
	Role    domain.Role    `json:"role"`
	Feature domain.Feature `json:"feature"`
	Allowed bool           `json:"allowed"`
}

// PermissionService exposes the role/feature matrix. Reads go through the
// cache; admin edits write the table and evict the edited roles, so other
// instances converge within one TTL.
type PermissionService struct {
	DB    *gorm.DB
	Cache PermissionCache
}

// Matrix returns every cell of the table.
func (s *PermissionService) Matrix(ctx context.Context) ([]domain.RolePermission, error) {
	return repo.ListPermissions(ctx, s.DB)
}

// Mine returns the cached feature map of the caller's role.
func (s *PermissionService) Mine(ctx context.Context, a Actor) (map[domain.Feature]bool, error) {
	return s.Cache.Snapshot(ctx, a.Role)
}

// Check reports whether the caller's role may use feature.
func (s *PermissionService) Check(ctx context.Context, a Actor, feature domain.Feature) (bool, error) {
	if !knownFeature(feature) {
		return false, invalid("feature", "unknown feature")
	}
	return s.Cache.Allowed(ctx, a.Role, feature)
}

// Update applies admin edits in one transaction.
func (s *PermissionService) Update(ctx context.Context, a Actor, changes []PermissionChange) ([]domain.RolePermission, error) {
	ctx, span := otel.Tracer("services/PermissionService").Start(ctx, "Update",
		trace.WithAttributes(attribute.Int("changes", len(changes))))
	defer span.End()

	if a.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	if len(changes) == 0 {
		return nil, invalid("changes", "at least one change required")
	}
	for _, c := range changes {
		if !c.Role.Valid() {
			return nil, invalid("role", "unknown role "+string(c.Role))
		}
		if !knownFeature(c.Feature) {
			return nil, invalid("feature", "unknown feature "+string(c.Feature))
		}
		if c.Role == domain.RoleAdmin && !c.Allowed {
			return nil, invalid("role", "admin permissions cannot be revoked")
		}
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changes {
			if err := repo.SetPermission(ctx, tx, &domain.RolePermission{
				Role:      c.Role,
				Feature:   c.Feature,
				Allowed:   c.Allowed,
				UpdatedBy: a.UserID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, c := range changes {
		s.Cache.Invalidate(c.Role)
	}
	return repo.ListPermissions(ctx, s.DB)
}

func knownFeature(f domain.Feature) bool {
	for _, k := range domain.Features {
		if k == f {
			return true
		}
	}
	return false
}
