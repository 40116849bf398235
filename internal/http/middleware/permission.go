package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// PermissionChecker answers matrix lookups, normally through the TTL cache.
type PermissionChecker interface {
	Allowed(ctx context.Context, role domain.Role, feature domain.Feature) (bool, error)
}

// RequireFeature rejects callers whose role lacks feature. It must run after
// Auth. A failed lookup is reported as 503 rather than silently allowed.
func RequireFeature(pc PermissionChecker, feature domain.Feature) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		allowed, err := pc.Allowed(c.Request.Context(), id.Role, feature)
		if err != nil {
			LoggerFrom(c).Error().Err(err).Str("feature", string(feature)).Msg("permission lookup")
			abortAuth(c, http.StatusServiceUnavailable, "permissions_unavailable", "permission check failed")
			return
		}
		if !allowed {
			permissionDenials.WithLabelValues(string(feature)).Inc()
			abortAuth(c, http.StatusForbidden, "forbidden", "your role cannot use this feature")
			return
		}
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		abortAuth(c, http.StatusForbidden, "forbidden", "insufficient role")
	}
}
