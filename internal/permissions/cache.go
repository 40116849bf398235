// Package permissions caches the role/feature permission matrix.
//
// The database table is the source of truth. A cached matrix row is served
// for at most TTL after it was loaded; the next lookup after that reloads it.
// Nothing is trusted past its TTL, so a revoked permission stops working
// within one TTL on every instance.
package permissions

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/repo"
)

// DefaultTTL is how long a loaded matrix row stays fresh.
const DefaultTTL = 5 * time.Minute

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Loader fetches the current matrix row of a role.
type Loader interface {
	Load(ctx context.Context, role domain.Role) (map[domain.Feature]bool, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, role domain.Role) (map[domain.Feature]bool, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, role domain.Role) (map[domain.Feature]bool, error) {
	return f(ctx, role)
}

// DBLoader reads matrix rows from the role_permissions table.
type DBLoader struct {
	DB *gorm.DB
}

// Load implements Loader.
func (l DBLoader) Load(ctx context.Context, role domain.Role) (map[domain.Feature]bool, error) {
	rows, err := repo.ListPermissionsForRole(ctx, l.DB, role)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Feature]bool, len(rows))
	for _, r := range rows {
		out[r.Feature] = r.Allowed
	}
	return out, nil
}

type entry struct {
	perms    map[domain.Feature]bool
	loadedAt time.Time
}

// Cache is a per-role TTL cache over a Loader. It is safe for concurrent use.
type Cache struct {
	loader Loader
	ttl    time.Duration
	clock  Clock

	mu      sync.Mutex
	entries map[domain.Role]entry
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(cache *Cache) {
		if c != nil {
			cache.clock = c
		}
	}
}

// NewCache returns a cache that reloads a role's row once it is older than
// ttl (DefaultTTL when ttl <= 0).
func NewCache(loader Loader, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		loader:  loader,
		ttl:     ttl,
		clock:   SystemClock,
		entries: make(map[domain.Role]entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Allowed reports whether role may use feature. Unknown features are denied.
func (c *Cache) Allowed(ctx context.Context, role domain.Role, feature domain.Feature) (bool, error) {
	perms, err := c.row(ctx, role)
	if err != nil {
		return false, err
	}
	return perms[feature], nil
}

// Snapshot returns a copy of the role's row with every known feature present.
func (c *Cache) Snapshot(ctx context.Context, role domain.Role) (map[domain.Feature]bool, error) {
	perms, err := c.row(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Feature]bool, len(domain.Features))
	for _, f := range domain.Features {
		out[f] = perms[f]
	}
	return out, nil
}

// Invalidate drops the cached row of role so the next lookup reloads it.
func (c *Cache) Invalidate(role domain.Role) {
	c.mu.Lock()
	delete(c.entries, role)
	c.mu.Unlock()
}

// InvalidateAll drops every cached row.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[domain.Role]entry)
	c.mu.Unlock()
}

func (c *Cache) row(ctx context.Context, role domain.Role) (map[domain.Feature]bool, error) {
	now := c.clock.Now()
	c.mu.Lock()
	e, ok := c.entries[role]
	c.mu.Unlock()
	if ok && now.Sub(e.loadedAt) < c.ttl {
		return e.perms, nil
	}

	perms, err := c.loader.Load(ctx, role)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = map[domain.Feature]bool{}
	}
	c.mu.Lock()
	c.entries[role] = entry{perms: perms, loadedAt: now}
	c.mu.Unlock()
	return perms, nil
}
