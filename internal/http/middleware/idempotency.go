package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key on POST requests.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set on responses served from a stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyIdemKey).(string)
	return s, s != ""
}

// GetIdempotencyScope returns the scope the key was checked under. Handlers
// store their result under the same scope.
func GetIdempotencyScope(c *gin.Context) string {
	if s, ok := c.Value(ctxKeyIdemScope).(string); ok {
		return s
	}
	return DefaultScope(c)
}

// IsReplay reports whether a stored result exists for this request.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// ScopeFunc names the operation a key applies to.
type ScopeFunc func(*gin.Context) string

// DefaultScope is "<last static route segment>:<:id param>", for example
// "messages:<child id>" for POST /children/:id/messages. The same key may be
// reused in different rooms.
func DefaultScope(c *gin.Context) string {
	segs := strings.Split(strings.Trim(c.FullPath(), "/"), "/")
	name := ""
	for i := len(segs) - 1; i >= 0; i-- {
		if s := segs[i]; s != "" && !strings.HasPrefix(s, ":") && !strings.HasPrefix(s, "*") {
			name = s
			break
		}
	}
	return name + ":" + c.Param("id")
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; defaults to 200.
	MaxLen int
	// Pattern restricts key characters; defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scope defaults to DefaultScope.
	Scope ScopeFunc
}

// IdempotencyLookup reports whether an unexpired result exists for
// (userID, scope, key). Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates Idempotency-Key on POST, PUT and PATCH,
// stashes key and scope, and flags replays so the rate limiter lets them
// through. Serving the stored row is left to the handler. Must run after
// Auth.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	scopeOf := opts.Scope
	if scopeOf == nil {
		scopeOf = DefaultScope
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortAuth(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}

		scope := scopeOf(c)
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)

		if lookup != nil {
			uid := asString(c.Value(ctxKeyUserID))
			if exists, err := lookup(c.Request.Context(), uid, scope, key, time.Now().UTC()); err == nil && exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func unsafeMethod(m string) bool {
	return m == http.MethodPost || m == http.MethodPut || m == http.MethodPatch
}
