package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// Context keys set by Auth.
const (
	ctxKeyUserID   = "userID"
	ctxKeyIdentity = "identity"
)

// Development headers, trusted only when no JWT secret is configured.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderUserName  = "X-User-Name"
	HeaderUserEmail = "X-User-Email"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   domain.Role
	Name   string
	Email  string
}

// Claims is the identity provider's token payload. The user id is the
// registered "sub" claim.
type Claims struct {
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// RoleLookup returns the role stored on the caller's profile. It reports
// ok=false when the profile does not exist yet or has no role chosen.
type RoleLookup func(ctx context.Context, userID string) (role domain.Role, ok bool, err error)

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret is the HS256 key. When empty, X-User-* headers are trusted.
	Secret []byte
	// Roles resolves the stored profile role, which wins over the token claim.
	Roles RoleLookup
	// QueryToken also accepts ?access_token= (browsers cannot set headers on
	// websocket upgrades).
	QueryToken bool
}

var errMissingToken = errors.New("missing bearer token")

// Auth authenticates the caller and stores an Identity plus the "userID"
// key read by logging, idempotency and rate limiting.
func Auth(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			id  Identity
			err error
		)
		if len(opts.Secret) == 0 {
			id, err = identityFromHeaders(c)
		} else {
			id, err = identityFromToken(c, opts.Secret, opts.QueryToken)
		}
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		if opts.Roles != nil {
			role, ok, lerr := opts.Roles(c.Request.Context(), id.UserID)
			if lerr != nil {
				LoggerFrom(c).Warn().Err(lerr).Msg("profile role lookup")
			} else if ok {
				id.Role = role
			}
		}
		if !id.Role.Valid() {
			id.Role = domain.RoleParent
		}

		c.Set(ctxKeyUserID, id.UserID)
		c.Set(ctxKeyIdentity, id)
		enrichLogger(c, func(lc zerolog.Context) zerolog.Context {
			return lc.Str("user_id", id.UserID).Str("role", string(id.Role))
		})
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// SignToken issues an HS256 token for id. The server never issues tokens in
// production; tests and the feedtail CLI use it against a local secret.
func SignToken(secret []byte, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:  string(id.Role),
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func identityFromToken(c *gin.Context, secret []byte, allowQuery bool) (Identity, error) {
	raw := bearerToken(c.GetHeader("Authorization"))
	if raw == "" && allowQuery {
		raw = strings.TrimSpace(c.Query("access_token"))
	}
	if raw == "" {
		return Identity{}, errMissingToken
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, err
	}
	if !tok.Valid || strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	return Identity{
		UserID: claims.Subject,
		Role:   domain.Role(claims.Role),
		Name:   claims.Name,
		Email:  claims.Email,
	}, nil
}

func identityFromHeaders(c *gin.Context) (Identity, error) {
	uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if uid == "" {
		return Identity{}, errMissingToken
	}
	return Identity{
		UserID: uid,
		Role:   domain.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))),
		Name:   strings.TrimSpace(c.GetHeader(HeaderUserName)),
		Email:  strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
	}, nil
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// abortAuth writes the shared error envelope. Middleware cannot import the
// handlers package, so the shape is repeated here.
func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
