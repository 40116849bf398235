package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

var testSecret = []byte("test-secret")

func identityRouter(opts AuthOptions) *gin.Engine {
	r := gin.New()
	r.Use(Auth(opts))
	r.GET("/me", func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"user": id.UserID, "role": id.Role, "name": id.Name, "ctx_user": c.GetString("userID")})
	})
	return r
}

func TestAuth_BearerToken(t *testing.T) {
	r := identityRouter(AuthOptions{Secret: testSecret})
	tok, err := SignToken(testSecret, Identity{UserID: "u1", Role: domain.RoleDoctor, Name: "Dr. Lee"}, time.Hour)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u1","role":"doctor","name":"Dr. Lee","ctx_user":"u1"}`, w.Body.String())

	// Headers are ignored once a secret is configured.
	w = do(r, http.MethodGet, "/me", nil, map[string]string{HeaderUserID: "u1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"unauthorized"`)
}

func TestAuth_RejectsBadTokens(t *testing.T) {
	r := identityRouter(AuthOptions{Secret: testSecret})
	expired, _ := SignToken(testSecret, Identity{UserID: "u1"}, -time.Minute)
	forged, _ := SignToken([]byte("other"), Identity{UserID: "u1"}, time.Hour)
	noSub, _ := SignToken(testSecret, Identity{}, time.Hour)

	for name, tok := range map[string]string{"expired": expired, "forged": forged, "no subject": noSub, "garbage": "abc"} {
		w := do(r, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + tok})
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
	}
}

func TestAuth_QueryTokenOnlyWhenEnabled(t *testing.T) {
	tok, _ := SignToken(testSecret, Identity{UserID: "u1"}, time.Hour)

	w := do(identityRouter(AuthOptions{Secret: testSecret}), http.MethodGet, "/me?access_token="+tok, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(identityRouter(AuthOptions{Secret: testSecret, QueryToken: true}), http.MethodGet, "/me?access_token="+tok, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_DevHeadersAndProfileRole(t *testing.T) {
	lookup := func(_ context.Context, uid string) (domain.Role, bool, error) {
		switch uid {
		case "onboarded":
			return domain.RoleTeacher, true, nil
		case "broken":
			return "", false, errors.New("db down")
		}
		return "", false, nil
	}
	r := identityRouter(AuthOptions{Roles: lookup})

	w := do(r, http.MethodGet, "/me", nil, map[string]string{HeaderUserID: "onboarded", HeaderUserRole: "admin"})
	assert.Contains(t, w.Body.String(), `"role":"teacher"`, "stored role wins over the claim")

	w = do(r, http.MethodGet, "/me", nil, map[string]string{HeaderUserID: "new", HeaderUserRole: "Doctor", HeaderUserName: "Lee"})
	assert.Contains(t, w.Body.String(), `"role":"doctor"`)
	assert.Contains(t, w.Body.String(), `"name":"Lee"`)

	w = do(r, http.MethodGet, "/me", nil, map[string]string{HeaderUserID: "broken", HeaderUserRole: "nonsense"})
	assert.Contains(t, w.Body.String(), `"role":"parent"`)

	w = do(r, http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type stubChecker map[domain.Feature]bool

func (s stubChecker) Allowed(_ context.Context, _ domain.Role, f domain.Feature) (bool, error) {
	if f == "explode" {
		return false, errors.New("boom")
	}
	return s[f], nil
}

func TestRequireFeatureAndRole(t *testing.T) {
	r := gin.New()
	r.Use(Auth(AuthOptions{}))
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	pc := stubChecker{domain.FeatureViewLogs: true}
	r.GET("/logs", RequireFeature(pc, domain.FeatureViewLogs), ok)
	r.GET("/export", RequireFeature(pc, domain.FeatureExportData), ok)
	r.GET("/explode", RequireFeature(pc, "explode"), ok)
	r.GET("/admin", RequireRole(domain.RoleAdmin), ok)

	h := map[string]string{HeaderUserID: "u1", HeaderUserRole: "teacher"}
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/logs", nil, h).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/export", nil, h).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/explode", nil, h).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", nil, h).Code)
	h[HeaderUserRole] = "admin"
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/admin", nil, h).Code)
}
