package middleware

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if asString(c.Value(requestIDKey)) == "" {
			t.Fatalf("request id missing from context")
		}
		c.Status(http.StatusOK)
	})

	if w := do(r, http.MethodGet, "/rid", nil, nil); w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}
	w := do(r, http.MethodGet, "/rid", nil, map[string]string{"x-request-id": "abc-123"})
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
}

type boom struct{}

func (boom) Error() string { return "boom" }

func TestLogger_LevelsRouteAndCaller(t *testing.T) {
	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/children/:id", Auth(AuthOptions{}), func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.String(http.StatusOK, "ok")
	})
	r.GET("/err", func(c *gin.Context) {
		_ = c.Error(boom{})
		c.Status(http.StatusBadRequest)
	})

	do(r, http.MethodGet, "/children/c1", nil, map[string]string{HeaderUserID: "u1", HeaderUserRole: "teacher"})
	do(r, http.MethodGet, "/missing", nil, nil)
	do(r, http.MethodGet, "/err", nil, nil)

	logs := buf.String()
	for _, want := range []string{
		`"path":"/children/:id"`,
		`"user_id":"u1"`,
		`"role":"teacher"`,
		`"message":"inside"`,
		`"level":"warn"`,
		`"path":"/missing"`,
		`"level":"error"`,
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("logs missing %s:\n%s", want, logs)
		}
	}
}

func TestRecovery_PanicBecomesJSON500(t *testing.T) {
	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	r.GET("/panic", func(*gin.Context) { panic("kaboom") })
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("after write")
	})

	w := do(r, http.MethodGet, "/panic", nil, map[string]string{requestIDHeader: "rid-1"})
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), `"request_id":"rid-1"`) {
		t.Fatalf("panic response = %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged")
	}

	w = do(r, http.MethodGet, "/late", nil, nil)
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("no envelope after a write, got %s", w.Body.String())
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	c, _ := gin.CreateTestContext(nil)
	if LoggerFrom(c) == nil {
		t.Fatalf("fallback logger is nil")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("max 0 = %q", got)
	}
}
