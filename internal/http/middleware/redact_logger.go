package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions extends the built-in scrub lists.
type RedactOptions struct {
	// MaskHeaders are replaced by [REDACTED] (case-insensitive), in addition
	// to Authorization, Cookie and Set-Cookie.
	MaskHeaders []string
	// MaskQuery are query parameters replaced by [REDACTED], in addition to
	// access_token.
	MaskQuery []string
}

// UUIDs go before phones: the phone pattern would eat UUID digit groups.
var (
	redactUUID  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	redactEmail = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	redactPhone = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Redact scrubs ids, email addresses and phone numbers from s.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = redactUUID.ReplaceAllString(s, "[REDACTED:id]")
	s = redactEmail.ReplaceAllString(s, "[REDACTED:email]")
	return redactPhone.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger is Logger with PII scrubbing: it never logs bodies, masks
// credentials in headers and query strings, and redacts child ids, emails
// and phone numbers everywhere else. It also attaches the request-scoped
// logger used by handlers.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskQuery := lowerSet([]string{"access_token"}, opts.MaskQuery)

	return func(c *gin.Context) {
		start := time.Now()
		rid, _ := c.Get(requestIDKey)
		path := routeOf(c)
		query := redactQuery(c.Request.URL.RawQuery, maskQuery)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = Redact(strings.Join(vv, ", "))
		}

		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		if uid, ok := c.Get(ctxKeyUserID); ok {
			ev = ev.Str("user_id", asString(uid))
		}
		ev.Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", truncate(query, maxQueryLogLength)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

// redactQuery masks credential parameters and scrubs the remaining values.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return Redact(raw)
	}
	for k, vs := range vals {
		_, masked := mask[strings.ToLower(k)]
		for i := range vs {
			if masked {
				vs[i] = "[REDACTED]"
			} else {
				vs[i] = Redact(vs[i])
			}
		}
	}
	// Encode escapes the brackets; logs read better without that.
	out, _ := url.QueryUnescape(vals.Encode())
	return out
}

func lowerSet(base, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, s := range append(base, extra...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}
