package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Profile is the display identity of a user.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// RowRef addresses one row of a collection.
type RowRef struct {
	Key Key
	ID  string
}

// Remote is the server side of the cache.
type Remote interface {
	FetchRows(ctx context.Context, key Key) ([]Record, error)
	InsertRow(ctx context.Context, key Key, payload map[string]any) (Record, error)
	UpdateRow(ctx context.Context, ref RowRef, patch map[string]any) (Record, error)
	FetchProfile(ctx context.Context, userID string) (Profile, error)
}

// ErrUnsupported is returned for operations a resource does not offer.
var ErrUnsupported = errors.New("livesync: operation not supported for resource")

// Error is a failed API call decoded from the server's error envelope.
type Error struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("livesync: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("livesync: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *Error) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// AsError unwraps an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// HTTPRemote talks to the REST API.
type HTTPRemote struct {
	baseURL string
	reads   *resty.Client
	writes  *resty.Client
	// PageSize is the page size used when loading collections.
	PageSize int
	// MaxPages bounds how many pages one load may fetch.
	MaxPages int
}

// RemoteOption tunes an HTTPRemote.
type RemoteOption func(*resty.Client)

// WithHTTPClient routes requests through hc (tests, custom transports).
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(c *resty.Client) {
		if hc.Transport != nil {
			c.SetTransport(hc.Transport)
		}
		if hc.Timeout > 0 {
			c.SetTimeout(hc.Timeout)
		}
	}
}

// WithRetryWait sets the retry backoff bounds.
func WithRetryWait(lo, hi time.Duration) RemoteOption {
	return func(c *resty.Client) {
		c.SetRetryWaitTime(lo).SetRetryMaxWaitTime(hi)
	}
}

// NewHTTPRemote returns a client for the API rooted at baseURL (for example
// "https://api.example.com/api/v1") authenticating with token.
//
// Reads are retried up to three times on transport errors, 5xx and 429.
// Writes are retried at most once (see write) and carry an Idempotency-Key,
// so a retried write cannot produce a second row.
func NewHTTPRemote(baseURL, token string, opts ...RemoteOption) *HTTPRemote {
	build := func(retries int) *resty.Client {
		c := resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15*time.Second).
			SetRetryCount(retries).
			SetRetryWaitTime(200*time.Millisecond).
			SetRetryMaxWaitTime(2*time.Second).
			AddRetryCondition(transient).
			SetHeader("Accept", "application/json")
		if token != "" {
			c.SetAuthToken(token)
		}
		for _, opt := range opts {
			opt(c)
		}
		return c
	}
	return &HTTPRemote{baseURL: baseURL, reads: build(3), writes: build(0), PageSize: 100, MaxPages: 20}
}

// transient is the retry condition shared by both clients.
func transient(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil && r.Request.Context().Err() != nil {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if r == nil {
		return false
	}
	return r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests
}

// Probe checks that the server answers /health within five seconds. The
// health route lives at the host root, outside the API prefix.
func (h *HTTPRemote) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	u, err := url.Parse(h.baseURL)
	if err != nil {
		return fmt.Errorf("livesync: base url: %w", err)
	}
	u.Path = "/health"
	resp, err := h.reads.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return fmt.Errorf("livesync: probe: %w", err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	return nil
}

// listPath returns the collection path and the JSON field holding its rows.
func listPath(key Key) (path string, field string, query url.Values, err error) {
	child := url.PathEscape(key.ChildID)
	query = url.Values{}
	switch key.Resource {
	case ResourceLogs:
		return "/children/" + child + "/logs", "logs", query, nil
	case ResourceMessages:
		return "/children/" + child + "/messages", "messages", query, nil
	case ResourceNotifications:
		if key.ChildID != "" {
			query.Set("child_id", key.ChildID)
		}
		return "/notifications", "notifications", query, nil
	case ResourceMilestones:
		return "/children/" + child + "/milestones", "milestones", query, nil
	}
	return "", "", nil, fmt.Errorf("%w: %s", ErrUnsupported, key.Resource)
}

// FetchRows loads every page of the collection.
func (h *HTTPRemote) FetchRows(ctx context.Context, key Key) ([]Record, error) {
	path, field, query, err := listPath(key)
	if err != nil {
		return nil, err
	}
	paged := key.Resource != ResourceMilestones

	var out []Record
	for page := 1; page <= h.MaxPages; page++ {
		req := h.reads.R().SetContext(ctx).SetError(&Error{})
		if paged {
			query.Set("page", strconv.Itoa(page))
			query.Set("page_size", strconv.Itoa(h.PageSize))
		}
		req.SetQueryParamsFromValues(query)

		resp, err := req.Get(path)
		if err != nil {
			return nil, fmt.Errorf("livesync: fetch %s: %w", key, err)
		}
		if resp.IsError() {
			return nil, decodeError(resp)
		}

		var body map[string]json.RawMessage
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return nil, fmt.Errorf("livesync: decode %s: %w", key, err)
		}
		var rows []Record
		if raw, ok := body[field]; ok {
			if err := json.Unmarshal(raw, &rows); err != nil {
				return nil, fmt.Errorf("livesync: decode %s: %w", key, err)
			}
		}
		out = append(out, rows...)

		if !paged {
			break
		}
		var p struct {
			HasNext bool `json:"has_next"`
		}
		if raw, ok := body["pagination"]; ok {
			_ = json.Unmarshal(raw, &p)
		}
		if !p.HasNext {
			break
		}
	}
	return out, nil
}

// InsertRow creates a log or message. payload["client_ref"] doubles as the
// Idempotency-Key.
func (h *HTTPRemote) InsertRow(ctx context.Context, key Key, payload map[string]any) (Record, error) {
	var path string
	child := url.PathEscape(key.ChildID)
	switch key.Resource {
	case ResourceLogs:
		path = "/children/" + child + "/logs"
	case ResourceMessages:
		path = "/children/" + child + "/messages"
	default:
		return Record{}, fmt.Errorf("%w: insert %s", ErrUnsupported, key.Resource)
	}

	ref, _ := payload["client_ref"].(string)
	return h.write(ctx, http.MethodPost, path, payload, ref)
}

// UpdateRow patches a notification or writes a milestone status.
func (h *HTTPRemote) UpdateRow(ctx context.Context, ref RowRef, patch map[string]any) (Record, error) {
	switch ref.Key.Resource {
	case ResourceNotifications:
		return h.write(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(ref.ID), patch, "")
	case ResourceMilestones:
		return h.write(ctx, http.MethodPut, "/children/"+url.PathEscape(ref.Key.ChildID)+"/milestones/"+url.PathEscape(ref.ID), patch, "")
	}
	return Record{}, fmt.Errorf("%w: update %s", ErrUnsupported, ref.Key.Resource)
}

// write sends a mutation, retrying once after the client's retry wait when
// the first attempt fails transiently.
func (h *HTTPRemote) write(ctx context.Context, method, path string, body any, idemKey string) (Record, error) {
	var (
		resp *resty.Response
		err  error
	)
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Record{}, ctx.Err()
			case <-time.After(h.writes.RetryWaitTime):
			}
		}
		req := h.writes.R().SetContext(ctx).SetBody(body).SetError(&Error{})
		if idemKey != "" {
			req.SetHeader("Idempotency-Key", idemKey)
		}
		resp, err = req.Execute(method, path)
		if !transient(resp, err) {
			break
		}
	}
	return h.row(resp, err)
}

// FetchProfile loads a user's display name.
func (h *HTTPRemote) FetchProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	resp, err := h.reads.R().SetContext(ctx).SetResult(&p).SetError(&Error{}).
		Get("/profiles/" + url.PathEscape(userID))
	if err != nil {
		return Profile{}, fmt.Errorf("livesync: fetch profile: %w", err)
	}
	if resp.IsError() {
		return Profile{}, decodeError(resp)
	}
	return p, nil
}

func (h *HTTPRemote) row(resp *resty.Response, err error) (Record, error) {
	if err != nil {
		return Record{}, fmt.Errorf("livesync: request: %w", err)
	}
	if resp.IsError() {
		return Record{}, decodeError(resp)
	}
	return DecodeRecord(resp.Body())
}

// decodeError builds an *Error from a failed response. Bodies that are not
// the API envelope keep the status text as message.
func decodeError(resp *resty.Response) error {
	e := &Error{}
	if v, ok := resp.Error().(*Error); ok && v != nil {
		e = v
	} else {
		_ = json.Unmarshal(resp.Body(), e)
	}
	e.Status = resp.StatusCode()
	if e.Message == "" {
		e.Message = http.StatusText(e.Status)
	}
	return e
}
