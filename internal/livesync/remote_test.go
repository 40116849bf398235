package livesync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRemote(t *testing.T, h http.Handler) *HTTPRemote {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPRemote(srv.URL+"/api/v1", "tok", WithRetryWait(time.Millisecond, 2*time.Millisecond))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPRemote_FetchRowsFollowsPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/children/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("page_size"))
		switch r.URL.Query().Get("page") {
		case "1":
			writeJSON(w, 200, map[string]any{
				"messages":   []map[string]any{{"id": "m1", "created_at": t0}, {"id": "m2", "created_at": t0}},
				"pagination": map[string]any{"page": 1, "has_next": true},
			})
		default:
			writeJSON(w, 200, map[string]any{
				"messages":   []map[string]any{{"id": "m3", "created_at": t0, "author_name": "Ben"}},
				"pagination": map[string]any{"page": 2, "has_next": false},
			})
		}
	})
	rem := newTestRemote(t, mux)
	rem.PageSize = 2

	rows, err := rem.FetchRows(context.Background(), Key{Resource: ResourceMessages, ChildID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(rows))
	assert.Equal(t, "Ben", rows[2].AuthorName)
}

func TestHTTPRemote_NotificationsAndMilestonePaths(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c1", r.URL.Query().Get("child_id"))
		writeJSON(w, 200, map[string]any{"notifications": []map[string]any{{"id": "n1", "read": false}}})
	})
	mux.HandleFunc("PATCH /api/v1/notifications/n1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"id": "n1", "read": true})
	})
	mux.HandleFunc("GET /api/v1/children/c1/milestones", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("page"))
		writeJSON(w, 200, map[string]any{"milestones": []map[string]any{{"id": "m-walk", "title": "Walks", "status": "not_yet"}}})
	})
	mux.HandleFunc("PUT /api/v1/children/c1/milestones/m-walk", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, 200, map[string]any{"child_id": "c1", "milestone_id": "m-walk", "status": body["status"]})
	})
	rem := newTestRemote(t, mux)
	ctx := context.Background()

	notes, err := rem.FetchRows(ctx, Key{Resource: ResourceNotifications, ChildID: "c1"})
	require.NoError(t, err)
	require.Len(t, notes, 1)

	n, err := rem.UpdateRow(ctx, RowRef{Key: Key{Resource: ResourceNotifications, ChildID: "c1"}, ID: "n1"}, map[string]any{"read": true})
	require.NoError(t, err)
	assert.True(t, n.Read)

	ms, err := rem.FetchRows(ctx, Key{Resource: ResourceMilestones, ChildID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "Walks", ms[0].Str("title"))

	m, err := rem.UpdateRow(ctx, RowRef{Key: Key{Resource: ResourceMilestones, ChildID: "c1"}, ID: "m-walk"}, map[string]any{"status": "achieved"})
	require.NoError(t, err)
	assert.Equal(t, "m-walk", m.ID)
	assert.Equal(t, "achieved", m.Str("status"))

	_, err = rem.InsertRow(ctx, Key{Resource: ResourceNotifications, ChildID: "c1"}, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = rem.UpdateRow(ctx, RowRef{Key: Key{Resource: ResourceLogs, ChildID: "c1"}, ID: "l1"}, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestHTTPRemote_DecodesErrorEnvelopeWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	rem := newTestRemote(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusForbidden, map[string]string{"request_id": "rq-1", "code": "forbidden", "message": "you do not have access to this resource"})
	}))

	_, err := rem.FetchRows(context.Background(), Key{Resource: ResourceLogs, ChildID: "c1"})
	e, ok := AsError(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, http.StatusForbidden, e.Status)
	assert.Equal(t, "forbidden", e.Code)
	assert.Equal(t, "rq-1", e.RequestID)
	assert.False(t, e.Temporary())
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPRemote_RetriesReadsThreeTimes(t *testing.T) {
	var calls atomic.Int32
	rem := newTestRemote(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"code": "unavailable", "message": "down"})
	}))

	_, err := rem.FetchRows(context.Background(), Key{Resource: ResourceLogs, ChildID: "c1"})
	e, ok := AsError(err)
	require.True(t, ok, "err = %v", err)
	assert.True(t, e.Temporary())
	assert.Equal(t, int32(4), calls.Load())
}

func TestHTTPRemote_MutationsRetryOnceWithIdempotencyKey(t *testing.T) {
	var calls atomic.Int32
	var keys []string
	rem := newTestRemote(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		if n == 1 {
			writeJSON(w, http.StatusBadGateway, map[string]string{"code": "upstream", "message": "bad gateway"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": "msg-55", "user_id": "u-ana", "client_ref": "temp-1000", "content": "Hello"})
	}))

	got, err := rem.InsertRow(context.Background(), Key{Resource: ResourceMessages, ChildID: "c1"},
		map[string]any{"content": "Hello", "client_ref": "temp-1000"})
	require.NoError(t, err)
	assert.Equal(t, "msg-55", got.ID)
	assert.Equal(t, "temp-1000", got.ClientRef)
	assert.Equal(t, []string{"temp-1000", "temp-1000"}, keys)

	calls.Store(10)
	_, err = rem.InsertRow(context.Background(), Key{Resource: ResourceLogs, ChildID: "c1"}, map[string]any{"title": "x"})
	require.NoError(t, err)
}

func TestHTTPRemote_MutationGivesUpAfterOneRetry(t *testing.T) {
	var calls atomic.Int32
	rem := newTestRemote(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "internal_error", "message": "boom"})
	}))
	_, err := rem.InsertRow(context.Background(), Key{Resource: ResourceMessages, ChildID: "c1"}, map[string]any{"content": "x"})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPRemote_FetchProfileAndProbe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/profiles/u-ben", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"id": "u-ben", "name": "Ben", "role": "teacher"})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	rem := newTestRemote(t, mux)
	ctx := context.Background()

	p, err := rem.FetchProfile(ctx, "u-ben")
	require.NoError(t, err)
	assert.Equal(t, Profile{ID: "u-ben", Name: "Ben", Role: "teacher"}, p)
	require.NoError(t, rem.Probe(ctx))

	_, err = rem.FetchProfile(ctx, "ghost")
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, e.Status)
}

func TestHTTPRemote_ProbeTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	rem := NewHTTPRemote(srv.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.Error(t, rem.Probe(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)
}
