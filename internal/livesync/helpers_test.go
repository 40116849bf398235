package livesync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parentrak/parentrak-backend/internal/realtime"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func row(id, user string, at time.Time) Record {
	return Record{ID: id, UserID: user, CreatedAt: at, Fields: map[string]any{"id": id}}
}

// fakeRemote serves rows from memory. insert and update default to
// echoing the payload back as a confirmed row.
type fakeRemote struct {
	mu           sync.Mutex
	rows         map[Key][]Record
	insert       func(ctx context.Context, key Key, payload map[string]any) (Record, error)
	update       func(ctx context.Context, ref RowRef, patch map[string]any) (Record, error)
	profiles     map[string]Profile
	profileCalls int
	updates      []map[string]any
}

func (f *fakeRemote) FetchRows(_ context.Context, key Key) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyRows(f.rows[key]), nil
}

func (f *fakeRemote) InsertRow(ctx context.Context, key Key, payload map[string]any) (Record, error) {
	return f.insert(ctx, key, payload)
}

func (f *fakeRemote) UpdateRow(ctx context.Context, ref RowRef, patch map[string]any) (Record, error) {
	f.mu.Lock()
	f.updates = append(f.updates, patch)
	f.mu.Unlock()
	if f.update != nil {
		return f.update(ctx, ref, patch)
	}
	r := Record{ID: ref.ID, Fields: map[string]any{"id": ref.ID}}
	for k, v := range patch {
		r.Fields[k] = v
	}
	if v, ok := patch["read"].(bool); ok {
		r.Read = v
	}
	return r, nil
}

func (f *fakeRemote) FetchProfile(_ context.Context, userID string) (Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls++
	return f.profiles[userID], nil
}

func (f *fakeRemote) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

// insertEvent builds the push event the server publishes for r.
func insertEvent(t *testing.T, key Key, r Record) realtime.Event {
	t.Helper()
	ev, err := realtime.NewEvent(realtime.EventInsert, string(key.Resource), key.ChildID, r)
	require.NoError(t, err)
	return ev
}

func updateEvent(t *testing.T, key Key, r Record) realtime.Event {
	t.Helper()
	ev, err := realtime.NewEvent(realtime.EventUpdate, string(key.Resource), key.ChildID, r)
	require.NoError(t, err)
	return ev
}

// serverRow is what the API returns for an accepted insert.
func serverRow(id string, user, name string, payload map[string]any, at time.Time) Record {
	ref, _ := payload["client_ref"].(string)
	fields := map[string]any{}
	for k, v := range payload {
		fields[k] = v
	}
	return Record{ID: id, UserID: user, AuthorName: name, ClientRef: ref, CreatedAt: at, Fields: fields}
}

func countBy(rows []Record, user string) int {
	n := 0
	for _, r := range rows {
		if r.UserID == user {
			n++
		}
	}
	return n
}

// chanDialer hands out channels fed from a Go channel.
type chanDialer struct {
	events chan realtime.Event
	err    error
}

func (d *chanDialer) Dial(context.Context, Key) (Channel, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &chanChannel{events: d.events}, nil
}

type chanChannel struct{ events chan realtime.Event }

func (c *chanChannel) Next(ctx context.Context) (realtime.Event, error) {
	select {
	case <-ctx.Done():
		return realtime.Event{}, ctx.Err()
	case ev, ok := <-c.events:
		if !ok {
			return realtime.Event{}, errFeedGone
		}
		return ev, nil
	}
}

func (c *chanChannel) Close() error { return nil }

var errFeedGone = &Error{Status: 0, Message: "feed gone"}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
