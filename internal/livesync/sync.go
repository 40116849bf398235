package livesync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sync wires a cache, a remote and a push feed together for one signed-in
// user.
type Sync struct {
	Cache      *Cache
	Remote     Remote
	Subscriber *Subscriber
	Mutator    *Mutator
	Milestones *MilestoneWriter
	Log        zerolog.Logger
}

// Options configures New.
type Options struct {
	User   Identity
	Notify Notifier
	Log    zerolog.Logger
	// MilestoneDelay is the quiet period before a milestone edit is written;
	// 800ms when zero.
	MilestoneDelay time.Duration
}

// New returns a Sync reading through remote and listening through dialer.
// dialer may be nil for a client without push updates.
func New(remote Remote, dialer Dialer, opts Options) *Sync {
	cache := NewCache()
	delay := opts.MilestoneDelay
	if delay <= 0 {
		delay = 800 * time.Millisecond
	}
	return &Sync{
		Cache:  cache,
		Remote: remote,
		Subscriber: &Subscriber{
			Cache:  cache,
			Dialer: dialer,
			Remote: remote,
			UserID: opts.User.UserID,
			Log:    opts.Log,
		},
		Mutator: &Mutator{
			Cache:  cache,
			Remote: remote,
			User:   opts.User,
			Notify: opts.Notify,
			Log:    opts.Log,
		},
		Milestones: NewMilestoneWriter(cache, remote, opts.Notify, delay, opts.Log),
		Log:        opts.Log,
	}
}

// Load fetches the collection and replaces the cached rows.
func (s *Sync) Load(ctx context.Context, key Key) ([]Record, error) {
	rows, err := s.Remote.FetchRows(ctx, key)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(key, rows)
	return s.Cache.Get(key), nil
}

// Watch opens the push feed, loads the collection and then lets the feed
// apply. Events pushed while the load is in flight stay queued on the feed
// and are applied after it, so none fall in between. The caller owns the
// returned handle and must Release it.
func (s *Sync) Watch(ctx context.Context, key Key) (*Handle, error) {
	if s.Subscriber.Dialer == nil {
		return nil, fmt.Errorf("livesync: no push feed configured")
	}
	gate := make(chan struct{})
	h := s.Subscriber.subscribe(ctx, key, gate)
	select {
	case <-h.Ready():
	case <-ctx.Done():
		h.Release()
		return nil, ctx.Err()
	}
	if h.State() != StateSubscribed {
		h.Release()
		if err := h.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("livesync: feed for %s closed before it opened", key)
	}
	if _, err := s.Load(ctx, key); err != nil {
		h.Release()
		return nil, err
	}
	close(gate)
	return h, nil
}

// SendMessage posts content to the child's message room optimistically.
func (s *Sync) SendMessage(ctx context.Context, childID, content string) (Record, error) {
	_, row, err := s.Mutator.Apply(ctx, Key{Resource: ResourceMessages, ChildID: childID},
		map[string]any{"content": content})
	return row, err
}

// AddLog adds a timeline entry optimistically.
func (s *Sync) AddLog(ctx context.Context, childID, title, description string) (Record, error) {
	_, row, err := s.Mutator.Apply(ctx, Key{Resource: ResourceLogs, ChildID: childID},
		map[string]any{"title": title, "description": description})
	return row, err
}

// MarkRead marks a cached notification read.
func (s *Sync) MarkRead(ctx context.Context, childID, id string) error {
	_, err := s.Mutator.MarkRead(ctx, Key{Resource: ResourceNotifications, ChildID: childID}, id)
	return err
}

// Unread counts unread notifications cached for the child.
func (s *Sync) Unread(childID string) int {
	return s.Cache.Unread(Key{Resource: ResourceNotifications, ChildID: childID})
}

// Close writes pending milestone edits.
func (s *Sync) Close(ctx context.Context) {
	s.Milestones.Close(ctx)
}
