package livesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/parentrak/parentrak-backend/internal/realtime"
)

// Channel is an open push feed for one collection.
type Channel interface {
	// Next blocks for the next event. It fails once the feed is gone.
	Next(ctx context.Context) (realtime.Event, error)
	Close() error
}

// Dialer opens push feeds.
type Dialer interface {
	Dial(ctx context.Context, key Key) (Channel, error)
}

// State is the lifecycle position of a Handle.
type State int32

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateSubscribed
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	}
	return "unsubscribed"
}

// Outcome says what applying one pushed event did to the cache.
type Outcome int

const (
	OutcomeAppended Outcome = iota
	OutcomeUpdated
	OutcomeDuplicate
	OutcomeOwnEcho
	OutcomeIgnored
)

// Subscriber feeds pushed rows into a Cache.
type Subscriber struct {
	Cache  *Cache
	Dialer Dialer
	// Remote resolves author names missing from pushed rows. Optional.
	Remote Remote
	// UserID is the local user; their own echoes are left to the Mutator.
	UserID string
	Log    zerolog.Logger
	// OnState observes every state transition of every handle. Optional.
	OnState func(key Key, s State)

	mu    sync.Mutex
	names map[string]string
}

// Handle is one live subscription.
type Handle struct {
	key    Key
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
	ready  chan struct{}
	once   sync.Once

	errMu sync.Mutex
	err   error
}

// Key returns the collection the handle feeds.
func (h *Handle) Key() Key { return h.key }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Ready is closed once the dial has finished, whether it succeeded or not.
func (h *Handle) Ready() <-chan struct{} { return h.ready }

// Done is closed once the subscription loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the channel error that ended the subscription, if any.
func (h *Handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

// Release stops the subscription and waits for its loop to exit. It is safe
// to call more than once and from any goroutine.
func (h *Handle) Release() {
	h.once.Do(h.cancel)
	<-h.done
}

// Subscribe opens the push feed for key in the background. The handle lives
// until Release, until ctx ends or until the channel fails; there is no
// automatic resubscription.
func (s *Subscriber) Subscribe(ctx context.Context, key Key) *Handle {
	return s.subscribe(ctx, key, nil)
}

// subscribe is Subscribe with a gate: once subscribed, the loop leaves
// events queued on the channel until gate is closed. A nil gate is open.
func (s *Subscriber) subscribe(ctx context.Context, key Key, gate <-chan struct{}) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{key: key, cancel: cancel, done: make(chan struct{}), ready: make(chan struct{})}
	s.set(h, StateSubscribing)
	go s.run(ctx, h, gate)
	return h
}

func (s *Subscriber) set(h *Handle, st State) {
	h.state.Store(int32(st))
	if s.OnState != nil {
		s.OnState(h.key, st)
	}
}

func (s *Subscriber) run(ctx context.Context, h *Handle, gate <-chan struct{}) {
	defer close(h.done)
	markReady := sync.OnceFunc(func() { close(h.ready) })
	defer markReady()
	lg := s.Log.With().Str("key", h.key.String()).Logger()

	end := func(err error) {
		if err != nil && ctx.Err() == nil {
			h.errMu.Lock()
			h.err = err
			h.errMu.Unlock()
			lg.Warn().Err(err).Msg("feed failed")
			s.set(h, StateErrored)
		} else {
			s.set(h, StateClosed)
		}
		s.set(h, StateUnsubscribed)
	}

	ch, err := s.Dialer.Dial(ctx, h.key)
	if err != nil {
		end(err)
		return
	}
	defer ch.Close()
	s.set(h, StateSubscribed)
	markReady()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			end(nil)
			return
		}
	}
	for {
		ev, err := ch.Next(ctx)
		if err != nil {
			end(err)
			return
		}
		out := s.Apply(ctx, h.key, ev)
		lg.Debug().Str("type", ev.Type).Int("outcome", int(out)).Msg("event applied")
	}
}

// Apply folds one pushed event into the cache.
//
// Inserts follow the echo rule: a row authored by the local user that
// answers one of their in-flight placeholders is left for the Mutator to
// settle. Any other new row gets its author name filled in when missing and
// is appended unless its id is already cached. Updates replace the cached
// row with the same id.
func (s *Subscriber) Apply(ctx context.Context, key Key, ev realtime.Event) Outcome {
	row, err := DecodeRecord(ev.Row)
	if err != nil || row.ID == "" {
		s.Log.Warn().Err(err).Str("key", key.String()).Msg("undecodable event dropped")
		return OutcomeIgnored
	}

	switch ev.Type {
	case realtime.EventUpdate:
		if s.Cache.Replace(key, ByID(row.ID), row) {
			return OutcomeUpdated
		}
		return OutcomeIgnored
	case realtime.EventInsert:
	default:
		return OutcomeIgnored
	}

	if _, ok := s.Cache.Find(key, ByID(row.ID)); ok {
		return OutcomeDuplicate
	}
	if row.AuthorName == "" && row.UserID != "" && row.UserID != s.UserID && key.Resource != ResourceNotifications {
		row = s.withAuthor(ctx, row)
	}
	switch s.Cache.applyPush(key, row, s.UserID) {
	case pushAppended:
		return OutcomeAppended
	case pushOwnEcho:
		return OutcomeOwnEcho
	}
	return OutcomeDuplicate
}

// withAuthor fills in the author's display name with one profile fetch.
// Names are remembered for the subscriber's lifetime.
func (s *Subscriber) withAuthor(ctx context.Context, row Record) Record {
	s.mu.Lock()
	name, ok := s.names[row.UserID]
	s.mu.Unlock()
	if !ok {
		if s.Remote == nil {
			return row
		}
		p, err := s.Remote.FetchProfile(ctx, row.UserID)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.Log.Debug().Err(err).Str("user_id", row.UserID).Msg("author lookup failed")
			}
			return row
		}
		name = p.Name
		s.mu.Lock()
		if s.names == nil {
			s.names = make(map[string]string)
		}
		s.names[row.UserID] = name
		s.mu.Unlock()
	}
	row.AuthorName = name
	if row.Fields == nil {
		row.Fields = map[string]any{}
	}
	row.Fields["author_name"] = name
	return row
}
