package livesync

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PendingState is the lifecycle of one optimistic write.
type PendingState int32

const (
	Pending PendingState = iota
	Confirmed
	RolledBack
)

func (s PendingState) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	}
	return "pending"
}

// PendingWrite tracks one optimistic write. Its state leaves Pending exactly
// once.
type PendingWrite struct {
	CorrelationID string
	Key           Key
	state         atomic.Int32
}

// State returns the current state.
func (p *PendingWrite) State() PendingState { return PendingState(p.state.Load()) }

func (p *PendingWrite) settle(to PendingState) bool {
	return p.state.CompareAndSwap(int32(Pending), int32(to))
}

// ErrNotCached is returned when a row to update is not in the cache.
var ErrNotCached = errors.New("livesync: row not cached")

// Notifier surfaces failed writes to the user.
type Notifier interface {
	Error(key Key, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(key Key, err error)

func (f NotifierFunc) Error(key Key, err error) { f(key, err) }

// Identity is the local user.
type Identity struct {
	UserID string
	Name   string
}

// Mutator applies writes to the cache before the server confirms them.
type Mutator struct {
	Cache  *Cache
	Remote Remote
	User   Identity
	Notify Notifier
	Log    zerolog.Logger
	// Now is the clock used for temp ids and placeholder timestamps.
	Now func() time.Time

	mu     sync.Mutex
	lastID int64
}

func (m *Mutator) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// tempID returns temp-<unix-millis>, bumped past the last id handed out so
// concurrent writes in the same millisecond stay distinct.
func (m *Mutator) tempID(at time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := at.UnixMilli()
	if id <= m.lastID {
		id = m.lastID + 1
	}
	m.lastID = id
	return TempPrefix + strconv.FormatInt(id, 10)
}

// Apply inserts fields into the collection under key optimistically.
//
// A placeholder carrying the local user's identity is cached at once and
// the write is sent with the placeholder id as client_ref. On success the
// placeholder becomes the server row (or disappears when a push already
// delivered it). On failure the placeholder is removed and Notify receives
// the error once. The returned error is informational; the cache is already
// consistent.
func (m *Mutator) Apply(ctx context.Context, key Key, fields map[string]any) (*PendingWrite, Record, error) {
	at := m.now()
	temp := m.tempID(at)
	p := &PendingWrite{CorrelationID: temp, Key: key}

	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["client_ref"] = temp

	placeholder := Record{
		ID:         temp,
		UserID:     m.User.UserID,
		AuthorName: m.User.Name,
		ClientRef:  temp,
		CreatedAt:  at,
		Fields:     payload,
	}
	m.Cache.AppendIfAbsent(key, placeholder)

	row, err := m.Remote.InsertRow(ctx, key, payload)
	if err != nil {
		m.Cache.Remove(key, ByID(temp))
		if p.settle(RolledBack) {
			m.fail(key, err)
		}
		return p, Record{}, err
	}
	m.Cache.Reconcile(key, temp, row)
	p.settle(Confirmed)
	return p, row, nil
}

// MarkRead flips a notification's read flag locally and confirms it with
// the server, restoring the previous row if the server refuses.
func (m *Mutator) MarkRead(ctx context.Context, key Key, id string) (*PendingWrite, error) {
	p := &PendingWrite{CorrelationID: id, Key: key}
	prev, ok := m.Cache.Find(key, ByID(id))
	if !ok {
		p.settle(RolledBack)
		return p, ErrNotCached
	}
	if prev.Read {
		p.settle(Confirmed)
		return p, nil
	}

	next := prev.clone()
	next.Read = true
	if next.Fields != nil {
		next.Fields["read"] = true
	}
	m.Cache.Replace(key, ByID(id), next)

	row, err := m.Remote.UpdateRow(ctx, RowRef{Key: key, ID: id}, map[string]any{"read": true})
	if err != nil {
		m.Cache.Replace(key, ByID(id), prev)
		if p.settle(RolledBack) {
			m.fail(key, err)
		}
		return p, err
	}
	m.Cache.Replace(key, ByID(id), merge(next, row))
	p.settle(Confirmed)
	return p, nil
}

func (m *Mutator) fail(key Key, err error) {
	m.Log.Warn().Err(err).Str("key", key.String()).Msg("optimistic write rolled back")
	if m.Notify != nil {
		m.Notify.Error(key, err)
	}
}
