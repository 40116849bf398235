package livesync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Coalescer merges rapid changes per key and flushes the merged value once
// the key has been quiet for Delay.
type Coalescer[K comparable, V any] struct {
	Delay time.Duration
	Merge func(old, next V) V
	Flush func(ctx context.Context, key K, v V) error
	// OnError receives flush failures. Optional.
	OnError func(key K, err error)

	mu      sync.Mutex
	pending map[K]*coalesced[V]
	// inflight counts flushes running outside mu; idle is signalled when it
	// drops to zero.
	inflight int
	idle     *sync.Cond
	closed   bool
}

type coalesced[V any] struct {
	value V
	timer *time.Timer
}

// Submit merges v into the pending value for key and restarts its timer.
// Submits after Close are dropped.
func (c *Coalescer[K, V]) Submit(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.pending == nil {
		c.pending = make(map[K]*coalesced[V])
	}
	if e, ok := c.pending[key]; ok {
		e.timer.Stop()
		if c.Merge != nil {
			v = c.Merge(e.value, v)
		}
		e.value = v
		e.timer = c.arm(key)
		return
	}
	c.pending[key] = &coalesced[V]{value: v, timer: c.arm(key)}
}

func (c *Coalescer[K, V]) arm(key K) *time.Timer {
	return time.AfterFunc(c.Delay, func() { c.fire(context.Background(), key) })
}

// fire flushes key if it is still pending.
func (c *Coalescer[K, V]) fire(ctx context.Context, key K) {
	c.mu.Lock()
	e, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
		c.inflight++
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	defer func() {
		c.mu.Lock()
		c.inflight--
		if c.inflight == 0 && c.idle != nil {
			c.idle.Broadcast()
		}
		c.mu.Unlock()
	}()
	if err := c.Flush(ctx, key, e.value); err != nil && c.OnError != nil {
		c.OnError(key, err)
	}
}

// Pending returns how many keys wait for a flush.
func (c *Coalescer[K, V]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// FlushAll writes every pending value now and waits for in-flight flushes.
func (c *Coalescer[K, V]) FlushAll(ctx context.Context) {
	c.mu.Lock()
	keys := make([]K, 0, len(c.pending))
	for k, e := range c.pending {
		e.timer.Stop()
		keys = append(keys, k)
	}
	c.mu.Unlock()
	for _, k := range keys {
		c.fire(ctx, k)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idle == nil {
		c.idle = sync.NewCond(&c.mu)
	}
	for c.inflight > 0 {
		c.idle.Wait()
	}
}

// Close flushes what is pending and rejects further submits.
func (c *Coalescer[K, V]) Close(ctx context.Context) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.FlushAll(ctx)
}

// MilestoneChange is a partial milestone edit. Nil fields are unchanged.
type MilestoneChange struct {
	Status *string
	Notes  *string
}

type milestoneKey struct {
	ChildID     string
	MilestoneID string
}

// MilestoneWriter debounces milestone edits so a burst of status and note
// changes becomes one PUT carrying the final state.
type MilestoneWriter struct {
	Cache  *Cache
	Remote Remote
	Notify Notifier
	Log    zerolog.Logger

	c *Coalescer[milestoneKey, MilestoneChange]
}

// NewMilestoneWriter returns a writer flushing after delay of quiet.
func NewMilestoneWriter(cache *Cache, remote Remote, notify Notifier, delay time.Duration, log zerolog.Logger) *MilestoneWriter {
	w := &MilestoneWriter{Cache: cache, Remote: remote, Notify: notify, Log: log}
	w.c = &Coalescer[milestoneKey, MilestoneChange]{
		Delay: delay,
		Merge: func(old, next MilestoneChange) MilestoneChange {
			if next.Status == nil {
				next.Status = old.Status
			}
			if next.Notes == nil {
				next.Notes = old.Notes
			}
			return next
		},
		Flush: w.flush,
		OnError: func(k milestoneKey, err error) {
			w.Log.Warn().Err(err).Str("child_id", k.ChildID).Str("milestone_id", k.MilestoneID).Msg("milestone write failed")
			if w.Notify != nil {
				w.Notify.Error(Key{Resource: ResourceMilestones, ChildID: k.ChildID}, err)
			}
		},
	}
	return w
}

// SetStatus records a status change.
func (w *MilestoneWriter) SetStatus(childID, milestoneID, status string) {
	w.c.Submit(milestoneKey{childID, milestoneID}, MilestoneChange{Status: &status})
}

// SetNotes records a notes change.
func (w *MilestoneWriter) SetNotes(childID, milestoneID, notes string) {
	w.c.Submit(milestoneKey{childID, milestoneID}, MilestoneChange{Notes: &notes})
}

// Pending returns how many milestones wait for a write.
func (w *MilestoneWriter) Pending() int { return w.c.Pending() }

// Flush writes every pending change now.
func (w *MilestoneWriter) Flush(ctx context.Context) { w.c.FlushAll(ctx) }

// Close flushes and stops accepting changes.
func (w *MilestoneWriter) Close(ctx context.Context) { w.c.Close(ctx) }

// flush sends the full milestone state, filling fields the burst did not
// touch from the cached row.
func (w *MilestoneWriter) flush(ctx context.Context, k milestoneKey, ch MilestoneChange) error {
	key := Key{Resource: ResourceMilestones, ChildID: k.ChildID}
	cur, _ := w.Cache.Find(key, ByID(k.MilestoneID))

	status := cur.Str("status")
	if ch.Status != nil {
		status = *ch.Status
	}
	if status == "" {
		status = "not_yet"
	}
	notes := cur.Str("notes")
	if ch.Notes != nil {
		notes = *ch.Notes
	}

	row, err := w.Remote.UpdateRow(ctx, RowRef{Key: key, ID: k.MilestoneID},
		map[string]any{"status": status, "notes": notes})
	if err != nil {
		return err
	}
	// Keep catalog fields (title, age range) and position of the cached
	// progress row.
	if cur.ID != "" {
		at := cur.CreatedAt
		row = merge(cur, row)
		row.CreatedAt = at
	}
	if !w.Cache.Replace(key, ByID(k.MilestoneID), row) {
		w.Cache.AppendIfAbsent(key, row)
	}
	return nil
}
