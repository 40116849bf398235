package livesync

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// caregiver is one signed-in client: its own cache, subscriber and mutator.
type caregiver struct {
	cache *Cache
	sub   *Subscriber
	mut   *Mutator
	errs  atomic.Int32
}

func newCaregiver(remote Remote, user Identity, now func() time.Time) *caregiver {
	cg := &caregiver{cache: NewCache()}
	cg.sub = &Subscriber{Cache: cg.cache, Remote: remote, UserID: user.UserID, Log: zerolog.Nop()}
	cg.mut = &Mutator{
		Cache:  cg.cache,
		Remote: remote,
		User:   user,
		Notify: NotifierFunc(func(Key, error) { cg.errs.Add(1) }),
		Log:    zerolog.Nop(),
		Now:    now,
	}
	return cg
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestMutator_HelloScenario_PushBeforeResponse(t *testing.T) {
	ctx := context.Background()
	key := Key{Resource: ResourceMessages, ChildID: "c1"}
	ana := Identity{UserID: "u-ana", Name: "Ana"}

	remote := &fakeRemote{profiles: map[string]Profile{"u-ana": {ID: "u-ana", Name: "Ana"}}}
	a := newCaregiver(remote, ana, fixedClock(1000))
	b := newCaregiver(remote, Identity{UserID: "u-ben", Name: "Ben"}, nil)

	var pushed Record
	remote.insert = func(ctx context.Context, k Key, payload map[string]any) (Record, error) {
		assert.Equal(t, "temp-1000", payload["client_ref"])
		// Placeholder is visible while the write is in flight.
		rows := a.cache.Get(k)
		require.Len(t, rows, 1)
		assert.Equal(t, "temp-1000", rows[0].ID)
		assert.Equal(t, "Ana", rows[0].AuthorName)

		pushed = serverRow("msg-55", "u-ana", "", payload, time.UnixMilli(1500))
		ev := insertEvent(t, k, pushed)
		assert.Equal(t, OutcomeOwnEcho, a.sub.Apply(ctx, k, ev))
		assert.Equal(t, OutcomeAppended, b.sub.Apply(ctx, k, ev))
		return pushed, nil
	}

	p, got, err := a.mut.Apply(ctx, key, map[string]any{"content": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, Confirmed, p.State())
	assert.Equal(t, "msg-55", got.ID)

	assert.Equal(t, []string{"msg-55"}, ids(a.cache.Get(key)))
	bRows := b.cache.Get(key)
	require.Len(t, bRows, 1)
	assert.Equal(t, "msg-55", bRows[0].ID)
	assert.Equal(t, "Ana", bRows[0].AuthorName)
	assert.Equal(t, "Hello", bRows[0].Str("content"))
	assert.Equal(t, 1, remote.profileCalls)
	assert.Zero(t, a.errs.Load())
}

func TestMutator_HelloScenario_ResponseBeforePush(t *testing.T) {
	ctx := context.Background()
	key := Key{Resource: ResourceMessages, ChildID: "c1"}
	remote := &fakeRemote{}
	a := newCaregiver(remote, Identity{UserID: "u-ana", Name: "Ana"}, fixedClock(1000))

	var confirmed Record
	remote.insert = func(_ context.Context, _ Key, payload map[string]any) (Record, error) {
		confirmed = serverRow("msg-55", "u-ana", "Ana", payload, time.UnixMilli(1500))
		return confirmed, nil
	}
	_, _, err := a.mut.Apply(ctx, key, map[string]any{"content": "Hello"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, a.sub.Apply(ctx, key, insertEvent(t, key, confirmed)))
	assert.Equal(t, []string{"msg-55"}, ids(a.cache.Get(key)))
}

func TestMutator_OwnRowFromAnotherDeviceDuringSendIsKept(t *testing.T) {
	ctx := context.Background()
	key := Key{Resource: ResourceLogs, ChildID: "c1"}
	remote := &fakeRemote{}
	a := newCaregiver(remote, Identity{UserID: "u-ana", Name: "Ana"}, fixedClock(1000))

	remote.insert = func(ctx context.Context, k Key, payload map[string]any) (Record, error) {
		// Same user, written elsewhere: no correlation id.
		doc := row("log-doc", "u-ana", time.UnixMilli(1200))
		doc.AuthorName = "Ana"
		assert.Equal(t, OutcomeAppended, a.sub.Apply(ctx, k, insertEvent(t, k, doc)))
		return serverRow("log-55", "u-ana", "Ana", payload, time.UnixMilli(1500)), nil
	}
	_, got, err := a.mut.Apply(ctx, key, map[string]any{"title": "Nap"})
	require.NoError(t, err)
	assert.Equal(t, "log-55", got.ID)

	assert.Equal(t, []string{"log-55", "log-doc"}, ids(a.cache.Get(key)))
	assert.Zero(t, a.errs.Load())
}

func TestMutator_ReloadDuringSendKeepsOneCopy(t *testing.T) {
	ctx := context.Background()
	key := Key{Resource: ResourceMessages, ChildID: "c1"}
	remote := &fakeRemote{}
	a := newCaregiver(remote, Identity{UserID: "u-ana", Name: "Ana"}, fixedClock(1000))

	remote.insert = func(_ context.Context, k Key, payload map[string]any) (Record, error) {
		confirmed := serverRow("msg-55", "u-ana", "Ana", payload, time.UnixMilli(1500))
		// The row is committed and a reload fetches it before the
		// response arrives.
		a.cache.Set(k, []Record{row("m1", "u-ben", time.UnixMilli(500)), confirmed})
		assert.Equal(t, 1, countBy(a.cache.Get(k), "u-ana"))
		return confirmed, nil
	}
	_, _, err := a.mut.Apply(ctx, key, map[string]any{"content": "Hello"})
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "msg-55"}, ids(a.cache.Get(key)))
}

func TestMutator_FailureRestoresCacheAndNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	key := Key{Resource: ResourceMessages, ChildID: "c1"}
	remote := &fakeRemote{insert: func(context.Context, Key, map[string]any) (Record, error) {
		return Record{}, &Error{Status: 503, Code: "send_failed", Message: "try again"}
	}}
	a := newCaregiver(remote, Identity{UserID: "u-ana", Name: "Ana"}, nil)
	a.cache.Set(key, []Record{row("m1", "u-ben", t0), row("m2", "u-ana", t0.Add(time.Minute))})
	before := a.cache.Get(key)

	p, _, err := a.mut.Apply(ctx, key, map[string]any{"content": "lost"})
	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "send_failed", e.Code)

	assert.Equal(t, RolledBack, p.State())
	assert.Equal(t, before, a.cache.Get(key))
	assert.Equal(t, int32(1), a.errs.Load())
}

func TestMutator_TempIDsStayUnique(t *testing.T) {
	m := &Mutator{Now: fixedClock(1000)}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := m.tempID(m.now())
		require.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
	assert.True(t, seen["temp-1000"])
	assert.True(t, seen["temp-1049"])
}

// Concurrent sends with pushes and responses racing in random order never
// leave more rows attributed to the sender than sends made.
func TestMutator_NSendsNeverExceedN(t *testing.T) {
	for _, echoRef := range []bool{true, false} {
		t.Run(fmt.Sprintf("client_ref=%v", echoRef), func(t *testing.T) {
			const n = 12
			ctx := context.Background()
			key := Key{Resource: ResourceMessages, ChildID: "c1"}
			rng := rand.New(rand.NewSource(42))
			var rngMu sync.Mutex
			jitter := func() time.Duration {
				rngMu.Lock()
				defer rngMu.Unlock()
				return time.Duration(rng.Intn(3)) * time.Millisecond
			}

			remote := &fakeRemote{}
			a := newCaregiver(remote, Identity{UserID: "u-ana", Name: "Ana"}, nil)
			var seq atomic.Int32
			var pushes sync.WaitGroup
			remote.insert = func(_ context.Context, k Key, payload map[string]any) (Record, error) {
				i := seq.Add(1)
				if !echoRef {
					delete(payload, "client_ref")
				}
				r := serverRow(fmt.Sprintf("msg-%d", i), "u-ana", "Ana", payload, t0.Add(time.Duration(i)*time.Second))
				ev := insertEvent(t, k, r)
				if i%2 == 0 {
					a.sub.Apply(ctx, k, ev)
				} else {
					pushes.Add(1)
					go func() {
						defer pushes.Done()
						time.Sleep(jitter())
						a.sub.Apply(ctx, k, ev)
					}()
				}
				time.Sleep(jitter())
				return r, nil
			}

			var sends sync.WaitGroup
			for i := 0; i < n; i++ {
				sends.Add(1)
				go func() {
					defer sends.Done()
					_, _, err := a.mut.Apply(ctx, key, map[string]any{"content": "hi"})
					assert.NoError(t, err)
				}()
			}
			sends.Wait()
			pushes.Wait()

			rows := a.cache.Get(key)
			assert.LessOrEqual(t, countBy(rows, "u-ana"), n)
			for _, r := range rows {
				assert.False(t, r.IsPlaceholder(), "leftover placeholder %s", r.ID)
			}
		})
	}
}

func TestMutator_LogThenOwnPushGrowsByOne(t *testing.T) {
	ctx := context.Background()
	key := Key{Resource: ResourceLogs, ChildID: "c1"}
	remote := &fakeRemote{}
	a := newCaregiver(remote, Identity{UserID: "u-ana", Name: "Ana"}, nil)
	a.cache.Set(key, []Record{row("log-1", "u-ben", t0)})
	before := a.cache.Len(key)

	var confirmed Record
	remote.insert = func(_ context.Context, _ Key, payload map[string]any) (Record, error) {
		confirmed = serverRow("log-2", "u-ana", "Ana", payload, t0.Add(time.Hour))
		return confirmed, nil
	}
	_, _, err := a.mut.Apply(ctx, key, map[string]any{"title": "Nap", "description": "Slept 2h"})
	require.NoError(t, err)
	a.sub.Apply(ctx, key, insertEvent(t, key, confirmed))

	assert.Equal(t, before+1, a.cache.Len(key))
	assert.Equal(t, []string{"log-2", "log-1"}, ids(a.cache.Get(key)))
}

func notificationsFixture(c *Cache, key Key) {
	for i := 0; i < 3; i++ {
		r := row(fmt.Sprintf("n%d", i), "", t0.Add(time.Duration(i)*time.Minute))
		r.Fields["read"] = false
		c.AppendIfAbsent(key, r)
	}
}

func TestMutator_MarkReadChangesOnlyThatRow(t *testing.T) {
	ctx := context.Background()
	key := Key{Resource: ResourceNotifications, ChildID: "c1"}
	remote := &fakeRemote{}
	a := newCaregiver(remote, Identity{UserID: "u-ana"}, nil)
	notificationsFixture(a.cache, key)
	before := a.cache.Get(key)
	unread := a.cache.Unread(key)

	p, err := a.mut.MarkRead(ctx, key, "n1")
	require.NoError(t, err)
	assert.Equal(t, Confirmed, p.State())
	assert.Equal(t, unread-1, a.cache.Unread(key))

	after := a.cache.Get(key)
	require.Len(t, after, len(before))
	for i := range after {
		if after[i].ID == "n1" {
			assert.True(t, after[i].Read)
			continue
		}
		assert.Equal(t, before[i], after[i])
	}

	// Already read: no second request.
	_, err = a.mut.MarkRead(ctx, key, "n1")
	require.NoError(t, err)
	assert.Equal(t, 1, remote.updateCount())

	_, err = a.mut.MarkRead(ctx, key, "ghost")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestMutator_MarkReadRollsBack(t *testing.T) {
	ctx := context.Background()
	key := Key{Resource: ResourceNotifications, ChildID: "c1"}
	remote := &fakeRemote{update: func(context.Context, RowRef, map[string]any) (Record, error) {
		return Record{}, errors.New("offline")
	}}
	a := newCaregiver(remote, Identity{UserID: "u-ana"}, nil)
	notificationsFixture(a.cache, key)
	before := a.cache.Get(key)

	p, err := a.mut.MarkRead(ctx, key, "n2")
	require.Error(t, err)
	assert.Equal(t, RolledBack, p.State())
	assert.Equal(t, before, a.cache.Get(key))
	assert.Equal(t, int32(1), a.errs.Load())
}
