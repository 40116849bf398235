package livesync

import "sync"

// ChangeFunc observes a collection after every change. rows is a copy.
type ChangeFunc func(key Key, rows []Record)

// Cache holds the ordered rows of every loaded collection. All compound
// updates (check then write) run under one lock so concurrent push
// deliveries and mutation responses cannot interleave inside them.
type Cache struct {
	mu       sync.Mutex
	rows     map[Key][]Record
	onChange []ChangeFunc
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{rows: make(map[Key][]Record)}
}

// OnChange registers fn. Listeners run synchronously after the lock is
// released.
func (c *Cache) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	c.onChange = append(c.onChange, fn)
	c.mu.Unlock()
}

// Get returns a copy of the rows under key.
func (c *Cache) Get(key Key) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyRows(c.rows[key])
}

// Len returns the number of rows under key.
func (c *Cache) Len(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows[key])
}

// Find returns the row under key matching m.
func (c *Cache) Find(key Key, m Match) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.rows[key]
	if i := indexOf(rows, m); i >= 0 {
		return rows[i].clone(), true
	}
	return Record{}, false
}

// Set replaces the collection, sorted and with duplicate ids dropped.
// Placeholders still in flight survive a reload unless the fetched rows
// already hold their confirmed row (a row whose client_ref is the
// placeholder id); the pending Reconcile then finds nothing to replace.
func (c *Cache) Set(key Key, rows []Record) {
	o := OrderFor(key.Resource)
	c.update(key, func(old []Record) ([]Record, bool) {
		next := make([]Record, 0, len(rows))
		answered := make(map[string]bool)
		for _, r := range rows {
			next, _ = insertSorted(next, r.clone(), o)
			if r.ClientRef != "" {
				answered[r.ClientRef] = true
			}
		}
		for _, r := range old {
			if r.IsPlaceholder() && !answered[r.ID] {
				next, _ = insertSorted(next, r, o)
			}
		}
		return next, true
	})
}

// AppendIfAbsent inserts row at its ordered position unless its id is
// already present.
func (c *Cache) AppendIfAbsent(key Key, row Record) bool {
	var added bool
	c.update(key, func(rows []Record) ([]Record, bool) {
		rows, added = insertSorted(rows, row.clone(), OrderFor(key.Resource))
		return rows, added
	})
	return added
}

// Replace swaps the first row matching m for row, keeping order. It
// reports whether a row matched.
func (c *Cache) Replace(key Key, m Match, row Record) bool {
	var found bool
	c.update(key, func(rows []Record) ([]Record, bool) {
		i := indexOf(rows, m)
		if i < 0 {
			return rows, false
		}
		found = true
		rows = append(rows[:i], rows[i+1:]...)
		rows, _ = insertSorted(rows, row.clone(), OrderFor(key.Resource))
		return rows, true
	})
	return found
}

// Remove drops every row matching m and returns how many went.
func (c *Cache) Remove(key Key, m Match) int {
	var n int
	c.update(key, func(rows []Record) ([]Record, bool) {
		kept := rows[:0]
		for _, r := range rows {
			if m(r) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		return kept, n > 0
	})
	return n
}

// Reconcile settles placeholder tempID with the server's row: when the row
// already arrived through a push the placeholder is dropped, otherwise the
// placeholder is replaced in place. Either way exactly one copy remains.
func (c *Cache) Reconcile(key Key, tempID string, row Record) {
	c.update(key, func(rows []Record) ([]Record, bool) {
		if i := indexOf(rows, ByID(tempID)); i >= 0 {
			rows = append(rows[:i], rows[i+1:]...)
		}
		rows, _ = insertSorted(rows, row.clone(), OrderFor(key.Resource))
		return rows, true
	})
}

// pushResult is the outcome of applying a pushed insert.
type pushResult int

const (
	pushAppended pushResult = iota
	pushDuplicate
	pushOwnEcho
)

// applyPush adds a pushed row unless it is already present or it is the
// echo of one of the local user's in-flight writes, which the mutation
// response will settle.
func (c *Cache) applyPush(key Key, row Record, localUser string) pushResult {
	res := pushDuplicate
	c.update(key, func(rows []Record) ([]Record, bool) {
		if indexOf(rows, ByID(row.ID)) >= 0 {
			return rows, false
		}
		if row.UserID != "" && row.UserID == localUser && matchPlaceholder(rows, row) >= 0 {
			res = pushOwnEcho
			return rows, false
		}
		res = pushAppended
		rows, _ = insertSorted(rows, row.clone(), OrderFor(key.Resource))
		return rows, true
	})
	return res
}

// Unread counts rows under key whose read flag is false.
func (c *Cache) Unread(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.rows[key] {
		if !r.Read {
			n++
		}
	}
	return n
}

// Keys lists the loaded collections.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Key, 0, len(c.rows))
	for k := range c.rows {
		out = append(out, k)
	}
	return out
}

// update runs fn on the rows under key with the lock held and notifies
// listeners when fn reports a change.
func (c *Cache) update(key Key, fn func([]Record) ([]Record, bool)) {
	c.mu.Lock()
	next, changed := fn(c.rows[key])
	if !changed {
		c.mu.Unlock()
		return
	}
	c.rows[key] = next
	listeners := c.onChange
	snapshot := copyRows(next)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(key, snapshot)
	}
}

func copyRows(rows []Record) []Record {
	if rows == nil {
		return nil
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.clone()
	}
	return out
}
