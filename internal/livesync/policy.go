package livesync

import "sort"

// Order is the sort direction of a collection.
type Order int

const (
	// Ascending is oldest first (chat rooms).
	Ascending Order = iota
	// Descending is newest first (timelines, notification lists).
	Descending
)

func (o Order) String() string {
	if o == Ascending {
		return "asc"
	}
	return "desc"
}

// OrderFor returns the display order of a resource: messages read like a
// chat, everything else newest first.
func OrderFor(r Resource) Order {
	if r == ResourceMessages {
		return Ascending
	}
	return Descending
}

// Match selects rows.
type Match func(Record) bool

// ByID matches the row with id.
func ByID(id string) Match {
	return func(r Record) bool { return r.ID == id }
}

// before reports whether a sorts ahead of b. Ties on created_at fall back to
// the id so the order is total.
func before(a, b Record, o Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if o == Ascending {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	}
	if o == Ascending {
		return a.ID < b.ID
	}
	return a.ID > b.ID
}

// sortRows orders rows in place.
func sortRows(rows []Record, o Order) {
	sort.SliceStable(rows, func(i, j int) bool { return before(rows[i], rows[j], o) })
}

// indexOf returns the position of the first row matching m, or -1.
func indexOf(rows []Record, m Match) int {
	for i := range rows {
		if m(rows[i]) {
			return i
		}
	}
	return -1
}

// insertSorted adds r at its ordered position unless a row with the same id
// is already present. It reports whether r was added.
func insertSorted(rows []Record, r Record, o Order) ([]Record, bool) {
	if indexOf(rows, ByID(r.ID)) >= 0 {
		return rows, false
	}
	i := sort.Search(len(rows), func(i int) bool { return before(r, rows[i], o) })
	rows = append(rows, Record{})
	copy(rows[i+1:], rows[i:])
	rows[i] = r
	return rows, true
}

// matchPlaceholder finds the local placeholder a confirmed row answers.
//
// The server echoes the placeholder's temp id as client_ref, which
// identifies it exactly even when the same user has several sends in
// flight. A row without a client_ref can only answer a placeholder that
// was itself sent without one, so it falls back to the most recent such
// placeholder by the same author. Correlated placeholders are never
// matched by recency: an own row from elsewhere (another device, an
// upload) must not be mistaken for their echo.
func matchPlaceholder(rows []Record, row Record) int {
	if row.ClientRef != "" {
		return indexOf(rows, func(r Record) bool { return r.IsPlaceholder() && r.ID == row.ClientRef })
	}
	best := -1
	for i, r := range rows {
		if !r.IsPlaceholder() || r.ClientRef != "" || r.UserID != row.UserID {
			continue
		}
		if best < 0 || r.CreatedAt.After(rows[best].CreatedAt) ||
			(r.CreatedAt.Equal(rows[best].CreatedAt) && r.ID > rows[best].ID) {
			best = i
		}
	}
	return best
}
