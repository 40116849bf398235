// Package livesync keeps a local, ordered read model of a child's timeline,
// messages, notifications and milestones in step with the server.
//
// Rows are loaded through a Remote, kept in a Cache keyed by (resource,
// child, extra) and updated from two directions: the Mutator applies local
// writes optimistically and reconciles them with the server's answer, and
// the Subscriber appends rows pushed over the child's realtime channel. The
// two meet in the de-duplication policy (policy.go), which guarantees that a
// row is rendered once however its push echo and HTTP response interleave.
package livesync

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Resource names a synchronized collection.
type Resource string

// Synchronized resources.
const (
	ResourceLogs          Resource = "logs"
	ResourceMessages      Resource = "messages"
	ResourceNotifications Resource = "notifications"
	ResourceMilestones    Resource = "milestones"
)

// TempPrefix marks placeholder ids synthesized by the Mutator.
const TempPrefix = "temp-"

// Key addresses one cached collection.
type Key struct {
	Resource Resource
	ChildID  string
	// Extra distinguishes views of the same collection, e.g. a filter.
	Extra string
}

// Topic is the realtime channel name of the collection.
func (k Key) Topic() string { return string(k.Resource) + "-" + k.ChildID }

func (k Key) String() string {
	if k.Extra == "" {
		return k.Topic()
	}
	return k.Topic() + "/" + k.Extra
}

// Record is one row. The fields every resource shares are lifted out; the
// full decoded row stays in Fields.
type Record struct {
	ID         string
	UserID     string
	AuthorName string
	ClientRef  string
	Read       bool
	CreatedAt  time.Time
	Fields     map[string]any
}

// IsPlaceholder reports whether r was synthesized locally and not yet
// confirmed by the server.
func (r Record) IsPlaceholder() bool { return strings.HasPrefix(r.ID, TempPrefix) }

// Str returns a string field of the row, or "".
func (r Record) Str(name string) string {
	if v, ok := r.Fields[name].(string); ok {
		return v
	}
	return ""
}

// clone copies r with its own Fields map.
func (r Record) clone() Record {
	if r.Fields != nil {
		f := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			f[k] = v
		}
		r.Fields = f
	}
	return r
}

// merge returns base with the populated parts of over written on top.
func merge(base, over Record) Record {
	out := base.clone()
	if out.Fields == nil {
		out.Fields = make(map[string]any, len(over.Fields))
	}
	for k, v := range over.Fields {
		out.Fields[k] = v
	}
	if over.ID != "" {
		out.ID = over.ID
	}
	if over.UserID != "" {
		out.UserID = over.UserID
	}
	if over.AuthorName != "" {
		out.AuthorName = over.AuthorName
	}
	if over.ClientRef != "" {
		out.ClientRef = over.ClientRef
	}
	if !over.CreatedAt.IsZero() {
		out.CreatedAt = over.CreatedAt
	}
	if _, ok := over.Fields["read"]; ok || over.Read {
		out.Read = over.Read
	}
	return out
}

// UnmarshalJSON decodes a server row.
func (r *Record) UnmarshalJSON(b []byte) error {
	var head struct {
		ID          string    `json:"id"`
		MilestoneID string    `json:"milestone_id"`
		UserID      string    `json:"user_id"`
		AuthorName  string    `json:"author_name"`
		ClientRef   string    `json:"client_ref"`
		Read        bool      `json:"read"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return fmt.Errorf("livesync: decode row: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("livesync: decode row: %w", err)
	}
	*r = Record{
		ID:         head.ID,
		UserID:     head.UserID,
		AuthorName: head.AuthorName,
		ClientRef:  head.ClientRef,
		Read:       head.Read,
		CreatedAt:  head.CreatedAt,
		Fields:     fields,
	}
	// Milestone status rows are keyed by milestone.
	if r.ID == "" {
		r.ID = head.MilestoneID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = head.UpdatedAt
	}
	return nil
}

// MarshalJSON encodes Fields with the lifted fields written back over them.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+6)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	if r.UserID != "" {
		out["user_id"] = r.UserID
	}
	if r.AuthorName != "" {
		out["author_name"] = r.AuthorName
	}
	if r.ClientRef != "" {
		out["client_ref"] = r.ClientRef
	}
	if _, ok := r.Fields["read"]; ok || r.Read {
		out["read"] = r.Read
	}
	if !r.CreatedAt.IsZero() {
		out["created_at"] = r.CreatedAt
	}
	return json.Marshal(out)
}

// DecodeRecord decodes one raw row.
func DecodeRecord(raw []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(raw, &r)
	return r, err
}
