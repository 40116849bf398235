// Package realtime fans row-change events out to push subscribers.
//
// Every successful insert of a log, message or notification (and the read
// flag update of a notification) is published on the topic
// "<resource>-<childID>". Subscribers receive events per topic in publish
// order. Delivery is best effort: a subscriber whose buffer is full loses the
// event instead of blocking the publisher.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types.
const (
	EventInsert = "insert"
	EventUpdate = "update"
)

// Resources with push channels.
const (
	ResourceLogs          = "logs"
	ResourceMessages      = "messages"
	ResourceNotifications = "notifications"
)

// Event is one row change as sent over the wire.
type Event struct {
	Type     string          `json:"type"`
	Resource string          `json:"resource"`
	ChildID  string          `json:"child_id"`
	Row      json.RawMessage `json:"row"`
	At       time.Time       `json:"at"`

	// Recipient restricts delivery to one user. Set for notifications.
	Recipient string `json:"recipient,omitempty"`
}

// Topic returns the channel name for a (resource, child) pair.
func Topic(resource, childID string) string { return resource + "-" + childID }

// Topic returns the channel this event is published on.
func (e Event) Topic() string { return Topic(e.Resource, e.ChildID) }

// NewEvent marshals row into an event stamped with the current time.
func NewEvent(typ, resource, childID string, row any) (Event, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return Event{}, fmt.Errorf("realtime: marshal %s row: %w", resource, err)
	}
	return Event{
		Type:     typ,
		Resource: resource,
		ChildID:  childID,
		Row:      b,
		At:       time.Now().UTC(),
	}, nil
}

// ValidResource reports whether resource has a push channel.
func ValidResource(resource string) bool {
	switch resource {
	case ResourceLogs, ResourceMessages, ResourceNotifications:
		return true
	}
	return false
}
