// Package events fans committed editor changes out to live subscribers: browser
// websockets of the same workspace and, optionally, an MQTT broker.
package events

import (
	"time"
)

// Event is one committed change in a workspace.
type Event struct {
	Type      string    `json:"type"`
	Workspace string    `json:"workspace"`
	Scope     string    `json:"scope,omitempty"`
	EntityID  string    `json:"entityId,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher must not block; it is called while the workspace is locked.
type Publisher interface {
	Publish(ev Event)
}

// Multi publishes to every non-nil publisher in order.
type Multi []Publisher

func (m Multi) Publish(ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ev)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
