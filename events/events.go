// Package events defines lifecycle events for scratch directories and the
// Publisher interface used to fan them out to interested systems.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the published event kinds.
type Type string

const (
	TypeCreated Type = "created"
	TypeClosed  Type = "closed"
	TypeSwept   Type = "swept"
)

// Event describes one lifecycle transition of a scratch directory.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Path      string    `json:"path"`
	Prefix    string    `json:"prefix,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds an event with a fresh ID and UTC timestamp.
func New(t Type, path, prefix string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Path:      path,
		Prefix:    prefix,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher discards all events (default when eventing is not configured).
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
