// Package events provides a typed publish/subscribe bus for cross-component
// signaling. Each event type is an explicit struct with a payload schema;
// subscribers register per event name and receive events synchronously.
package events

import (
	"sync"

	"github.com/commongroundz/backend/internal/logger"
	"go.uber.org/zap"
)

// Event is a discriminated message published on the bus
type Event interface {
	EventName() string
}

// EntityUpdated signals that an entity's fields changed and any cached
// view of it is suspect
type EntityUpdated struct {
	EntityID string
}

func (EntityUpdated) EventName() string { return "entity.updated" }

// FollowChanged signals a follow or unfollow between two users
type FollowChanged struct {
	FollowerID string
	FolloweeID string
	Following  bool // true = follow, false = unfollow
}

func (FollowChanged) EventName() string { return "follow.changed" }

// VisibilityChanged signals that a client session regained or lost
// foreground visibility
type VisibilityChanged struct {
	Visible bool
}

func (VisibilityChanged) EventName() string { return "visibility.changed" }

// PostTagged signals that a post's hashtags were processed
type PostTagged struct {
	PostID string
	Keys   []string // normalized keys persisted for the post
}

func (PostTagged) EventName() string { return "post.tagged" }

// Handler receives published events
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Bus dispatches events to subscribers by event name
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID int
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]subscription),
	}
}

// Subscribe registers a handler for the given event name and returns an
// unsubscribe function. Handlers run synchronously in Publish order.
func (b *Bus) Subscribe(name string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subs[name]
		for i, s := range subs {
			if s.id == id {
				b.subs[name] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to all subscribers of its name. A panicking
// handler is recovered and logged so one subscriber cannot take down the
// publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[ev.EventName()]))
	copy(subs, b.subs[ev.EventName()])
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(s.handler, ev)
	}
}

func (b *Bus) dispatch(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			if logger.Log != nil {
				logger.Log.Error("Event handler panicked",
					zap.String("event", ev.EventName()),
					zap.Any("panic", r),
				)
			}
		}
	}()
	h(ev)
}
