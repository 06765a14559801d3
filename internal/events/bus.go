// Package events provides a typed in-process bus for document lifecycle
// notifications. Subscribers receive events on buffered channels; a slow
// subscriber loses events rather than blocking ingestion.
package events

import (
	"sync"
	"time"

	"github.com/hyperjump/tsunagu/internal/models"
)

// EventType identifies a document lifecycle event.
type EventType string

const (
	DocumentProcessing EventType = "document.processing"
	DocumentIndexing   EventType = "document.indexing"
	DocumentProgress   EventType = "document.progress"
	DocumentCompleted  EventType = "document.completed"
	DocumentFailed     EventType = "document.failed"
	DocumentDeleted    EventType = "document.deleted"
)

// Event is one lifecycle notification.
type Event struct {
	Type       EventType             `json:"type"`
	DocumentID string                `json:"documentId"`
	Status     models.DocumentStatus `json:"status,omitempty"`
	Progress   int                   `json:"progress"`
	Message    string                `json:"message,omitempty"`
	Time       time.Time             `json:"time"`
}

// Subscription is one subscriber's event stream. Receive from C until it is
// closed by Unsubscribe or Bus.Close.
type Subscription struct {
	C  <-chan Event
	ch chan Event
	id int
}

// Bus fans out events to all current subscribers.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*Subscription
	closed bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe registers a subscriber with the given channel buffer size.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch}
	if b.closed {
		close(ch)
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Publish delivers the event to every subscriber whose buffer has room.
// The event's Time is stamped here when zero.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Buffer full; drop for this subscriber.
		}
	}
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
