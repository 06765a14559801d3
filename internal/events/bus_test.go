package events

import (
	"testing"
	"time"

	"github.com/hyperjump/tsunagu/internal/models"
)

func TestBus_fanout(t *testing.T) {
	b := NewBus()
	defer b.Close()

	s1 := b.Subscribe(4)
	s2 := b.Subscribe(4)

	b.Publish(Event{Type: DocumentCompleted, DocumentID: "doc-1", Status: models.StatusCompleted, Progress: 100})

	for i, s := range []*Subscription{s1, s2} {
		select {
		case ev := <-s.C:
			if ev.Type != DocumentCompleted || ev.DocumentID != "doc-1" {
				t.Errorf("subscriber %d got %+v", i, ev)
			}
			if ev.Time.IsZero() {
				t.Errorf("subscriber %d: event time not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive the event", i)
		}
	}
}

func TestBus_slowSubscriberDropsEvents(t *testing.T) {
	b := NewBus()
	defer b.Close()

	s := b.Subscribe(2)
	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: DocumentProgress, DocumentID: "doc-1", Progress: i * 20})
	}

	// Only the first two fit; the rest were dropped without blocking Publish.
	got := 0
	for {
		select {
		case <-s.C:
			got++
		default:
			if got != 2 {
				t.Errorf("buffered events = %d, want 2", got)
			}
			return
		}
	}
}

func TestBus_unsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	defer b.Close()

	s := b.Subscribe(1)
	b.Unsubscribe(s)

	if _, ok := <-s.C; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	// Double unsubscribe must not panic.
	b.Unsubscribe(s)
	// Publishing after unsubscribe must not panic either.
	b.Publish(Event{Type: DocumentDeleted, DocumentID: "doc-1"})
}

func TestBus_closeStopsEverything(t *testing.T) {
	b := NewBus()
	s := b.Subscribe(1)
	b.Close()

	if _, ok := <-s.C; ok {
		t.Error("channel should be closed after bus Close")
	}
	b.Publish(Event{Type: DocumentFailed})
	b.Close()

	// Subscribing after close yields an already-closed channel.
	late := b.Subscribe(1)
	if _, ok := <-late.C; ok {
		t.Error("late subscription should be closed immediately")
	}
}
