package events

import (
	"fmt"
	"testing"
	"time"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	a, cancelA := b.Subscribe()
	defer cancelA()
	c, cancelC := b.Subscribe()
	defer cancelC()

	b.Publish(Event{Name: "backend_status", Fields: map[string]any{"connected": true}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Name != "backend_status" {
				t.Fatalf("event name=%q", e.Name)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber missed the event")
		}
	}
}

func TestBrokerCancelStopsDelivery(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe()
	cancel()
	b.Publish(Event{Name: "after_cancel"})
	select {
	case e := <-ch:
		t.Fatalf("delivered after cancel: %+v", e)
	default:
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe()
	defer cancel()

	// one more than the subscriber buffer; Publish must never block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 40; i++ {
			b.Publish(Event{Name: fmt.Sprintf("e%d", i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
	if got := len(ch); got != cap(ch) {
		t.Fatalf("buffered=%d want full buffer %d", got, cap(ch))
	}
	if e := <-ch; e.Name != "e0" {
		t.Fatalf("first delivered event=%q", e.Name)
	}
}

func TestNoopPublisher(t *testing.T) {
	Noop().Publish(Event{Name: "ignored"})
}
