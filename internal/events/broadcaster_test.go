package events

import (
	"sync"
	"testing"
)

func TestBroadcaster_ScopedDelivery(t *testing.T) {
	b := NewBroadcaster(4, nil, nil)
	alice := b.Connect("alice")
	bob := b.Connect("bob")
	b.Join(alice, TicketScope("t-1"))

	n := b.Publish(Event{Name: EventTicketUpdated, Scope: TicketScope("t-1"), Data: TicketUpdated{TicketID: "t-1", Field: "status", Value: "IN_PROGRESS"}})
	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	got := <-alice.Events()
	if got.Name != EventTicketUpdated {
		t.Fatalf("unexpected event %q", got.Name)
	}
	select {
	case ev := <-bob.Events():
		t.Fatalf("bob received %q without joining", ev.Name)
	default:
	}

	if n := b.Publish(Event{Name: EventNotification, Scope: UserScope("bob")}); n != 1 {
		t.Fatalf("expected personal scope delivery, got %d", n)
	}
}

func TestBroadcaster_FullBufferDropsWithoutBlocking(t *testing.T) {
	b := NewBroadcaster(1, nil, nil)
	sub := b.Connect("carol")
	scope := UserScope("carol")

	if n := b.Publish(Event{Name: EventNotification, Scope: scope}); n != 1 {
		t.Fatalf("expected first event delivered")
	}
	if n := b.Publish(Event{Name: EventNotification, Scope: scope}); n != 0 {
		t.Fatalf("expected second event dropped, got %d deliveries", n)
	}
	<-sub.Events()
}

func TestBroadcaster_LeaveAndDisconnect(t *testing.T) {
	b := NewBroadcaster(2, nil, nil)
	sub := b.Connect("dave")
	scope := TicketScope("t-9")
	b.Join(sub, scope)
	b.Leave(sub, scope)
	if b.Subscribers(scope) != 0 {
		t.Fatalf("expected empty scope after leave")
	}

	b.Disconnect(sub)
	b.Disconnect(sub)
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected closed channel after disconnect")
	}
	if n := b.Publish(Event{Name: EventNotification, Scope: UserScope("dave")}); n != 0 {
		t.Fatalf("disconnected subscriber still receives events")
	}
	b.Join(sub, scope)
	if b.Subscribers(scope) != 0 {
		t.Fatalf("closed subscriber rejoined a scope")
	}
}

func TestBroadcaster_ConcurrentPublishAndDisconnect(t *testing.T) {
	b := NewBroadcaster(8, nil, nil)
	scope := TicketScope("t-hot")
	subs := make([]*Subscriber, 16)
	for i := range subs {
		subs[i] = b.Connect("user")
		b.Join(subs[i], scope)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(Event{Name: EventTicketUpdated, Scope: scope})
			}
		}()
	}
	for _, sub := range subs {
		wg.Add(1)
		go func(s *Subscriber) {
			defer wg.Done()
			b.Disconnect(s)
		}(sub)
	}
	wg.Wait()
	if b.Subscribers(scope) != 0 {
		t.Fatalf("expected all subscribers gone")
	}
}

func TestScope_TicketID(t *testing.T) {
	if id, ok := TicketScope("abc").TicketID(); !ok || id != "abc" {
		t.Fatalf("expected ticket id abc, got %q %v", id, ok)
	}
	if _, ok := UserScope("abc").TicketID(); ok {
		t.Fatalf("user scope must not parse as ticket scope")
	}
}
