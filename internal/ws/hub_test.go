package ws

import (
	"errors"
	"sync"
	"testing"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	got    [][]byte
	fail   bool
	closed bool
}

func (f *fakeSubscriber) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.got = append(f.got, p)
	return nil
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSubscriber) messages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func (f *fakeSubscriber) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestHubRoutesByUser(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()

	alice := &fakeSubscriber{}
	bob := &fakeSubscriber{}
	hub.Register("alice", alice)
	hub.Register("bob", bob)

	hub.Broadcast("alice", []byte(`{"status":"completed"}`))
	// Subscribers is served by the dispatch loop, so it returns after the broadcast above.
	if n := hub.Subscribers("alice"); n != 1 {
		t.Fatalf("expected 1 alice subscriber, got %d", n)
	}
	if alice.messages() != 1 {
		t.Fatalf("expected alice to receive 1 message, got %d", alice.messages())
	}
	if bob.messages() != 0 {
		t.Fatalf("expected bob to receive nothing, got %d", bob.messages())
	}
}

func TestHubDropsFailingSubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()

	broken := &fakeSubscriber{fail: true}
	hub.Register("alice", broken)
	hub.Broadcast("alice", []byte("x"))

	if n := hub.Subscribers("alice"); n != 0 {
		t.Fatalf("expected failing subscriber removed, got %d", n)
	}
	if !broken.isClosed() {
		t.Fatal("expected failing subscriber closed")
	}
}

func TestHubUnregisterAndStop(t *testing.T) {
	hub := NewHub()
	sub := &fakeSubscriber{}
	hub.Register("alice", sub)
	hub.Unregister("alice", sub)
	if n := hub.Subscribers("alice"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}

	hub.Stop()
	hub.Broadcast("alice", []byte("late"))
	if sub.messages() != 0 {
		t.Fatal("expected no delivery after stop")
	}
}
