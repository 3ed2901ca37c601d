package hub

import (
	"sync"
	"testing"
	"time"

	"parley.chat/internal/chat"
)

func recv(t *testing.T, sub *Subscription) chat.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C:
		if !ok {
			t.Fatalf("subscription channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
		return chat.Message{}
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := New()
	a := h.Subscribe("c1")
	b := h.Subscribe("c1")
	other := h.Subscribe("c2")
	defer a.Close()
	defer b.Close()
	defer other.Close()

	h.Publish("c1", chat.Message{ID: 1, ChatID: "c1", Content: "hi"})

	for _, sub := range []*Subscription{a, b} {
		msg := recv(t, sub)
		if msg.ID != 1 {
			t.Fatalf("unexpected message: %+v", msg)
		}
	}
	select {
	case msg := <-other.C:
		t.Fatalf("subscriber of another chat received %+v", msg)
	default:
	}
}

func TestPublishOrder(t *testing.T) {
	h := New()
	sub := h.Subscribe("c1")
	defer sub.Close()

	for i := int64(1); i <= 10; i++ {
		h.Publish("c1", chat.Message{ID: i, ChatID: "c1"})
	}
	for i := int64(1); i <= 10; i++ {
		msg := recv(t, sub)
		if msg.ID != i {
			t.Fatalf("out of order: expected id %d got %d", i, msg.ID)
		}
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := New()
	slow := h.Subscribe("c1")
	fast := h.Subscribe("c1")
	defer slow.Close()
	defer fast.Close()

	// Overflow the slow subscriber's buffer without reading from it.
	total := subscriptionBuffer + 5
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			h.Publish("c1", chat.Message{ID: int64(i + 1), ChatID: "c1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}

	// The fast subscriber drains everything in order despite the drops.
	for i := int64(1); i <= int64(subscriptionBuffer); i++ {
		msg := recv(t, fast)
		if msg.ID != i {
			t.Fatalf("fast subscriber out of order at %d: %+v", i, msg)
		}
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	h := New()
	sub := h.Subscribe("c1")

	sub.Close()
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel after Close")
	}
	// Idempotent.
	sub.Close()

	if h.Count("c1") != 0 {
		t.Fatalf("expected empty room, got %d", h.Count("c1"))
	}
	// Publishing into the now-empty room must not panic or deliver.
	h.Publish("c1", chat.Message{ID: 1})
}

func TestCount(t *testing.T) {
	h := New()
	if h.Count("c1") != 0 {
		t.Fatalf("expected 0, got %d", h.Count("c1"))
	}
	a := h.Subscribe("c1")
	b := h.Subscribe("c1")
	if h.Count("c1") != 2 {
		t.Fatalf("expected 2, got %d", h.Count("c1"))
	}
	a.Close()
	if h.Count("c1") != 1 {
		t.Fatalf("expected 1, got %d", h.Count("c1"))
	}
	b.Close()
	if h.Count("c1") != 0 {
		t.Fatalf("expected 0, got %d", h.Count("c1"))
	}
}

func TestShutdown(t *testing.T) {
	h := New()
	a := h.Subscribe("c1")
	b := h.Subscribe("c2")

	h.Shutdown()
	if _, ok := <-a.C; ok {
		t.Fatalf("expected closed channel after Shutdown")
	}
	if _, ok := <-b.C; ok {
		t.Fatalf("expected closed channel after Shutdown")
	}

	// Closing an already-shut-down subscription is harmless.
	a.Close()

	late := h.Subscribe("c1")
	if _, ok := <-late.C; ok {
		t.Fatalf("expected closed subscription after Shutdown")
	}
	h.Publish("c1", chat.Message{ID: 1})
	h.Shutdown()
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := h.Subscribe("c1")
				h.Publish("c1", chat.Message{ID: int64(j)})
				sub.Close()
			}
		}()
	}
	wg.Wait()
	if h.Count("c1") != 0 {
		t.Fatalf("expected empty hub after close, got %d", h.Count("c1"))
	}
}
