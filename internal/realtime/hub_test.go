package realtime

import (
	"testing"
	"time"
)

func TestPublishReachesOnlyTopicSubscribers(t *testing.T) {
	t.Parallel()
	h := NewHub()
	a, unsubA := h.Subscribe(UserTopic(1), 4)
	defer unsubA()
	b, unsubB := h.Subscribe(UserTopic(2), 4)
	defer unsubB()

	if !h.Publish(UserTopic(1), Event{Name: "ritual:reminder"}) {
		t.Fatal("expected delivery to subscriber")
	}

	select {
	case e := <-a:
		if e.Name != "ritual:reminder" {
			t.Fatalf("event = %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("publish must stamp time")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive")
	}

	select {
	case e := <-b:
		t.Fatalf("subscriber b received foreign event: %+v", e)
	default:
	}
}

func TestPublishWithoutSubscribersReportsUndelivered(t *testing.T) {
	t.Parallel()
	h := NewHub()
	if h.Publish(UserTopic(9), Event{Name: "ritual:reminder"}) {
		t.Fatal("no subscribers, expected delivered=false")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()
	h := NewHub()
	_, unsub := h.Subscribe("t", 1)
	defer unsub()

	h.Publish("t", Event{Name: "one"})
	done := make(chan struct{})
	go func() {
		// Buffer full: this must not block.
		h.Publish("t", Event{Name: "two"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeIsIdempotentAndSafeDuringPublish(t *testing.T) {
	t.Parallel()
	h := NewHub()
	_, unsub := h.Subscribe("t", 1)
	unsub()
	unsub() // second call is a no-op

	// Publishing after close must not panic.
	h.Publish("t", Event{Name: "late"})
}
