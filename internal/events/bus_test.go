package events

import (
	"testing"
	"time"
)

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	bus.Publish(Event{Kind: KindFeatureStarted, FeatureID: "f1"})

	select {
	case ev := <-a.C:
		if ev.FeatureID != "f1" {
			t.Fatalf("a got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive event")
	}
	select {
	case ev := <-b.C:
		if ev.FeatureID != "f1" {
			t.Fatalf("b got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber b did not receive event")
	}
}

func TestBus_PreservesOrderPerSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(Event{Kind: KindStream, Payload: 1})
	bus.Publish(Event{Kind: KindStream, Payload: 2})
	bus.Publish(Event{Kind: KindStream, Payload: 3})

	for i := 1; i <= 3; i++ {
		select {
		case ev := <-sub.C:
			if ev.Payload != i {
				t.Fatalf("got payload %v, want %d", ev.Payload, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	slow := bus.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Kind: KindStream, Payload: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a subscriber that never drains its channel")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	sub.Close()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("expected channel to be closed after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("channel never closed after unsubscribe")
	}
}

func TestBus_ClosedSubscriberNoLongerInMap(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	other := bus.Subscribe()
	defer other.Close()

	sub.Close()
	bus.Publish(Event{Kind: KindComplete})

	select {
	case ev, ok := <-other.C:
		if !ok {
			t.Fatal("other subscriber channel closed unexpectedly")
		}
		if ev.Kind != KindComplete {
			t.Fatalf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("other subscriber did not receive event after peer unsubscribed")
	}
}
