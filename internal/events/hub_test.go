package events

import (
	"sync"
	"testing"
	"time"

	"grimm.is/sentinel/internal/clock"
)

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub(nil)

	ch := hub.Subscribe(10, EventRuleRemoved)

	hub.Publish(Event{
		Type:   EventRuleRemoved,
		Source: "test",
		Data:   RuleRemovedData{ID: 7},
	})

	select {
	case e := <-ch:
		if e.Type != EventRuleRemoved {
			t.Errorf("expected EventRuleRemoved, got %s", e.Type)
		}
		data, ok := e.Data.(RuleRemovedData)
		if !ok {
			t.Fatal("expected RuleRemovedData")
		}
		if data.ID != 7 {
			t.Errorf("expected id 7, got %d", data.ID)
		}
		if e.Timestamp.IsZero() {
			t.Error("expected Publish to stamp the event")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestHub_StampsWithClock(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	hub := NewHub(clock.NewMockClock(at))
	ch := hub.Subscribe(1)

	hub.Publish(Event{Type: EventRuleAdded})
	if e := <-ch; !e.Timestamp.Equal(at) {
		t.Errorf("expected timestamp %s, got %s", at, e.Timestamp)
	}
}

func TestHub_GlobalSubscription(t *testing.T) {
	hub := NewHub(nil)

	ch := hub.Subscribe(10)

	hub.Publish(Event{Type: EventRuleAdded, Source: "test"})
	hub.Publish(Event{Type: EventPacketEvaluated, Source: "test"})
	hub.Publish(Event{Type: EventThreatRaised, Source: "test"})

	received := 0
	for i := 0; i < 3; i++ {
		select {
		case <-ch:
			received++
		case <-time.After(100 * time.Millisecond):
		}
	}

	if received != 3 {
		t.Errorf("expected 3 events, got %d", received)
	}
}

func TestHub_TypeFiltering(t *testing.T) {
	hub := NewHub(nil)

	ch := hub.Subscribe(10, EventThreatRaised, EventThreatUpdated)

	hub.Publish(Event{Type: EventRuleAdded, Source: "test"})
	hub.Publish(Event{Type: EventThreatRaised, Source: "test"})
	hub.Publish(Event{Type: EventPacketEvaluated, Source: "test"})
	hub.Publish(Event{Type: EventThreatUpdated, Source: "test"})

	received := 0
	for {
		select {
		case <-ch:
			received++
		case <-time.After(50 * time.Millisecond):
			goto done
		}
	}
done:

	if received != 2 {
		t.Errorf("expected 2 threat events, got %d", received)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(nil)
	typed := hub.Subscribe(4, EventRuleAdded)
	global := hub.Subscribe(4)

	hub.Unsubscribe(typed)
	hub.Unsubscribe(global)
	hub.Publish(Event{Type: EventRuleAdded})

	if len(typed) != 0 || len(global) != 0 {
		t.Errorf("unsubscribed channels received events: typed=%d global=%d", len(typed), len(global))
	}
}

func TestHub_NonBlocking(t *testing.T) {
	hub := NewHub(nil)

	_ = hub.Subscribe(1, EventPacketEvaluated)

	for i := 0; i < 10; i++ {
		hub.Publish(Event{Type: EventPacketEvaluated, Source: "test"})
	}

	published, dropped := hub.Stats()
	if published != 10 {
		t.Errorf("expected 10 published, got %d", published)
	}
	if dropped != 9 {
		t.Errorf("expected 9 dropped, got %d", dropped)
	}
}

func TestHub_Concurrent(t *testing.T) {
	hub := NewHub(nil)
	ch := hub.Subscribe(1000, EventPacketEvaluated)

	var wg sync.WaitGroup
	const numPublishers = 10
	const eventsPerPublisher = 100

	for i := 0; i < numPublishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerPublisher; j++ {
				hub.Publish(Event{Type: EventPacketEvaluated, Source: "test"})
			}
		}()
	}

	wg.Wait()

	received := len(ch)
	published, dropped := hub.Stats()
	if published != numPublishers*eventsPerPublisher {
		t.Errorf("expected %d published, got %d", numPublishers*eventsPerPublisher, published)
	}
	if uint64(received)+dropped != published {
		t.Errorf("received %d + dropped %d != published %d", received, dropped, published)
	}
}

func TestEventType_Topic(t *testing.T) {
	tests := map[EventType]string{
		EventRuleAdded:       "rules",
		EventRuleRemoved:     "rules",
		EventPacketEvaluated: "logs",
		EventThreatRaised:    "threats",
		EventThreatUpdated:   "threats",
		EventType("x.y"):     "other",
	}
	for typ, want := range tests {
		if got := typ.Topic(); got != want {
			t.Errorf("%s.Topic() = %q, want %q", typ, got, want)
		}
	}
}
