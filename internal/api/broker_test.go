package api

import (
	"testing"
	"time"

	"hookrelay/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	id := "wh1"
	ch := b.Subscribe(id)

	evt := DeliveryEvent{WebhookID: id, TenantID: "t1", Attempt: model.DeliveryAttempt{ID: "a1", Status: model.StatusSuccess}}
	b.Publish(id, evt)

	select {
	case got := <-ch:
		if got.Attempt.ID != "a1" || got.Attempt.Status != model.StatusSuccess {
			t.Fatalf("bad event: %+v", got)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(id, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}

	// publishing to an unsubscribed id must not panic or block
	b.Publish(id, evt)
}

func TestBrokerDropsWhenSubscriberSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("wh1")
	defer b.Unsubscribe("wh1", ch)

	// fill the buffer and then some; Publish must never block
	for i := 0; i < 20; i++ {
		b.Publish("wh1", DeliveryEvent{WebhookID: "wh1"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected full buffer, got %d/%d", len(ch), cap(ch))
	}
}
