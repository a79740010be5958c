package api

import (
	"sync"

	"hookrelay/internal/model"
)

// DeliveryEvent is fanned out to live stream subscribers whenever a
// delivery attempt is recorded or finalized.
type DeliveryEvent struct {
	WebhookID string                `json:"webhookId"`
	TenantID  string                `json:"tenantId"`
	Attempt   model.DeliveryAttempt `json:"attempt"`
}

type EventBroker interface {
	Subscribe(webhookID string) chan DeliveryEvent
	Unsubscribe(webhookID string, ch chan DeliveryEvent)
	Publish(webhookID string, evt DeliveryEvent)
}

// Broker is the in-memory EventBroker for single-instance deployments.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan DeliveryEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan DeliveryEvent]struct{}{}}
}

func (b *Broker) Subscribe(webhookID string) chan DeliveryEvent {
	ch := make(chan DeliveryEvent, 8)
	b.mu.Lock()
	if b.subs[webhookID] == nil {
		b.subs[webhookID] = map[chan DeliveryEvent]struct{}{}
	}
	b.subs[webhookID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(webhookID string, ch chan DeliveryEvent) {
	b.mu.Lock()
	if m := b.subs[webhookID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, webhookID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// Publish never blocks; slow subscribers drop events.
func (b *Broker) Publish(webhookID string, evt DeliveryEvent) {
	b.mu.Lock()
	for ch := range b.subs[webhookID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
