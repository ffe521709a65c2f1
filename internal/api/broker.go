package api

import (
	"sync"
)

// KPIEvent is one entity-scoped event fanned out to SSE/WS subscribers.
type KPIEvent struct {
	Type string
	Data map[string]any
}

// Broker is the in-memory event fanout keyed by entity id.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan KPIEvent]struct{} // entityId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan KPIEvent]struct{}{}}
}

func (b *Broker) Subscribe(entityID string) chan KPIEvent {
	ch := make(chan KPIEvent, 8)
	b.mu.Lock()
	if b.subs[entityID] == nil {
		b.subs[entityID] = map[chan KPIEvent]struct{}{}
	}
	b.subs[entityID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(entityID string, ch chan KPIEvent) {
	b.mu.Lock()
	if m := b.subs[entityID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, entityID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(entityID string, evt KPIEvent) {
	b.mu.Lock()
	m := b.subs[entityID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
