package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	id := "ent1"
	ch := b.Subscribe(id)
	defer func() { recover() }() // ignore close panic if already closed

	evt := KPIEvent{Type: "entity.finalized", Data: map[string]any{"entityId": id}}
	b.Publish(id, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["entityId"].(string) != id {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(id, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerIsolatesEntities(t *testing.T) {
	b := NewBroker()
	chA := b.Subscribe("a")
	chB := b.Subscribe("b")
	defer b.Unsubscribe("a", chA)
	defer b.Unsubscribe("b", chB)

	b.Publish("a", KPIEvent{Type: "entity.stops.added"})

	select {
	case <-chA:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("subscriber of a did not receive")
	}
	select {
	case evt := <-chB:
		t.Fatalf("subscriber of b received %+v", evt)
	default:
	}
}
