package store

import (
	"context"
	"testing"
	"time"

	"kpicalc/internal/model"
)

func ts(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestMemoryEntityLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	e, err := m.CreateEntity(ctx, "t1", "Provisión", ts(2, 9), nil)
	if err != nil || e.ID == "" {
		t.Fatalf("CreateEntity: %v", err)
	}

	got, err := m.GetEntity(ctx, "t1", e.ID)
	if err != nil || got.EntityType != "Provisión" || got.IsFinalized {
		t.Fatalf("GetEntity: %v %+v", err, got)
	}

	// Wrong tenant cannot see it.
	if _, err := m.GetEntity(ctx, "t2", e.ID); err != ErrNotFound {
		t.Fatalf("cross-tenant get: err = %v, want ErrNotFound", err)
	}

	got, err = m.AddStops(ctx, "t1", e.ID, []model.Stop{{Type: model.StopGlobal, Start: ts(2, 12), End: ts(2, 13)}})
	if err != nil || len(got.Stops) != 1 {
		t.Fatalf("AddStops: %v %+v", err, got.Stops)
	}

	got, err = m.FinalizeEntity(ctx, "t1", e.ID, ts(3, 18))
	if err != nil || !got.IsFinalized || got.End == nil {
		t.Fatalf("FinalizeEntity: %v %+v", err, got)
	}
	if _, err := m.FinalizeEntity(ctx, "t1", e.ID, ts(3, 19)); err != ErrFinalized {
		t.Fatalf("second finalize: err = %v, want ErrFinalized", err)
	}
}

func TestMemoryCloneIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	e, _ := m.CreateEntity(ctx, "t1", "Tarea", ts(2, 9), []model.Stop{{Type: model.StopGlobal, Start: ts(2, 12), End: ts(2, 13)}})

	// Mutating a returned entity must not leak into the store.
	e.Stops[0].Type = model.StopExterna
	got, _ := m.GetEntity(ctx, "t1", e.ID)
	if got.Stops[0].Type != model.StopGlobal {
		t.Fatal("returned entity shares stop slice with store")
	}
}

func TestMemoryListPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		e, _ := m.CreateEntity(ctx, "t1", "Tarea", ts(2, 9+i), nil)
		ids = append(ids, e.ID)
	}

	page1, next, err := m.ListEntities(ctx, "t1", "", 2)
	if err != nil || len(page1) != 2 || next == "" {
		t.Fatalf("page1: %v len=%d next=%q", err, len(page1), next)
	}
	page2, next2, err := m.ListEntities(ctx, "t1", next, 2)
	if err != nil || len(page2) != 1 || next2 != "" {
		t.Fatalf("page2: %v len=%d next=%q", err, len(page2), next2)
	}
	if page2[0].ID != ids[2] {
		t.Fatalf("page2 item = %s, want %s", page2[0].ID, ids[2])
	}
}

func TestMemorySubscriptions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://example.invalid", Events: []string{"entity.finalized"}, Secret: "s"})
	if err != nil || sub.ID == "" {
		t.Fatalf("CreateSubscription: %v", err)
	}

	subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "entity.finalized")
	if err != nil || len(subs) != 1 {
		t.Fatalf("GetSubscriptionsForEvent: %v %d", err, len(subs))
	}
	if subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "entity.stops.added"); len(subs) != 0 {
		t.Fatalf("unexpected match for other event: %d", len(subs))
	}
	if subs, _ := m.GetSubscriptionsForEvent(ctx, "t2", "entity.finalized"); len(subs) != 0 {
		t.Fatalf("unexpected cross-tenant match: %d", len(subs))
	}

	if err := m.DeleteSubscription(ctx, "t1", sub.ID); err != nil {
		t.Fatalf("DeleteSubscription: %v", err)
	}
	if subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "entity.finalized"); len(subs) != 0 {
		t.Fatal("subscription still matches after delete")
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.EnqueueWebhook(ctx, "t1", "sub1", "entity.finalized", "https://example.invalid", "s", []byte(`{}`))
	if err != nil || id == "" {
		t.Fatalf("EnqueueWebhook: %v", err)
	}

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].Status != "pending" {
		t.Fatalf("FetchDue: %v %+v", err, due)
	}

	// Retry pushes the next attempt into the future.
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "boom", 500, 12); err != nil {
		t.Fatalf("Mark retry: %v", err)
	}
	if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("retry should not be due yet, got %d", len(due))
	}

	if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 8); err != nil {
		t.Fatalf("Mark success: %v", err)
	}
	items, _, err := m.ListWebhookDeliveries(ctx, "t1", "delivered", "", 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListWebhookDeliveries: %v %d", err, len(items))
	}
	if items[0]["attempts"].(int) != 2 {
		t.Fatalf("attempts = %v, want 2", items[0]["attempts"])
	}

	// Terminal failure
	id2, _ := m.EnqueueWebhook(ctx, "t1", "sub1", "entity.finalized", "https://example.invalid", "", []byte(`{}`))
	if err := m.FailWebhookDelivery(ctx, id2, "gone", 410, 5); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if items, _, _ := m.ListWebhookDeliveries(ctx, "t1", "failed", "", 10); len(items) != 1 {
		t.Fatalf("failed list = %d, want 1", len(items))
	}
}
