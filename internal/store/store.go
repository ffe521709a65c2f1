package store

import (
	"context"
	"errors"
	"time"

	"kpicalc/internal/model"
)

// Store is the persistence interface used by the API server. It holds
// calculation inputs only (entities, stop records, webhook state);
// computed KPI values are never persisted.
type Store interface {
	// Entities
	CreateEntity(ctx context.Context, tenantID, entityType string, start time.Time, stops []model.Stop) (model.Entity, error)
	GetEntity(ctx context.Context, tenantID, id string) (model.Entity, error)
	ListEntities(ctx context.Context, tenantID, cursor string, limit int) ([]model.Entity, string, error)
	AddStops(ctx context.Context, tenantID, id string, stops []model.Stop) (model.Entity, error)
	FinalizeEntity(ctx context.Context, tenantID, id string, end time.Time) (model.Entity, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
}

var (
	ErrNotFound  = errors.New("not found")
	ErrFinalized = errors.New("entity already finalized")
)
