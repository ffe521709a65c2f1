package api

import (
	"context"
	"encoding/json"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// EventBroker fans entity KPI events out to stream subscribers.
type EventBroker interface {
	Subscribe(entityID string) chan KPIEvent
	Unsubscribe(entityID string, ch chan KPIEvent)
	Publish(entityID string, evt KPIEvent)
}

// RedisBroker implements EventBroker over Redis Pub/Sub so events reach
// subscribers on every API instance.
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker() (*RedisBroker, error) {
	url := os.Getenv("REDIS_URL")
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: redis.NewClient(opt)}, nil
}

func (b *RedisBroker) Subscribe(entityID string) chan KPIEvent {
	ch := make(chan KPIEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(entityID))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt KPIEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(entityID string, ch chan KPIEvent) {
	// closing the channel suffices; the reader goroutine exits when the
	// underlying PubSub channel closes on connection loss
	close(ch)
}

func (b *RedisBroker) Publish(entityID string, evt KPIEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(entityID), data).Err()
}

func (b *RedisBroker) chanName(entityID string) string { return "entity:" + entityID }
