package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SettlementStream carries order lifecycle events (order.paid,
// order.closed, order.refunded) to collaborator services that react to
// settlements.
const SettlementStream = "settlement:events"

type StreamProducer struct {
	client *redis.Client
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishSettlementEvent publishes one settlement event. Events originate
// from the outbox table, so publishing is at-least-once; consumers key on
// order_no + event_type for deduplication.
func (p *StreamProducer) PublishSettlementEvent(ctx context.Context, orderNo, eventType string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: SettlementStream,
		Values: map[string]any{
			"order_no":   orderNo,
			"event_type": eventType,
			"payload":    string(payload),
			"timestamp":  time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish settlement event: %w", err)
	}
	return nil
}
