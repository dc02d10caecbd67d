package service

import (
	"context"

	"github.com/cassiomorais/settlement/internal/domain/outbox"
	"github.com/cassiomorais/settlement/internal/infrastructure/observability"
	"github.com/rs/zerolog/log"
)

// EventProducer pushes settlement events to the downstream event stream.
type EventProducer interface {
	PublishSettlementEvent(ctx context.Context, orderNo, eventType string, data map[string]any) error
}

// OutboxPublisher drains staged outbox entries to the settlement event
// stream. Entries are claimed with row locks inside a transaction, so
// concurrent publishers never double-publish.
type OutboxPublisher struct {
	outboxRepo outbox.Repository
	txManager  TransactionManager
	producer   EventProducer
	metrics    *observability.Metrics
}

func NewOutboxPublisher(
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	producer EventProducer,
	metrics *observability.Metrics,
) *OutboxPublisher {
	return &OutboxPublisher{
		outboxRepo: outboxRepo,
		txManager:  txManager,
		producer:   producer,
		metrics:    metrics,
	}
}

// PublishPending publishes one batch of pending entries and returns how
// many were delivered. A failed status write aborts the batch: an entry
// delivered to the stream but still marked pending would be republished
// on the next poll.
func (p *OutboxPublisher) PublishPending(ctx context.Context, batchSize int) (int, error) {
	published := 0
	err := p.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := p.outboxRepo.GetPending(txCtx, batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := p.producer.PublishSettlementEvent(
				ctx, entry.OrderNo, entry.EventType, entry.Payload,
			); err != nil {
				log.Error().Err(err).Str("order_no", entry.OrderNo).Msg("Failed to publish settlement event")
				if markErr := p.outboxRepo.MarkFailed(txCtx, entry.ID); markErr != nil {
					return markErr
				}
				p.countPublish("failed")
				continue
			}
			if err := p.outboxRepo.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			p.countPublish("ok")
			published++
		}
		return nil
	})
	return published, err
}

func (p *OutboxPublisher) countPublish(status string) {
	if p.metrics == nil {
		return
	}
	p.metrics.OutboxPublished.WithLabelValues(status).Inc()
}
