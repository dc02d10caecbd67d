package service

import (
	"context"
	"time"

	"github.com/cassiomorais/settlement/internal/domain/order"
	"github.com/cassiomorais/settlement/internal/domain/outbox"
	"github.com/rs/zerolog/log"
)

// SweepExpired closes pending orders past their expiry, gateway first so
// the payer cannot pay an order we consider dead. Returns how many orders
// were closed. Orders the gateway refuses to close are skipped and picked
// up by the next sweep.
func (s *SettlementService) SweepExpired(ctx context.Context, now time.Time, batchSize int) (int, error) {
	orders, err := s.orderRepo.ListPendingExpired(ctx, now, batchSize)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, ord := range orders {
		if err := s.gateway.Close(ctx, ord.OrderNo); err != nil {
			log.Warn().Err(err).Str("order_no", ord.OrderNo).Msg("gateway close failed, order left for next sweep")
			s.countSweep("skipped")
			continue
		}
		if err := s.transitionWithEvent(ctx, ord.OrderNo, order.StatusClosed, outbox.EventOrderClosed); err != nil {
			log.Error().Err(err).Str("order_no", ord.OrderNo).Msg("close transition failed")
			s.countSweep("skipped")
			continue
		}
		closed++
		s.countSweep("closed")
		if s.metrics != nil {
			s.metrics.OrdersClosed.WithLabelValues("expired").Inc()
		}
	}
	return closed, nil
}

// ReconcileStale actively reconciles pending orders that have not heard
// from the gateway since the cutoff. Push notifications are not
// guaranteed to arrive, so this is the path that converges orders whose
// webhook was lost.
func (s *SettlementService) ReconcileStale(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	orders, err := s.orderRepo.ListPendingStale(ctx, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, ord := range orders {
		if _, err := s.Reconcile(ctx, ord.OrderNo); err != nil {
			log.Warn().Err(err).Str("order_no", ord.OrderNo).Msg("reconcile failed, order left for next sweep")
			s.countSweep("skipped")
			continue
		}
		reconciled++
		s.countSweep("reconciled")
	}
	return reconciled, nil
}

func (s *SettlementService) countSweep(action string) {
	if s.metrics != nil {
		s.metrics.SweepOrdersProcessed.WithLabelValues(action).Inc()
	}
}
