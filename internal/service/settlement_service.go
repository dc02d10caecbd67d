package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/cassiomorais/settlement/internal/domain/member"
	"github.com/cassiomorais/settlement/internal/domain/order"
	"github.com/cassiomorais/settlement/internal/domain/outbox"
	"github.com/cassiomorais/settlement/internal/infrastructure/observability"
	"github.com/cassiomorais/settlement/internal/wechat"
	"github.com/cassiomorais/settlement/pkg/retry"
	"github.com/rs/zerolog/log"
)

// SettleOutcome reports what a settlement attempt did.
type SettleOutcome string

const (
	// OutcomeApplied means this call won the pending -> paid transition
	// and ran the side effect.
	OutcomeApplied SettleOutcome = "applied"
	// OutcomeAlreadyApplied means the order was already settled; nothing
	// was re-applied.
	OutcomeAlreadyApplied SettleOutcome = "already_applied"
	// OutcomeUnknownOrder means no local order matches the order number.
	OutcomeUnknownOrder SettleOutcome = "unknown_order"
)

// SettlePath labels which delivery path triggered the settlement.
type SettlePath string

const (
	PathWebhook SettlePath = "webhook"
	PathPoll    SettlePath = "poll"
)

// SettleParams is the input for a settlement attempt.
type SettleParams struct {
	OrderNo       string
	TransactionID string
	PaidAt        time.Time
	Path          SettlePath
}

// SideEffectHandler applies the business entitlement for a settled order.
// It runs inside the settlement transaction: returning an error rolls the
// whole settlement back and the order stays pending.
type SideEffectHandler func(ctx context.Context, ord *order.PaymentOrder) error

// SettlementService settles payment orders exactly once, regardless of
// how many times and over which paths success reports arrive.
type SettlementService struct {
	orderRepo  order.Repository
	memberRepo member.Repository
	outboxRepo outbox.Repository
	txManager  TransactionManager
	gateway    PaymentGateway
	metrics    *observability.Metrics
	retryCfg   retry.Config
	handlers   map[order.Kind]SideEffectHandler
}

// NewSettlementService creates a SettlementService with the built-in
// side-effect handlers registered.
func NewSettlementService(
	orderRepo order.Repository,
	memberRepo member.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	gateway PaymentGateway,
	metrics *observability.Metrics,
	retryCfg retry.Config,
) *SettlementService {
	s := &SettlementService{
		orderRepo:  orderRepo,
		memberRepo: memberRepo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
		gateway:    gateway,
		metrics:    metrics,
		retryCfg:   retryCfg,
	}
	s.handlers = map[order.Kind]SideEffectHandler{
		order.KindWalletRecharge:     s.applyWalletRecharge,
		order.KindMembershipPurchase: s.applyMembershipPurchase,
	}
	return s
}

// RegisterHandler overrides the side-effect handler for a kind. Intended
// for wiring additional order kinds without touching the settle loop.
func (s *SettlementService) RegisterHandler(kind order.Kind, h SideEffectHandler) {
	s.handlers[kind] = h
}

// Settle applies the success transition for an order exactly once. The
// webhook and the polling reconciler both funnel through here; whichever
// wins the conditional pending -> paid write runs the side effect, the
// loser observes AlreadyApplied. The status flip, the side effect, and
// the outbox entry commit or roll back as one unit.
func (s *SettlementService) Settle(ctx context.Context, p SettleParams) (SettleOutcome, error) {
	ord, err := s.orderRepo.GetByOrderNo(ctx, p.OrderNo)
	if err != nil {
		if errors.Is(err, domainErrors.ErrOrderNotFound) {
			s.countSettlement("unknown", string(OutcomeUnknownOrder), p.Path)
			return OutcomeUnknownOrder, nil
		}
		return "", err
	}

	switch ord.Status {
	case order.StatusPaid, order.StatusRefunded:
		s.countSettlement(string(ord.Kind), string(OutcomeAlreadyApplied), p.Path)
		return OutcomeAlreadyApplied, nil
	case order.StatusClosed, order.StatusFailed:
		return "", invalidSettleTransition(ord)
	}

	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	start := time.Now()
	var won bool
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.orderRepo.MarkPaid(txCtx, ord.OrderNo, p.TransactionID, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the conditional write; resolved after the transaction.
			return nil
		}
		won = true

		ord.GatewayTransactionID = &p.TransactionID
		ord.PaidAt = &paidAt

		handler, registered := s.handlers[ord.Kind]
		if !registered {
			return domainErrors.NewDomainError(
				"no_handler",
				fmt.Sprintf("no side-effect handler for order kind %s", ord.Kind),
				domainErrors.ErrInvalidOrderKind,
			)
		}
		if err := handler(txCtx, ord); err != nil {
			return err
		}

		entry := outbox.NewEntry(ord.OrderNo, outbox.EventOrderPaid, map[string]any{
			"order_no":       ord.OrderNo,
			"kind":           string(ord.Kind),
			"amount_minor":   ord.AmountMinor,
			"transaction_id": p.TransactionID,
		})
		return s.outboxRepo.Insert(txCtx, entry)
	})
	if err != nil {
		s.countSettlement(string(ord.Kind), "error", p.Path)
		return "", err
	}

	if won {
		log.Info().
			Str("order_no", ord.OrderNo).
			Str("kind", string(ord.Kind)).
			Str("path", string(p.Path)).
			Int64("amount_minor", ord.AmountMinor).
			Msg("order settled")
		s.countSettlement(string(ord.Kind), string(OutcomeApplied), p.Path)
		if s.metrics != nil {
			s.metrics.SettlementDuration.WithLabelValues(string(ord.Kind)).Observe(time.Since(start).Seconds())
		}
		return OutcomeApplied, nil
	}

	// Someone else moved the order between our read and the conditional
	// write. Re-read to tell a lost race from a late report on a closed
	// order.
	current, err := s.orderRepo.GetByOrderNo(ctx, p.OrderNo)
	if err != nil {
		return "", err
	}
	if current.Status == order.StatusPaid || current.Status == order.StatusRefunded {
		s.countSettlement(string(ord.Kind), string(OutcomeAlreadyApplied), p.Path)
		return OutcomeAlreadyApplied, nil
	}
	return "", invalidSettleTransition(current)
}

// Reconcile consults the gateway for a pending order and converges local
// state with the gateway's answer. Terminal orders are returned as-is
// without a gateway call; the gateway is the source of truth only for
// orders we still consider pending.
func (s *SettlementService) Reconcile(ctx context.Context, orderNo string) (*order.PaymentOrder, error) {
	ord, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if ord.Status != order.StatusPending {
		return ord, nil
	}

	snap, err := retry.DoWithResultIf(ctx, s.retryCfg, domainErrors.IsNetworkError,
		func() (*wechat.OrderStatusSnapshot, error) {
			return s.gateway.Query(ctx, orderNo)
		})
	if err != nil {
		// Could not reach a verdict; keep the local pending view.
		return ord, err
	}

	switch snap.TradeState {
	case wechat.TradeStateSuccess:
		paidAt := parseGatewayTime(snap.SuccessTime)
		if _, err := s.Settle(ctx, SettleParams{
			OrderNo:       orderNo,
			TransactionID: snap.TransactionID,
			PaidAt:        paidAt,
			Path:          PathPoll,
		}); err != nil {
			return ord, err
		}
	case wechat.TradeStatePayError, wechat.TradeStateRevoked:
		if err := s.transitionWithEvent(ctx, orderNo, order.StatusFailed, outbox.EventOrderFailed); err != nil {
			return ord, err
		}
	case wechat.TradeStateClosed:
		if err := s.transitionWithEvent(ctx, orderNo, order.StatusClosed, outbox.EventOrderClosed); err != nil {
			return ord, err
		}
	case wechat.TradeStateNotPay, wechat.TradeStateUserPaying:
		// Payment still in flight; nothing to converge yet.
	default:
		log.Warn().
			Str("order_no", orderNo).
			Str("trade_state", snap.TradeState).
			Msg("unrecognized trade state, leaving order pending")
	}

	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

// transitionWithEvent moves a pending order to a terminal status and
// stages the matching event in the same transaction. Losing the
// conditional write is not an error: settlement won the race.
func (s *SettlementService) transitionWithEvent(ctx context.Context, orderNo string, to order.Status, eventType string) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.orderRepo.UpdateStatus(txCtx, orderNo, order.StatusPending, to)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewEntry(orderNo, eventType, map[string]any{
			"order_no": orderNo,
			"status":   string(to),
		}))
	})
}

func (s *SettlementService) countSettlement(kind, outcome string, path SettlePath) {
	if s.metrics == nil {
		return
	}
	s.metrics.SettlementsTotal.WithLabelValues(kind, outcome, string(path)).Inc()
}

func invalidSettleTransition(ord *order.PaymentOrder) error {
	return domainErrors.NewDomainError(
		"invalid_transition",
		fmt.Sprintf("order %s is %s and cannot settle", ord.OrderNo, ord.Status),
		domainErrors.ErrInvalidStateTransition,
	)
}

// parseGatewayTime parses the gateway's RFC 3339 timestamps. A malformed
// timestamp falls back to now rather than blocking settlement.
func parseGatewayTime(v string) time.Time {
	if v == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now()
	}
	return t
}
