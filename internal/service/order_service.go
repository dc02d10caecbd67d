package service

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/cassiomorais/settlement/internal/domain/member"
	"github.com/cassiomorais/settlement/internal/domain/order"
	"github.com/cassiomorais/settlement/internal/domain/outbox"
	"github.com/cassiomorais/settlement/internal/infrastructure/observability"
	"github.com/cassiomorais/settlement/internal/wechat"
	"github.com/rs/zerolog/log"
)

// RechargePackage is a fixed recharge tier. Amounts are yuan for display
// and minor units on the wire; coins follow the 10-per-yuan rate with a
// bonus that grows with the tier.
type RechargePackage struct {
	ID         int64  `json:"id"`
	AmountYuan int64  `json:"amount"`
	Coins      int64  `json:"coins"`
	BonusCoins int64  `json:"bonus"`
	Label      string `json:"label"`
}

// AmountMinor returns the charge amount in minor currency units.
func (p RechargePackage) AmountMinor() int64 {
	return p.AmountYuan * 100
}

var rechargePackages = []RechargePackage{
	{ID: 1, AmountYuan: 10, Coins: 100, BonusCoins: 0, Label: "10元=100金币"},
	{ID: 2, AmountYuan: 50, Coins: 500, BonusCoins: 50, Label: "50元=550金币"},
	{ID: 3, AmountYuan: 100, Coins: 1000, BonusCoins: 150, Label: "100元=1150金币"},
	{ID: 4, AmountYuan: 200, Coins: 2000, BonusCoins: 400, Label: "200元=2400金币"},
	{ID: 5, AmountYuan: 500, Coins: 5000, BonusCoins: 1500, Label: "500元=6500金币"},
	{ID: 6, AmountYuan: 1000, Coins: 10000, BonusCoins: 4000, Label: "1000元=14000金币"},
}

// OrderService creates, closes, and refunds payment orders and exposes
// order snapshots. Settlement itself lives in SettlementService.
type OrderService struct {
	orderRepo  order.Repository
	memberRepo member.Repository
	outboxRepo outbox.Repository
	txManager  TransactionManager
	settlement *SettlementService
	gateway    PaymentGateway
	metrics    *observability.Metrics
	orderTTL   time.Duration
}

// NewOrderService creates an OrderService.
func NewOrderService(
	orderRepo order.Repository,
	memberRepo member.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	settlement *SettlementService,
	gateway PaymentGateway,
	metrics *observability.Metrics,
	orderTTL time.Duration,
) *OrderService {
	if orderTTL <= 0 {
		orderTTL = 30 * time.Minute
	}
	return &OrderService{
		orderRepo:  orderRepo,
		memberRepo: memberRepo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
		settlement: settlement,
		gateway:    gateway,
		metrics:    metrics,
		orderTTL:   orderTTL,
	}
}

// Packages returns the recharge tiers.
func (s *OrderService) Packages() []RechargePackage {
	return rechargePackages
}

// PackageByID looks up a recharge tier.
func (s *OrderService) PackageByID(id int64) (RechargePackage, error) {
	for _, p := range rechargePackages {
		if p.ID == id {
			return p, nil
		}
	}
	return RechargePackage{}, domainErrors.ErrPackageNotFound
}

// CreateOrderResult carries the new order plus the payer-side session
// parameters for invoking the payment sheet.
type CreateOrderResult struct {
	Order      *order.PaymentOrder
	PaySession *wechat.PaySessionParams
}

// CreateRecharge creates a pending wallet-recharge order for a package
// tier and registers the payment intent with the gateway. Intent
// registration failure marks the order failed so the client can retry
// with a fresh order.
func (s *OrderService) CreateRecharge(ctx context.Context, memberID, packageID int64, openID string) (*CreateOrderResult, error) {
	pkg, err := s.PackageByID(packageID)
	if err != nil {
		return nil, err
	}
	m, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	orderNo := order.NewOrderNo(order.RechargePrefix)
	ord, err := order.NewOrder(orderNo, order.KindWalletRecharge, m.ID, pkg.AmountMinor(),
		fmt.Sprintf("金币充值-%s", pkg.Label), s.orderTTL)
	if err != nil {
		return nil, err
	}
	ord.Coins = pkg.Coins
	ord.BonusCoins = pkg.BonusCoins

	if err := s.orderRepo.Create(ctx, ord); err != nil {
		return nil, err
	}
	s.countCreated(ord.Kind)

	return s.registerIntent(ctx, ord, openID)
}

// CreateMembershipPurchase creates a pending membership-purchase order
// for a card, with the sibling record capturing the card terms at
// purchase time.
func (s *OrderService) CreateMembershipPurchase(ctx context.Context, memberID, cardID int64, openID string) (*CreateOrderResult, error) {
	card, err := s.memberRepo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	m, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	orderNo := order.NewOrderNo(order.MembershipPrefix)
	ord, err := order.NewOrder(orderNo, order.KindMembershipPurchase, m.ID, card.PriceMinor,
		fmt.Sprintf("会员卡-%s", card.Name), s.orderTTL)
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.Create(ctx, ord); err != nil {
		return nil, err
	}
	if err := s.orderRepo.CreateMembershipOrder(ctx, &order.MembershipOrder{
		OrderNo:      orderNo,
		CardID:       card.ID,
		LevelID:      card.LevelID,
		DurationDays: card.DurationDays,
		BonusCoins:   card.BonusCoins,
		BonusPoints:  card.BonusPoints,
	}); err != nil {
		return nil, err
	}
	s.countCreated(ord.Kind)

	return s.registerIntent(ctx, ord, openID)
}

// registerIntent asks the gateway for a prepay session. On failure the
// order is marked failed; the order number was already consumed at the
// gateway and must not be reused.
func (s *OrderService) registerIntent(ctx context.Context, ord *order.PaymentOrder, openID string) (*CreateOrderResult, error) {
	session, err := s.gateway.CreateIntent(ctx, wechat.CreateIntentParams{
		OrderNo:     ord.OrderNo,
		AmountMinor: ord.AmountMinor,
		Description: ord.Description,
		PayerOpenID: openID,
		Attach:      string(ord.Kind),
	})
	if err != nil {
		if _, uerr := s.orderRepo.UpdateStatus(ctx, ord.OrderNo, order.StatusPending, order.StatusFailed); uerr != nil {
			log.Error().Err(uerr).Str("order_no", ord.OrderNo).Msg("mark order failed after intent error")
		}
		return nil, err
	}
	return &CreateOrderResult{Order: ord, PaySession: session}, nil
}

// GetOrder returns the order, reconciling against the gateway first when
// it is still pending so stale local state self-heals on read.
func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*order.PaymentOrder, error) {
	ord, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if ord.Status != order.StatusPending {
		return ord, nil
	}
	reconciled, err := s.settlement.Reconcile(ctx, orderNo)
	if err != nil {
		// The gateway was unreachable; the local pending view is still
		// an honest answer.
		log.Warn().Err(err).Str("order_no", orderNo).Msg("reconcile on read failed")
		return ord, nil
	}
	return reconciled, nil
}

// CloseOrder closes a pending order at the gateway and locally. Closing
// a non-pending order is rejected.
func (s *OrderService) CloseOrder(ctx context.Context, orderNo string) error {
	ord, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if ord.Status != order.StatusPending {
		return domainErrors.NewDomainError(
			"invalid_transition",
			fmt.Sprintf("order %s is %s and cannot be closed", orderNo, ord.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}

	// Gateway first: once Close succeeds the payer can no longer pay, so
	// flipping local state afterwards cannot strand a paid order.
	if err := s.gateway.Close(ctx, orderNo); err != nil {
		return err
	}
	ok, err := s.transition(ctx, orderNo, order.StatusPending, order.StatusClosed, outbox.EventOrderClosed)
	if err != nil {
		return err
	}
	if !ok {
		// Settlement won in between; leave the paid order alone.
		return domainErrors.NewDomainError(
			"invalid_transition",
			fmt.Sprintf("order %s settled concurrently and was not closed", orderNo),
			domainErrors.ErrInvalidStateTransition,
		)
	}
	if s.metrics != nil {
		s.metrics.OrdersClosed.WithLabelValues("explicit").Inc()
	}
	return nil
}

// RefundOrder refunds a paid order in full or in part. Entitlements
// already granted by settlement are not reversed here; clawbacks are an
// operational decision handled out of band.
func (s *OrderService) RefundOrder(ctx context.Context, orderNo, refundNo string, refundMinor int64, reason string) (*wechat.RefundResult, error) {
	ord, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if ord.Status != order.StatusPaid {
		return nil, domainErrors.NewDomainError(
			"invalid_refund",
			fmt.Sprintf("order %s is %s and cannot be refunded", orderNo, ord.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}
	if refundMinor == 0 {
		refundMinor = ord.AmountMinor
	}
	if refundMinor < 0 || refundMinor > ord.AmountMinor {
		return nil, domainErrors.NewValidationError("refund_amount", "must be positive and not exceed the order amount")
	}

	result, err := s.gateway.Refund(ctx, wechat.RefundParams{
		OrderNo:     orderNo,
		RefundNo:    refundNo,
		TotalMinor:  ord.AmountMinor,
		RefundMinor: refundMinor,
		Reason:      reason,
	})
	if err != nil {
		return nil, err
	}

	ok, err := s.transition(ctx, orderNo, order.StatusPaid, order.StatusRefunded, outbox.EventOrderRefunded)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainErrors.ErrInvalidStateTransition
	}
	if s.metrics != nil {
		s.metrics.OrdersRefunded.Inc()
	}
	log.Info().
		Str("order_no", orderNo).
		Str("refund_no", refundNo).
		Int64("refund_minor", refundMinor).
		Msg("order refunded")
	return result, nil
}

// transition performs a conditional status change and stages the event
// in the same transaction. Returns false when the stored status no longer
// matched from.
func (s *OrderService) transition(ctx context.Context, orderNo string, from, to order.Status, eventType string) (bool, error) {
	var ok bool
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		ok, err = s.orderRepo.UpdateStatus(txCtx, orderNo, from, to)
		if err != nil || !ok {
			return err
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewEntry(orderNo, eventType, map[string]any{
			"order_no": orderNo,
			"status":   string(to),
		}))
	})
	return ok, err
}

func (s *OrderService) countCreated(kind order.Kind) {
	if s.metrics != nil {
		s.metrics.OrdersCreated.WithLabelValues(string(kind)).Inc()
	}
}
