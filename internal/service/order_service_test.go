package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/cassiomorais/settlement/internal/domain/order"
	"github.com/cassiomorais/settlement/internal/domain/outbox"
	"github.com/cassiomorais/settlement/internal/testutil"
	"github.com/cassiomorais/settlement/internal/wechat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupOrderService() (*OrderService, *testutil.MockOrderRepository, *testutil.MockMemberRepository, *testutil.MockOutboxRepository, *testutil.MockGateway) {
	settlement, orderRepo, memberRepo, outboxRepo, gateway, txManager := setupSettlementService()
	svc := NewOrderService(orderRepo, memberRepo, outboxRepo, txManager, settlement, gateway, nil, 30*time.Minute)
	return svc, orderRepo, memberRepo, outboxRepo, gateway
}

func TestPackages_TiersAndRates(t *testing.T) {
	svc, _, _, _, _ := setupOrderService()

	pkgs := svc.Packages()
	require.Len(t, pkgs, 6)
	for _, p := range pkgs {
		assert.Equal(t, p.AmountYuan*10, p.Coins, "coins follow the 10-per-yuan rate")
		assert.Equal(t, p.AmountYuan*100, p.AmountMinor())
	}

	top, err := svc.PackageByID(6)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), top.AmountYuan)
	assert.Equal(t, int64(10000), top.Coins)
	assert.Equal(t, int64(4000), top.BonusCoins)

	_, err = svc.PackageByID(99)
	assert.ErrorIs(t, err, domainErrors.ErrPackageNotFound)
}

func TestCreateRecharge_Success(t *testing.T) {
	svc, orderRepo, memberRepo, _, gateway := setupOrderService()
	ctx := context.Background()

	memberRepo.AddMember(testutil.NewTestMember(1))

	var intent wechat.CreateIntentParams
	gateway.CreateIntentFunc = func(ctx context.Context, p wechat.CreateIntentParams) (*wechat.PaySessionParams, error) {
		intent = p
		return &wechat.PaySessionParams{Package: "prepay_id=pp1", SignType: "RSA"}, nil
	}

	res, err := svc.CreateRecharge(ctx, 1, 3, "openid-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Order.OrderNo, order.RechargePrefix))
	assert.Equal(t, order.StatusPending, res.Order.Status)
	assert.Equal(t, int64(10000), res.Order.AmountMinor)
	assert.Equal(t, int64(1000), res.Order.Coins)
	assert.Equal(t, int64(150), res.Order.BonusCoins)
	require.NotNil(t, res.PaySession)
	assert.Equal(t, "prepay_id=pp1", res.PaySession.Package)

	// The gateway saw the order number and the minor-unit amount.
	assert.Equal(t, res.Order.OrderNo, intent.OrderNo)
	assert.Equal(t, int64(10000), intent.AmountMinor)
	assert.Equal(t, "openid-1", intent.PayerOpenID)

	assert.NotNil(t, orderRepo.OrderByNo(res.Order.OrderNo))
}

func TestCreateRecharge_UnknownPackage(t *testing.T) {
	svc, _, memberRepo, _, _ := setupOrderService()
	memberRepo.AddMember(testutil.NewTestMember(1))

	_, err := svc.CreateRecharge(context.Background(), 1, 42, "openid-1")
	assert.ErrorIs(t, err, domainErrors.ErrPackageNotFound)
}

func TestCreateRecharge_UnknownMember(t *testing.T) {
	svc, _, _, _, _ := setupOrderService()

	_, err := svc.CreateRecharge(context.Background(), 404, 1, "openid-404")
	assert.ErrorIs(t, err, domainErrors.ErrMemberNotFound)
}

func TestCreateRecharge_IntentFailureMarksOrderFailed(t *testing.T) {
	svc, orderRepo, memberRepo, _, gateway := setupOrderService()
	ctx := context.Background()

	memberRepo.AddMember(testutil.NewTestMember(1))
	var orderNo string
	gateway.CreateIntentFunc = func(ctx context.Context, p wechat.CreateIntentParams) (*wechat.PaySessionParams, error) {
		orderNo = p.OrderNo
		return nil, &domainErrors.GatewayError{Code: "ORDER_CLOSED", Message: "rejected"}
	}

	_, err := svc.CreateRecharge(ctx, 1, 1, "openid-1")
	require.Error(t, err)
	var gwErr *domainErrors.GatewayError
	assert.True(t, errors.As(err, &gwErr))

	// The order number is burned at the gateway; the local order must not
	// stay pending.
	require.NotEmpty(t, orderNo)
	assert.Equal(t, order.StatusFailed, orderRepo.OrderByNo(orderNo).Status)
}

func TestCreateMembershipPurchase_Success(t *testing.T) {
	svc, orderRepo, memberRepo, _, _ := setupOrderService()
	ctx := context.Background()

	memberRepo.AddMember(testutil.NewTestMember(1))
	card := testutil.NewTestCard(7)
	memberRepo.AddCard(card)

	res, err := svc.CreateMembershipPurchase(ctx, 1, 7, "openid-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Order.OrderNo, order.MembershipPrefix))
	assert.Equal(t, card.PriceMinor, res.Order.AmountMinor)
	assert.Equal(t, order.KindMembershipPurchase, res.Order.Kind)

	// The sibling record snapshots the card terms at purchase time.
	mo, err := orderRepo.GetMembershipOrder(ctx, res.Order.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, card.ID, mo.CardID)
	assert.Equal(t, card.LevelID, mo.LevelID)
	assert.Equal(t, card.DurationDays, mo.DurationDays)
	assert.Equal(t, card.BonusCoins, mo.BonusCoins)
	assert.Equal(t, card.BonusPoints, mo.BonusPoints)
	assert.Nil(t, mo.StartAt)
}

func TestCreateMembershipPurchase_UnknownCard(t *testing.T) {
	svc, _, memberRepo, _, _ := setupOrderService()
	memberRepo.AddMember(testutil.NewTestMember(1))

	_, err := svc.CreateMembershipPurchase(context.Background(), 1, 404, "openid-1")
	assert.ErrorIs(t, err, domainErrors.ErrCardNotFound)
}

func TestGetOrder_PendingReconcilesAgainstGateway(t *testing.T) {
	svc, orderRepo, memberRepo, _, gateway := setupOrderService()
	ctx := context.Background()

	memberRepo.AddMember(testutil.NewTestMember(1))
	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 150)
	orderRepo.AddOrder(ord)

	gateway.QueryFunc = func(ctx context.Context, orderNo string) (*wechat.OrderStatusSnapshot, error) {
		return &wechat.OrderStatusSnapshot{
			OutTradeNo: orderNo, TransactionID: "wx-tx-read", TradeState: wechat.TradeStateSuccess,
		}, nil
	}

	got, err := svc.GetOrder(ctx, ord.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	assert.Equal(t, int64(1150), memberRepo.MemberByID(1).CoinBalance)
}

func TestGetOrder_GatewayDownReturnsLocalView(t *testing.T) {
	svc, orderRepo, _, _, gateway := setupOrderService()
	ctx := context.Background()

	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	orderRepo.AddOrder(ord)

	gateway.QueryFunc = func(ctx context.Context, orderNo string) (*wechat.OrderStatusSnapshot, error) {
		return nil, &domainErrors.NetworkError{Op: "GET query", Err: errors.New("timeout")}
	}

	got, err := svc.GetOrder(ctx, ord.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
}

func TestGetOrder_TerminalSkipsGateway(t *testing.T) {
	svc, orderRepo, _, _, gateway := setupOrderService()

	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	ord.Status = order.StatusPaid
	orderRepo.AddOrder(ord)

	gateway.QueryFunc = func(ctx context.Context, orderNo string) (*wechat.OrderStatusSnapshot, error) {
		t.Fatal("gateway must not be queried for a paid order")
		return nil, nil
	}

	got, err := svc.GetOrder(context.Background(), ord.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
}

func TestCloseOrder_GatewayFirstThenLocal(t *testing.T) {
	svc, orderRepo, _, outboxRepo, gateway := setupOrderService()
	ctx := context.Background()

	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	orderRepo.AddOrder(ord)

	require.NoError(t, svc.CloseOrder(ctx, ord.OrderNo))

	assert.Equal(t, []string{ord.OrderNo}, gateway.CloseCalls())
	assert.Equal(t, order.StatusClosed, orderRepo.OrderByNo(ord.OrderNo).Status)

	entries := outboxRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventOrderClosed, entries[0].EventType)
}

func TestCloseOrder_GatewayFailureLeavesOrderPending(t *testing.T) {
	svc, orderRepo, _, _, gateway := setupOrderService()

	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	orderRepo.AddOrder(ord)
	gateway.CloseFunc = func(ctx context.Context, orderNo string) error {
		return &domainErrors.NetworkError{Op: "POST close", Err: errors.New("timeout")}
	}

	err := svc.CloseOrder(context.Background(), ord.OrderNo)
	require.Error(t, err)
	assert.Equal(t, order.StatusPending, orderRepo.OrderByNo(ord.OrderNo).Status)
}

func TestCloseOrder_NonPendingRejected(t *testing.T) {
	svc, orderRepo, _, _, gateway := setupOrderService()

	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	ord.Status = order.StatusPaid
	orderRepo.AddOrder(ord)

	err := svc.CloseOrder(context.Background(), ord.OrderNo)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	assert.Empty(t, gateway.CloseCalls())
}

func TestCloseOrder_LostRaceToSettlement(t *testing.T) {
	svc, orderRepo, _, _, _ := setupOrderService()

	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	orderRepo.AddOrder(ord)

	// Settlement flips the order between our read and the conditional
	// close.
	orderRepo.UpdateStatFunc = func(ctx context.Context, orderNo string, from, to order.Status) (bool, error) {
		return false, nil
	}

	err := svc.CloseOrder(context.Background(), ord.OrderNo)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
}

func TestRefundOrder_FullAmountByDefault(t *testing.T) {
	svc, orderRepo, _, outboxRepo, gateway := setupOrderService()
	ctx := context.Background()

	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	ord.Status = order.StatusPaid
	orderRepo.AddOrder(ord)

	var refund wechat.RefundParams
	gateway.RefundFunc = func(ctx context.Context, p wechat.RefundParams) (*wechat.RefundResult, error) {
		refund = p
		return &wechat.RefundResult{RefundID: "rf-1", OutRefundNo: p.RefundNo, Status: "SUCCESS"}, nil
	}

	res, err := svc.RefundOrder(ctx, ord.OrderNo, "RF0001", 0, "user request")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", res.Status)
	assert.Equal(t, int64(10000), refund.RefundMinor)
	assert.Equal(t, int64(10000), refund.TotalMinor)

	assert.Equal(t, order.StatusRefunded, orderRepo.OrderByNo(ord.OrderNo).Status)
	entries := outboxRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, outbox.EventOrderRefunded, entries[0].EventType)
}

func TestRefundOrder_PartialAmount(t *testing.T) {
	svc, orderRepo, _, _, gateway := setupOrderService()

	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	ord.Status = order.StatusPaid
	orderRepo.AddOrder(ord)

	var refund wechat.RefundParams
	gateway.RefundFunc = func(ctx context.Context, p wechat.RefundParams) (*wechat.RefundResult, error) {
		refund = p
		return &wechat.RefundResult{Status: "SUCCESS"}, nil
	}

	_, err := svc.RefundOrder(context.Background(), ord.OrderNo, "RF0002", 2500, "partial")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), refund.RefundMinor)
}

func TestRefundOrder_AmountExceedsOrder(t *testing.T) {
	svc, orderRepo, _, _, _ := setupOrderService()

	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	ord.Status = order.StatusPaid
	orderRepo.AddOrder(ord)

	_, err := svc.RefundOrder(context.Background(), ord.OrderNo, "RF0003", 20000, "too much")
	require.Error(t, err)
	var vErr *domainErrors.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, order.StatusPaid, orderRepo.OrderByNo(ord.OrderNo).Status)
}

func TestRefundOrder_UnpaidRejected(t *testing.T) {
	svc, orderRepo, _, _, gateway := setupOrderService()

	ord := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	orderRepo.AddOrder(ord)

	called := false
	gateway.RefundFunc = func(ctx context.Context, p wechat.RefundParams) (*wechat.RefundResult, error) {
		called = true
		return nil, nil
	}

	_, err := svc.RefundOrder(context.Background(), ord.OrderNo, "RF0004", 0, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	assert.False(t, called)
}
