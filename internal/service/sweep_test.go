package service

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/cassiomorais/settlement/internal/domain/order"
	"github.com/cassiomorais/settlement/internal/testutil"
	"github.com/cassiomorais/settlement/internal/wechat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepExpired_ClosesPastExpiry(t *testing.T) {
	svc, orderRepo, _, _, gateway, _ := setupSettlementService()
	ctx := context.Background()

	expired := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	orderRepo.AddOrder(expired)

	fresh := testutil.NewTestRechargeOrder(1, 5000, 500, 50)
	orderRepo.AddOrder(fresh)

	closed, err := svc.SweepExpired(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	assert.Equal(t, order.StatusClosed, orderRepo.OrderByNo(expired.OrderNo).Status)
	assert.Equal(t, order.StatusPending, orderRepo.OrderByNo(fresh.OrderNo).Status)
	assert.Equal(t, []string{expired.OrderNo}, gateway.CloseCalls())
}

func TestSweepExpired_GatewayRefusalSkipsOrder(t *testing.T) {
	svc, orderRepo, _, _, gateway, _ := setupSettlementService()

	expired := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	orderRepo.AddOrder(expired)

	gateway.CloseFunc = func(ctx context.Context, orderNo string) error {
		return &domainErrors.NetworkError{Op: "POST close", Err: errors.New("timeout")}
	}

	closed, err := svc.SweepExpired(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
	// Left pending for the next sweep.
	assert.Equal(t, order.StatusPending, orderRepo.OrderByNo(expired.OrderNo).Status)
}

func TestReconcileStale_SettlesLostWebhook(t *testing.T) {
	svc, orderRepo, memberRepo, _, gateway, _ := setupSettlementService()
	ctx := context.Background()

	memberRepo.AddMember(testutil.NewTestMember(1))
	stale := testutil.NewTestRechargeOrder(1, 10000, 1000, 150)
	stale.CreatedAt = time.Now().Add(-time.Hour)
	orderRepo.AddOrder(stale)

	gateway.QueryFunc = func(ctx context.Context, orderNo string) (*wechat.OrderStatusSnapshot, error) {
		return &wechat.OrderStatusSnapshot{
			OutTradeNo: orderNo, TransactionID: "wx-tx-stale", TradeState: wechat.TradeStateSuccess,
		}, nil
	}

	reconciled, err := svc.ReconcileStale(ctx, time.Now().Add(-30*time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)
	assert.Equal(t, order.StatusPaid, orderRepo.OrderByNo(stale.OrderNo).Status)
	assert.Equal(t, int64(1150), memberRepo.MemberByID(1).CoinBalance)
}

func TestReconcileStale_GatewayDownSkips(t *testing.T) {
	svc, orderRepo, _, _, gateway, _ := setupSettlementService()

	stale := testutil.NewTestRechargeOrder(1, 10000, 1000, 0)
	stale.CreatedAt = time.Now().Add(-time.Hour)
	orderRepo.AddOrder(stale)

	gateway.QueryFunc = func(ctx context.Context, orderNo string) (*wechat.OrderStatusSnapshot, error) {
		return nil, &domainErrors.NetworkError{Op: "GET query", Err: errors.New("refused")}
	}

	reconciled, err := svc.ReconcileStale(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, reconciled)
	assert.Equal(t, order.StatusPending, orderRepo.OrderByNo(stale.OrderNo).Status)
}
