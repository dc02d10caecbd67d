package order

import (
	"errors"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingOrder(t *testing.T) *PaymentOrder {
	t.Helper()
	o, err := NewOrder(NewOrderNo(RechargePrefix), KindWalletRecharge, 1, 1000, "test", 30*time.Minute)
	require.NoError(t, err)
	return o
}

func TestNewOrder_Validation(t *testing.T) {
	_, err := NewOrder("", KindWalletRecharge, 1, 1000, "test", time.Minute)
	assert.Error(t, err)

	_, err = NewOrder("CZ123", KindWalletRecharge, 1, 0, "test", time.Minute)
	assert.Error(t, err)

	_, err = NewOrder("CZ123", Kind("bogus"), 1, 1000, "test", time.Minute)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidOrderKind)
}

func TestNewOrderNo_Prefix(t *testing.T) {
	no := NewOrderNo(RechargePrefix)
	assert.True(t, strings.HasPrefix(no, "CZ"))
	assert.Greater(t, len(no), len("CZ20060102150405"))

	// Consecutive numbers must differ.
	assert.NotEqual(t, NewOrderNo(MembershipPrefix), NewOrderNo(MembershipPrefix))
}

func TestKindFromOrderNo(t *testing.T) {
	assert.Equal(t, KindWalletRecharge, KindFromOrderNo("CZ20240101120000ABC123"))
	assert.Equal(t, KindMembershipPurchase, KindFromOrderNo("MC20240101120000ABC123"))
}

func TestTransitionTo_PendingEdges(t *testing.T) {
	for _, target := range []Status{StatusPaid, StatusClosed, StatusFailed} {
		o := newPendingOrder(t)
		require.NoError(t, o.TransitionTo(target))
		assert.Equal(t, target, o.Status)
	}
}

func TestTransitionTo_SameStateIsNoOp(t *testing.T) {
	o := newPendingOrder(t)
	require.NoError(t, o.TransitionTo(StatusClosed))

	// Closing again is absorbed, not rejected.
	assert.NoError(t, o.TransitionTo(StatusClosed))
	assert.Equal(t, StatusClosed, o.Status)
}

func TestTransitionTo_ClosedRejectsLateSuccess(t *testing.T) {
	o := newPendingOrder(t)
	require.NoError(t, o.MarkClosed())

	// A success report arriving after close must never flip the order.
	err := o.MarkPaid("wx-tx-1", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainErrors.ErrInvalidStateTransition))
	assert.Equal(t, StatusClosed, o.Status)
	assert.Nil(t, o.GatewayTransactionID)
}

func TestTransitionTo_PaidAdmitsOnlyRefund(t *testing.T) {
	o := newPendingOrder(t)
	require.NoError(t, o.MarkPaid("wx-tx-1", time.Now()))
	require.NotNil(t, o.PaidAt)
	require.NotNil(t, o.GatewayTransactionID)

	assert.Error(t, o.TransitionTo(StatusClosed))
	assert.Error(t, o.TransitionTo(StatusFailed))
	assert.NoError(t, o.MarkRefunded())
	assert.Equal(t, StatusRefunded, o.Status)
}

func TestTransitionTo_RefundedIsTerminal(t *testing.T) {
	o := newPendingOrder(t)
	require.NoError(t, o.MarkPaid("wx-tx-1", time.Now()))
	require.NoError(t, o.MarkRefunded())

	assert.Error(t, o.TransitionTo(StatusPaid))
	assert.Error(t, o.TransitionTo(StatusPending))
}

func TestIsExpired(t *testing.T) {
	o := newPendingOrder(t)
	assert.False(t, o.IsExpired(time.Now()))
	assert.True(t, o.IsExpired(time.Now().Add(31*time.Minute)))

	// Paid orders never count as expired.
	require.NoError(t, o.MarkPaid("wx-tx-1", time.Now()))
	assert.False(t, o.IsExpired(time.Now().Add(31*time.Minute)))
}

func TestIsTerminal(t *testing.T) {
	o := newPendingOrder(t)
	assert.False(t, o.IsTerminal())
	require.NoError(t, o.MarkFailed())
	assert.True(t, o.IsTerminal())
}
