package order

import (
	"context"
	"time"
)

// Repository is the persistence contract for payment orders. The order
// record is the only shared mutable resource in the subsystem; all status
// mutations go through the conditional operations below.
type Repository interface {
	Create(ctx context.Context, o *PaymentOrder) error
	GetByOrderNo(ctx context.Context, orderNo string) (*PaymentOrder, error)

	// MarkPaid is the conditional pending -> paid write. It succeeds only
	// if the stored status is still pending, setting the transaction id,
	// paid_at, and side_effect_applied in the same statement. Returns
	// false when the order was no longer pending (the caller lost the
	// race or the order is terminal).
	MarkPaid(ctx context.Context, orderNo, transactionID string, paidAt time.Time) (bool, error)

	// UpdateStatus is a conditional transition from one status to
	// another. Returns false when the stored status did not match from.
	UpdateStatus(ctx context.Context, orderNo string, from, to Status) (bool, error)

	// ListPendingExpired returns pending orders past their expiry, for
	// the close sweep.
	ListPendingExpired(ctx context.Context, now time.Time, limit int) ([]*PaymentOrder, error)

	// ListPendingStale returns pending orders created before the cutoff,
	// for active reconciliation when no notification arrived.
	ListPendingStale(ctx context.Context, cutoff time.Time, limit int) ([]*PaymentOrder, error)

	CreateMembershipOrder(ctx context.Context, m *MembershipOrder) error
	GetMembershipOrder(ctx context.Context, orderNo string) (*MembershipOrder, error)
	UpdateMembershipPeriod(ctx context.Context, orderNo string, startAt, expireAt time.Time) error
}
