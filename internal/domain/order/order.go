package order

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/cassiomorais/settlement/internal/domain/errors"
)

// Kind selects which side-effect handler runs when the order settles.
type Kind string

const (
	KindWalletRecharge     Kind = "wallet_recharge"
	KindMembershipPurchase Kind = "membership_purchase"
)

// Order-number prefixes, carried over from the miniprogram clients which
// route notifications by prefix.
const (
	RechargePrefix   = "CZ"
	MembershipPrefix = "MC"
)

// Status represents the order status in the state machine.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusClosed   Status = "closed"
	StatusRefunded Status = "refunded"
)

// PaymentOrder is the persisted order record. OrderNo is the sole
// correlation key between creation, the webhook, and polling, and doubles
// as the idempotency key at the gateway.
type PaymentOrder struct {
	OrderNo              string
	Kind                 Kind
	SubjectID            int64 // owning member
	AmountMinor          int64 // minor currency units, never floats
	Description          string
	Attach               string
	Status               Status
	GatewayTransactionID *string
	PaidAt               *time.Time
	ExpiresAt            time.Time
	SideEffectApplied    bool
	Coins                int64 // recharge orders: coins purchased
	BonusCoins           int64 // recharge orders: bonus coins granted
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// MembershipOrder is the sibling record for membership purchases. Start
// and expiry are set when the order settles, stacking on any membership
// still in effect.
type MembershipOrder struct {
	OrderNo      string
	CardID       int64
	LevelID      int64
	DurationDays int
	BonusCoins   int64
	BonusPoints  int64
	StartAt      *time.Time
	ExpireAt     *time.Time
}

// NewOrder creates a pending payment order.
func NewOrder(orderNo string, kind Kind, subjectID, amountMinor int64, description string, ttl time.Duration) (*PaymentOrder, error) {
	if orderNo == "" {
		return nil, errors.NewValidationError("order_no", "cannot be empty")
	}
	if amountMinor <= 0 {
		return nil, errors.NewValidationError("amount", "must be greater than 0")
	}
	if kind != KindWalletRecharge && kind != KindMembershipPurchase {
		return nil, errors.ErrInvalidOrderKind
	}

	now := time.Now()
	return &PaymentOrder{
		OrderNo:     orderNo,
		Kind:        kind,
		SubjectID:   subjectID,
		AmountMinor: amountMinor,
		Description: description,
		Status:      StatusPending,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NewOrderNo generates a merchant order number: prefix, timestamp, and a
// random suffix. The gateway rejects duplicates, which is a useful safety
// net on top of local uniqueness.
func NewOrderNo(prefix string) string {
	buf := make([]byte, 3)
	rand.Read(buf)
	return prefix + time.Now().Format("20060102150405") + strings.ToUpper(hex.EncodeToString(buf))
}

// KindFromOrderNo routes by prefix, the way the webhook distinguishes
// recharge from membership orders.
func KindFromOrderNo(orderNo string) Kind {
	if strings.HasPrefix(orderNo, MembershipPrefix) {
		return KindMembershipPurchase
	}
	return KindWalletRecharge
}

// transitions is a DAG with a single edge out of a terminal state:
// paid -> refunded.
var transitions = map[Status][]Status{
	StatusPending:  {StatusPaid, StatusClosed, StatusFailed},
	StatusPaid:     {StatusRefunded},
	StatusFailed:   {},
	StatusClosed:   {},
	StatusRefunded: {},
}

// CanTransitionTo checks whether the order may move to newStatus.
func (o *PaymentOrder) CanTransitionTo(newStatus Status) bool {
	for _, allowed := range transitions[o.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to newStatus. Transitioning to the current
// status is a no-op; any other disallowed transition is rejected, never
// silently overwritten.
func (o *PaymentOrder) TransitionTo(newStatus Status) error {
	if o.Status == newStatus {
		return nil
	}
	if !o.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(o.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	o.Status = newStatus
	o.UpdatedAt = time.Now()
	return nil
}

// MarkPaid records the success transition. The repository performs the
// conditional write; this mutates the in-memory copy to match.
func (o *PaymentOrder) MarkPaid(transactionID string, paidAt time.Time) error {
	if err := o.TransitionTo(StatusPaid); err != nil {
		return err
	}
	o.GatewayTransactionID = &transactionID
	o.PaidAt = &paidAt
	return nil
}

// MarkClosed transitions the order to closed.
func (o *PaymentOrder) MarkClosed() error {
	return o.TransitionTo(StatusClosed)
}

// MarkFailed transitions the order to failed.
func (o *PaymentOrder) MarkFailed() error {
	return o.TransitionTo(StatusFailed)
}

// MarkRefunded transitions the order to refunded.
func (o *PaymentOrder) MarkRefunded() error {
	return o.TransitionTo(StatusRefunded)
}

// IsTerminal reports whether no further transition is possible except the
// paid -> refunded edge.
func (o *PaymentOrder) IsTerminal() bool {
	return o.Status != StatusPending
}

// IsExpired reports whether the order passed its expiry without settling.
func (o *PaymentOrder) IsExpired(now time.Time) bool {
	return o.Status == StatusPending && now.After(o.ExpiresAt)
}
