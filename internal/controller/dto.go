package controller

import (
	"time"

	"github.com/cassiomorais/settlement/internal/domain/order"
	"github.com/cassiomorais/settlement/internal/wechat"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (string ids, validation tags).
// Controllers convert these to service layer inputs before calling
// business logic.

// CreateRechargeRequest holds the input for creating a recharge order.
type CreateRechargeRequest struct {
	MemberID  int64  `json:"member_id" validate:"required,gt=0"`
	PackageID int64  `json:"package_id" validate:"required,gt=0"`
	OpenID    string `json:"openid" validate:"required"`
}

// CreateMembershipRequest holds the input for creating a membership
// purchase order.
type CreateMembershipRequest struct {
	MemberID int64  `json:"member_id" validate:"required,gt=0"`
	CardID   int64  `json:"card_id" validate:"required,gt=0"`
	OpenID   string `json:"openid" validate:"required"`
}

// RefundOrderRequest holds the input for refunding a paid order. A zero
// amount refunds in full.
type RefundOrderRequest struct {
	RefundNo    string `json:"refund_no,omitempty"`
	RefundMinor int64  `json:"refund_minor" validate:"gte=0"`
	Reason      string `json:"reason,omitempty"`
}

// --- Response DTOs ---

// ErrorResponse is the error envelope for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// OrderResponse represents a payment order in API responses.
type OrderResponse struct {
	OrderNo              string     `json:"order_no"`
	Kind                 string     `json:"kind"`
	MemberID             int64      `json:"member_id"`
	AmountMinor          int64      `json:"amount_minor"`
	Description          string     `json:"description"`
	Status               string     `json:"status"`
	GatewayTransactionID *string    `json:"gateway_transaction_id,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	ExpiresAt            time.Time  `json:"expires_at"`
	Coins                int64      `json:"coins,omitempty"`
	BonusCoins           int64      `json:"bonus_coins,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// CreateOrderResponse is the reply to order creation: the order itself
// plus the parameters the client hands to the payment sheet.
type CreateOrderResponse struct {
	Order      OrderResponse            `json:"order"`
	PaySession *wechat.PaySessionParams `json:"pay_params"`
}

// RefundResponse acknowledges a refund.
type RefundResponse struct {
	RefundID    string `json:"refund_id"`
	OutRefundNo string `json:"out_refund_no"`
	Status      string `json:"status"`
	RefundMinor int64  `json:"refund_minor"`
}

// notifyReply is the acknowledgement format the payment gateway expects
// from a notification endpoint.
type notifyReply struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func toOrderResponse(o *order.PaymentOrder) OrderResponse {
	return OrderResponse{
		OrderNo:              o.OrderNo,
		Kind:                 string(o.Kind),
		MemberID:             o.SubjectID,
		AmountMinor:          o.AmountMinor,
		Description:          o.Description,
		Status:               string(o.Status),
		GatewayTransactionID: o.GatewayTransactionID,
		PaidAt:               o.PaidAt,
		ExpiresAt:            o.ExpiresAt,
		Coins:                o.Coins,
		BonusCoins:           o.BonusCoins,
		CreatedAt:            o.CreatedAt,
	}
}
