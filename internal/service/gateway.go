package service

import (
	"context"

	"github.com/cassiomorais/settlement/internal/wechat"
)

// PaymentGateway is the outbound surface of the payment gateway the
// services depend on. The wechat client satisfies it; tests substitute
// a mock.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, p wechat.CreateIntentParams) (*wechat.PaySessionParams, error)
	Query(ctx context.Context, orderNo string) (*wechat.OrderStatusSnapshot, error)
	Close(ctx context.Context, orderNo string) error
	Refund(ctx context.Context, p wechat.RefundParams) (*wechat.RefundResult, error)
}
