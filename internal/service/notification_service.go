package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/cassiomorais/settlement/internal/infrastructure/observability"
	"github.com/cassiomorais/settlement/internal/wechat"
	"github.com/rs/zerolog/log"
)

// NotificationHeaders are the signature headers of an inbound gateway
// notification.
type NotificationHeaders struct {
	Timestamp string
	Nonce     string
	Signature string
	Serial    string
}

// NotificationVerifier checks a notification signature over the raw
// body bytes. *wechat.CallbackVerifier satisfies it.
type NotificationVerifier interface {
	Verify(timestamp, nonce string, body []byte, signatureB64, serial string) error
}

// NotificationDecryptor opens the AEAD envelope of a verified
// notification. *wechat.ResourceDecryptor satisfies it.
type NotificationDecryptor interface {
	Decrypt(res wechat.EncryptedResource) (*wechat.TransactionResource, error)
}

// NotificationService processes inbound payment notifications: verify
// the signature over the exact raw body, decrypt the resource, and hand
// the result to settlement. Verification strictly precedes decryption;
// an unverified body is never decrypted or parsed further.
type NotificationService struct {
	verifier   NotificationVerifier
	decryptor  NotificationDecryptor
	settlement *SettlementService
	metrics    *observability.Metrics
}

func NewNotificationService(
	verifier NotificationVerifier,
	decryptor NotificationDecryptor,
	settlement *SettlementService,
	metrics *observability.Metrics,
) *NotificationService {
	return &NotificationService{
		verifier:   verifier,
		decryptor:  decryptor,
		settlement: settlement,
		metrics:    metrics,
	}
}

// Process handles one notification delivery. A nil return means the
// delivery is consumed and the gateway should stop redelivering; an
// error means the gateway should redeliver. Duplicate deliveries are
// absorbed by the settlement idempotency boundary, so both are safe.
func (s *NotificationService) Process(ctx context.Context, h NotificationHeaders, body []byte) error {
	if err := s.verifier.Verify(h.Timestamp, h.Nonce, body, h.Signature, h.Serial); err != nil {
		s.countNotification(verifyFailureLabel(err))
		if s.metrics != nil {
			s.metrics.NotificationVerifyFailure.Inc()
		}
		log.Warn().
			Str("serial", h.Serial).
			Str("reason", verifyFailureLabel(err)).
			Msg("notification rejected before processing")
		return err
	}

	var note wechat.NotificationBody
	if err := json.Unmarshal(body, &note); err != nil {
		s.countNotification("malformed_body")
		return fmt.Errorf("parse notification body: %w", err)
	}

	res, err := s.decryptor.Decrypt(note.Resource)
	if err != nil {
		s.countNotification("decrypt_failed")
		log.Warn().
			Str("notification_id", note.ID).
			Msg("notification resource failed decryption")
		return err
	}

	if res.TradeState != wechat.TradeStateSuccess {
		// Only success events settle; anything else is consumed without
		// local effect and left to the reconciler.
		s.countNotification("ignored")
		log.Info().
			Str("order_no", res.OutTradeNo).
			Str("trade_state", res.TradeState).
			Msg("non-success notification ignored")
		return nil
	}

	outcome, err := s.settlement.Settle(ctx, SettleParams{
		OrderNo:       res.OutTradeNo,
		TransactionID: res.TransactionID,
		PaidAt:        parseGatewayTime(res.SuccessTime),
		Path:          PathWebhook,
	})
	if err != nil {
		s.countNotification("settle_error")
		return err
	}

	switch outcome {
	case OutcomeUnknownOrder:
		// Anomaly: the gateway knows an order number we never issued.
		// Consumed, not redelivered; redelivery cannot make it known.
		s.countNotification("unknown_order")
		log.Error().
			Str("order_no", res.OutTradeNo).
			Str("transaction_id", res.TransactionID).
			Msg("notification for unknown order")
	case OutcomeAlreadyApplied:
		s.countNotification("duplicate")
	default:
		s.countNotification("ok")
	}
	return nil
}

func (s *NotificationService) countNotification(result string) {
	if s.metrics != nil {
		s.metrics.NotificationsTotal.WithLabelValues(result).Inc()
	}
}

func verifyFailureLabel(err error) string {
	if errors.Is(err, domainErrors.ErrUnknownKeySerial) {
		return "bad_serial"
	}
	return "bad_signature"
}
