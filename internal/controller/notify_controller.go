package controller

import (
	"errors"
	"io"
	"net/http"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/cassiomorais/settlement/internal/service"
)

// maxNotifyBody bounds notification bodies; real deliveries are a few KB.
const maxNotifyBody = 1 << 20

// NotifyController receives payment notifications from the gateway.
type NotifyController struct {
	notifications *service.NotificationService
}

// NewNotifyController creates a new NotifyController.
func NewNotifyController(notifications *service.NotificationService) *NotifyController {
	return &NotifyController{notifications: notifications}
}

// HandleNotify handles POST /api/v1/payments/notify.
//
// The signature covers the exact bytes on the wire, so the body is read
// raw and handed down untouched; re-serializing a parsed body would break
// verification. Replies use the gateway's acknowledgement format: any
// non-SUCCESS reply makes the gateway redeliver later.
func (h *NotifyController) HandleNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotifyBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, notifyReply{Code: "FAIL", Message: "unreadable body"})
		return
	}

	headers := service.NotificationHeaders{
		Timestamp: r.Header.Get("Wechatpay-Timestamp"),
		Nonce:     r.Header.Get("Wechatpay-Nonce"),
		Signature: r.Header.Get("Wechatpay-Signature"),
		Serial:    r.Header.Get("Wechatpay-Serial"),
	}

	if err := h.notifications.Process(r.Context(), headers, body); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domainErrors.ErrVerificationFailed) ||
			errors.Is(err, domainErrors.ErrUnknownKeySerial) {
			status = http.StatusUnauthorized
		} else if errors.Is(err, domainErrors.ErrDecryptionFailed) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, notifyReply{Code: "FAIL", Message: "notification not processed"})
		return
	}

	writeJSON(w, http.StatusOK, notifyReply{Code: "SUCCESS"})
}
