package controller

import (
	"net/http"

	"github.com/cassiomorais/settlement/internal/domain/order"
	"github.com/cassiomorais/settlement/internal/service"
	"github.com/go-chi/chi/v5"
)

// OrderController handles order-related HTTP requests.
type OrderController struct {
	orderService *service.OrderService
}

// NewOrderController creates a new OrderController.
func NewOrderController(orderService *service.OrderService) *OrderController {
	return &OrderController{orderService: orderService}
}

// ListPackages handles GET /api/v1/recharge/packages
func (h *OrderController) ListPackages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orderService.Packages())
}

// CreateRecharge handles POST /api/v1/recharge/orders
func (h *OrderController) CreateRecharge(w http.ResponseWriter, r *http.Request) {
	var req CreateRechargeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.orderService.CreateRecharge(r.Context(), req.MemberID, req.PackageID, req.OpenID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateOrderResponse{
		Order:      toOrderResponse(result.Order),
		PaySession: result.PaySession,
	})
}

// CreateMembership handles POST /api/v1/membership/orders
func (h *OrderController) CreateMembership(w http.ResponseWriter, r *http.Request) {
	var req CreateMembershipRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.orderService.CreateMembershipPurchase(r.Context(), req.MemberID, req.CardID, req.OpenID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateOrderResponse{
		Order:      toOrderResponse(result.Order),
		PaySession: result.PaySession,
	})
}

// GetOrder handles GET /api/v1/orders/{order_no}. Pending orders are
// reconciled against the gateway before answering.
func (h *OrderController) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderNo := chi.URLParam(r, "order_no")

	ord, err := h.orderService.GetOrder(r.Context(), orderNo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(ord))
}

// CloseOrder handles POST /api/v1/orders/{order_no}/close
func (h *OrderController) CloseOrder(w http.ResponseWriter, r *http.Request) {
	orderNo := chi.URLParam(r, "order_no")

	if err := h.orderService.CloseOrder(r.Context(), orderNo); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"order_no": orderNo,
		"status":   string(order.StatusClosed),
	})
}

// RefundOrder handles POST /api/v1/orders/{order_no}/refund
func (h *OrderController) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderNo := chi.URLParam(r, "order_no")

	var req RefundOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	refundNo := req.RefundNo
	if refundNo == "" {
		refundNo = order.NewOrderNo("RF")
	}

	result, err := h.orderService.RefundOrder(r.Context(), orderNo, refundNo, req.RefundMinor, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RefundResponse{
		RefundID:    result.RefundID,
		OutRefundNo: result.OutRefundNo,
		Status:      result.Status,
		RefundMinor: result.Amount.Refund,
	})
}
