package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/feastline/api/internal/domain"
	"github.com/feastline/api/internal/platform/auth"
	"github.com/feastline/api/internal/platform/httpx"
	"github.com/feastline/api/internal/services"
)

const maxPaymentBodySize = 16 * 1024

type verifyPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type refundRequest struct {
	Amount float64 `json:"amount,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

type paymentIntentResponse struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	IntentID    string `json:"intent_id"`
	Provider    string `json:"provider"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// PaymentHandlers exposes the payment endpoints.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/initiate", h.initiate)
	r.Post("/{orderID}/verify", h.verify)
	r.With(auth.RequireRoles(domain.RoleVendor, domain.RoleAdmin)).
		Post("/{orderID}/refund", h.refund)
}

func (h *PaymentHandlers) initiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !identity.IsCustomer() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the ordering customer initiates payment", http.StatusForbidden))
		return
	}
	orderID, ok := requireOrderID(w, r)
	if !ok {
		return
	}

	result, err := h.payments.Initiate(ctx, identity.UserID, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, paymentIntentResponse{
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
		IntentID:    result.IntentID,
		Provider:    result.Provider,
		Amount:      result.Amount,
		Currency:    result.Currency,
	})
}

func (h *PaymentHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !identity.IsCustomer() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the ordering customer verifies payment", http.StatusForbidden))
		return
	}
	orderID, ok := requireOrderID(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if err := decodeJSON(w, r, maxPaymentBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.payments.Verify(ctx, services.VerifyPaymentCommand{
		OrderID:          orderID,
		CustomerID:       identity.UserID,
		GatewayPaymentID: req.PaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *PaymentHandlers) refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := requireOrderID(w, r)
	if !ok {
		return
	}

	var req refundRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, maxPaymentBodySize, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	order, err := h.payments.Refund(ctx, services.RefundCommand{
		OrderID: orderID,
		ActorID: identity.UserID,
		Role:    identity.Role,
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}
