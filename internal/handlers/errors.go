package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/feastline/api/internal/platform/httpx"
	"github.com/feastline/api/internal/payments"
	"github.com/feastline/api/internal/services"
)

// writeServiceError translates service sentinels into the httpx envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput),
		errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden),
		errors.Is(err, services.ErrPaymentForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "caller may not perform this operation", http.StatusForbidden))
	case errors.Is(err, services.ErrItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("item_unavailable", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrMixedVendorOrder):
		httpx.WriteError(ctx, w, httpx.NewError("mixed_vendor_order", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderInvalidTransition),
		errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrSignatureMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("signature_mismatch", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotCaptured):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_captured", err.Error(), http.StatusPaymentRequired))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "concurrent update, retry the request", http.StatusConflict))
	case errors.Is(err, payments.ErrGatewayUnavailable),
		errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "upstream dependency unavailable, retry later", http.StatusServiceUnavailable))
	case errors.Is(err, payments.ErrUnsupportedProvider):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}
