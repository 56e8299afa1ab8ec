package handler

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hirelanka/billing-service/internal/billing"
	"github.com/hirelanka/billing-service/internal/payhere"
)

// BillingHandler handles HTTP requests for checkout, payment notifications
// and order status.
type BillingHandler struct {
	svc billing.Service
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(svc billing.Service) *BillingHandler {
	return &BillingHandler{svc: svc}
}

// CreateCheckout handles the browser-initiated purchase request and returns
// the signed PayHere checkout parameters.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req billing.CheckoutRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params, err := h.svc.InitiateCheckout(r.Context(), req)
	if err != nil {
		code := mapErrorToStatusCode(err)
		if code == http.StatusInternalServerError {
			log.Error().Err(err).Msg("handler: failed to initiate checkout")
			respondWithError(w, code, "failed to initiate checkout")
			return
		}
		respondWithError(w, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]*payhere.CheckoutParams{"payhereData": params})
}

// HandleNotification receives the asynchronous PayHere callback. PayHere
// retries until it gets a 200, so every mapped status branch acknowledges
// with a plain "OK"; only the rejection gates respond with non-200 codes.
func (h *BillingHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/x-www-form-urlencoded" {
		respondWithError(w, http.StatusUnsupportedMediaType, "expected form-encoded body")
		return
	}

	if err := r.ParseForm(); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	n := payhere.ParseNotification(r.PostForm)

	if err := h.svc.ProcessNotification(r.Context(), n); err != nil {
		code := mapErrorToStatusCode(err)
		if code == http.StatusInternalServerError {
			log.Error().Err(err).Str("order_id", n.OrderID).Str("payment_id", n.PaymentID).Str("status_code", n.StatusCode).Msg("handler: failed to process payment notification")
			respondWithError(w, code, "failed to process notification")
			return
		}
		respondWithError(w, code, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// GetOrderByID returns order status for the browser return-page poll. It is
// read-only; the order may be in any lifecycle state when queried.
func (h *BillingHandler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.svc.GetOrderByID(r.Context(), id)
	if err != nil {
		code := mapErrorToStatusCode(err)
		if code == http.StatusInternalServerError {
			log.Error().Err(err).Stringer("order_id", id).Msg("handler: failed to get order")
			respondWithError(w, code, "failed to get order")
			return
		}
		respondWithError(w, code, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

// GetCompanySettlements lists the ids of a company's successfully settled
// orders, oldest first.
func (h *BillingHandler) GetCompanySettlements(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	ids, err := h.svc.GetSettledOrderIDs(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Stringer("company_id", id).Msg("handler: failed to list company settlements")
		respondWithError(w, http.StatusInternalServerError, "failed to list company settlements")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string][]uuid.UUID{"orderIds": ids})
}

// GetCompanyOrders lists a company's purchase history, newest first.
func (h *BillingHandler) GetCompanyOrders(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	orders, err := h.svc.GetOrdersByCompanyID(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Stringer("company_id", id).Msg("handler: failed to list company orders")
		respondWithError(w, http.StatusInternalServerError, "failed to list company orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}
