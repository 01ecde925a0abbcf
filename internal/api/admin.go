package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/punchamoorthee/callbackops/internal/models"
	"github.com/punchamoorthee/callbackops/internal/service"
	"go.uber.org/zap"
)

// ActivateSubscription manually grants a year of premium access, for
// payments whose callback never reconciled.
func (h *Handler) ActivateSubscription(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/admin/subscriptions/activate"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(r.Method, endpoint))
	defer timer.ObserveDuration()

	var req models.ActivationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", r.Method, endpoint)
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, "userId and depositId are required", r.Method, endpoint)
		return
	}

	sub, err := h.subs.Activate(r.Context(), service.ActivationInput{
		OwnerID:          req.UserID,
		PaymentReference: req.DepositID,
		PaymentMethod:    req.PaymentMethod,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			h.respondError(w, http.StatusBadRequest, err.Error(), r.Method, endpoint)
			return
		}
		requestLogger(r.Context(), h.logger).Error("Manual activation failed", zap.String("owner_id", req.UserID), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Activation failed", r.Method, endpoint)
		return
	}

	admin := ""
	if c := claimsFrom(r.Context()); c != nil {
		admin = c.UserID
	}
	requestLogger(r.Context(), h.logger).Info("Subscription manually activated",
		zap.String("owner_id", sub.OwnerID),
		zap.String("deposit_id", req.DepositID),
		zap.String("admin_id", admin),
	)
	h.respondJSON(w, http.StatusOK, models.ActivationResponse{
		Success:      true,
		Message:      "Subscription activated successfully",
		UserID:       sub.OwnerID,
		DepositID:    req.DepositID,
		Subscription: sub,
	}, r.Method, endpoint)
}

func (h *Handler) DeactivateSubscription(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/admin/subscriptions/deactivate"

	var req models.DeactivationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", r.Method, endpoint)
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, "userId is required and status must be expired or cancelled", r.Method, endpoint)
		return
	}

	err := h.subs.Deactivate(r.Context(), req.UserID, domain.SubscriptionStatus(req.Status), req.Reason)
	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		h.respondError(w, http.StatusNotFound, "Subscription not found", r.Method, endpoint)
		return
	case err != nil:
		requestLogger(r.Context(), h.logger).Error("Deactivation failed", zap.String("owner_id", req.UserID), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Deactivation failed", r.Method, endpoint)
		return
	}

	sub, entitled, err := h.subs.Lookup(r.Context(), req.UserID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Lookup failed", r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, models.SubscriptionView{Subscription: sub, Entitled: entitled}, r.Method, endpoint)
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/subscriptions/{userId}"

	sub, entitled, err := h.subs.Lookup(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			h.respondError(w, http.StatusNotFound, "Not Found", r.Method, endpoint)
			return
		}
		h.respondError(w, http.StatusInternalServerError, err.Error(), r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, models.SubscriptionView{Subscription: sub, Entitled: entitled}, r.Method, endpoint)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/transactions/{id}"

	txn, err := h.reader.GetTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			h.respondError(w, http.StatusNotFound, "Not Found", r.Method, endpoint)
			return
		}
		h.respondError(w, http.StatusInternalServerError, err.Error(), r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, txn, r.Method, endpoint)
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/wallets/{id}"

	wallet, err := h.reader.GetWallet(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			h.respondError(w, http.StatusNotFound, "Not Found", r.Method, endpoint)
			return
		}
		h.respondError(w, http.StatusInternalServerError, err.Error(), r.Method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, wallet, r.Method, endpoint)
}
