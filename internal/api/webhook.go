package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/punchamoorthee/callbackops/internal/callback"
	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/punchamoorthee/callbackops/internal/models"
	"github.com/punchamoorthee/callbackops/internal/service"
	"go.uber.org/zap"
)

const (
	webhookEndpoint = "/api/pawapay/webhook"
	maxCallbackBody = 1 << 20
)

// Webhook authenticates, parses and reconciles one gateway callback. Any
// 5xx makes the gateway retry, so it is only returned when no business
// effect was committed.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(r.Method, webhookEndpoint))
	defer timer.ObserveDuration()

	log := requestLogger(r.Context(), h.logger)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody+1))
	if err != nil {
		log.Warn("Failed to read callback body", zap.Error(err))
		h.respondWebhook(w, r, http.StatusBadRequest, models.WebhookResponse{Error: "Unable to read request body"})
		return
	}
	if len(body) > maxCallbackBody {
		h.respondWebhook(w, r, http.StatusRequestEntityTooLarge, models.WebhookResponse{Error: "Request body too large"})
		return
	}

	if err := h.validator.Validate(r.Header, body); err != nil {
		log.Warn("Callback authentication failed", zap.Error(err))
		h.respondWebhook(w, r, http.StatusUnauthorized, models.WebhookResponse{Error: "Invalid signature"})
		return
	}

	ev, err := callback.Parse(body, h.now())
	if err != nil {
		resp := models.WebhookResponse{Error: "Invalid callback payload"}
		if ev != nil {
			resp.DepositID = ev.ExternalID
			resp.Status = string(ev.Status)
		}
		if errors.Is(err, domain.ErrUnknownStatus) {
			log.Error("Callback with unknown status rejected", zap.String("external_id", resp.DepositID), zap.Error(err))
			resp.Error = "Unknown payment status"
		} else {
			log.Warn("Malformed callback", zap.Error(err))
		}
		h.respondWebhook(w, r, http.StatusBadRequest, resp)
		return
	}

	log = log.With(zap.String("external_id", ev.ExternalID), zap.String("status", string(ev.Status)))
	log.Info("Callback received", zap.String("kind", string(ev.Kind)), zap.String("correspondent", ev.Correspondent))

	res, err := h.engine.Process(r.Context(), ev)
	if err != nil {
		log.Error("Callback processing failed", zap.Error(err))
		h.respondWebhook(w, r, http.StatusInternalServerError, models.WebhookResponse{
			Error:     "Internal server error",
			DepositID: ev.ExternalID,
			Status:    string(ev.Status),
		})
		return
	}

	resp := models.WebhookResponse{
		Success:   true,
		DepositID: ev.ExternalID,
		Status:    string(ev.Status),
	}
	code := http.StatusOK
	switch res.Outcome {
	case service.OutcomeReplayed:
		resp.Message = "Already processed"
	case service.OutcomeNotFound:
		code = http.StatusNotFound
		resp.Success = false
		resp.Error = "Transaction not found"
	case service.OutcomeIntermediate:
		resp.Message = "Status update recorded"
	default:
		resp.Message = "Webhook processed successfully"
	}
	h.respondWebhook(w, r, code, resp)
}

// Preflight answers CORS preflight requests for the webhook.
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	httpReqTotal.WithLabelValues(r.Method, webhookEndpoint, "204").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondWebhook(w http.ResponseWriter, r *http.Request, code int, resp models.WebhookResponse) {
	resp.Timestamp = h.timestamp()
	h.respondJSON(w, code, resp, r.Method, webhookEndpoint)
}
