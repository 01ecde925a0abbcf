package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/callbackops/internal/callback"
	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/punchamoorthee/callbackops/internal/models"
	"github.com/punchamoorthee/callbackops/internal/service"
	"go.uber.org/zap"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbackops_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callbackops_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

const serviceName = "pawapay-webhook"

// CallbackProcessor reconciles a validated callback.
type CallbackProcessor interface {
	Process(ctx context.Context, ev *domain.CallbackEvent) (*service.Result, error)
}

// SubscriptionManager activates, deactivates and inspects subscriptions.
type SubscriptionManager interface {
	Activate(ctx context.Context, in service.ActivationInput) (*domain.Subscription, error)
	Deactivate(ctx context.Context, ownerID string, status domain.SubscriptionStatus, reason string) error
	Lookup(ctx context.Context, ownerID string) (*domain.Subscription, bool, error)
}

// Reader serves the read-only inspection endpoints.
type Reader interface {
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetWallet(ctx context.Context, id string) (*domain.Wallet, error)
}

type Handler struct {
	validator *callback.Validator
	engine    CallbackProcessor
	subs      SubscriptionManager
	reader    Reader
	logger    *zap.Logger
	version   string
	now       func() time.Time
}

func NewHandler(v *callback.Validator, engine CallbackProcessor, subs SubscriptionManager, reader Reader, logger *zap.Logger, version string) *Handler {
	return &Handler{
		validator: v,
		engine:    engine,
		subs:      subs,
		reader:    reader,
		logger:    logger,
		version:   version,
		now:       time.Now,
	}
}

// Health never touches the stores.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Service:   serviceName,
		Timestamp: h.timestamp(),
		Version:   h.version,
	}, r.Method, "/health")
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("Failed to write response", zap.String("endpoint", endpoint), zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
