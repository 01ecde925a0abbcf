package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every endpoint. Inspection endpoints sit behind the same
// admin role as the activation endpoints.
func NewRouter(h *Handler, auth *Authenticator) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestID(h.logger))
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(h.notFound)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	for _, path := range []string{webhookEndpoint, "/api/v1/callbacks"} {
		r.Handle(path, CORS(http.HandlerFunc(h.Webhook))).Methods(http.MethodPost)
		r.Handle(path, CORS(http.HandlerFunc(h.Preflight))).Methods(http.MethodOptions)
	}

	admin := r.PathPrefix("/api/v1").Subrouter()
	admin.Use(auth.RequireRole(RoleAdmin, h))
	admin.HandleFunc("/admin/subscriptions/activate", h.ActivateSubscription).Methods(http.MethodPost)
	admin.HandleFunc("/admin/subscriptions/deactivate", h.DeactivateSubscription).Methods(http.MethodPost)
	admin.HandleFunc("/subscriptions/{userId}", h.GetSubscription).Methods(http.MethodGet)
	admin.HandleFunc("/transactions/{id}", h.GetTransaction).Methods(http.MethodGet)
	admin.HandleFunc("/wallets/{id}", h.GetWallet).Methods(http.MethodGet)

	return r
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method, "unmatched")
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, http.StatusNotFound, "Not Found", r.Method, "unmatched")
}
