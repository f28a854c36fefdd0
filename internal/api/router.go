package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter mounts every route the service exposes.
func NewRouter(h *Handler, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(RequestID, AccessLog(logger))

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts/{email}", h.GetAccount).Methods("GET")
	apiV1.HandleFunc("/accounts/{email}/entries", h.GetAccountEntries).Methods("GET")
	apiV1.HandleFunc("/generations", h.Generate).Methods("POST")
	apiV1.HandleFunc("/payments/orders", h.CreateOrder).Methods("POST")
	apiV1.HandleFunc("/payments/capture", h.CapturePayment).Methods("POST")

	return r
}
