package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/punchamoorthee/creditgate/internal/models"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{email}"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("GET", endpoint))
	defer timer.ObserveDuration()

	email, err := models.NormalizeEmail(mux.Vars(r)["email"])
	if err != nil {
		h.respondServiceError(w, r, err, "GET", endpoint)
		return
	}

	acc, err := h.accounts.GetOrCreateAccount(r.Context(), email)
	if err != nil {
		h.respondServiceError(w, r, err, "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, models.NewAccountResponse(acc), "GET", endpoint)
}

func (h *Handler) GetAccountEntries(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{email}/entries"
	email, err := models.NormalizeEmail(mux.Vars(r)["email"])
	if err != nil {
		h.respondServiceError(w, r, err, "GET", endpoint)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.accounts.Entries(r.Context(), email, limit)
	if err != nil {
		h.respondServiceError(w, r, err, "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", endpoint)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/orders"
	ref, err := h.accounts.CreateOrder(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusCreated, models.CreateOrderResponse{OrderRef: ref}, "POST", endpoint)
}

func (h *Handler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/capture"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req models.CaptureRequest
	if !h.decode(w, r, &req, endpoint) {
		return
	}
	if err := req.Validate(); err != nil {
		h.respondServiceError(w, r, err, "POST", endpoint)
		return
	}

	acc, err := h.accounts.CapturePayment(r.Context(), req.OrderRef, req.Email)
	if err != nil {
		h.respondServiceError(w, r, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, models.CaptureResponse{Success: true, Credits: acc.Credits, IsPro: acc.IsPro}, "POST", endpoint)
}
