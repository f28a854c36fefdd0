package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/creditgate/internal/domain"
	"github.com/punchamoorthee/creditgate/internal/models"
	"github.com/punchamoorthee/creditgate/internal/provider"
	"github.com/punchamoorthee/creditgate/internal/service"
	"github.com/rs/zerolog"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creditgate_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "creditgate_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60},
	}, []string{"method", "endpoint"})
)

const maxBodyBytes = 64 << 10

type Handler struct {
	gateway  *service.Gateway
	accounts *service.Accounts
	logger   zerolog.Logger
}

func NewHandler(gateway *service.Gateway, accounts *service.Accounts, logger zerolog.Logger) *Handler {
	return &Handler{gateway: gateway, accounts: accounts, logger: logger}
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/generations"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req models.GenerateRequest
	if !h.decode(w, r, &req, endpoint) {
		return
	}
	if err := req.Validate(); err != nil {
		h.respondServiceError(w, r, err, "POST", endpoint)
		return
	}

	out, err := h.gateway.GenerateMetered(r.Context(), req.Email, provider.Input{Theme: req.Theme, Prompt: req.Prompt})
	if err != nil {
		h.respondServiceError(w, r, err, "POST", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, models.GenerateResponse{
		Image:    dataURL(out.Payload),
		MIMEType: out.Payload.MIMEType,
		Credits:  out.Credits,
	}, "POST", endpoint)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, endpoint string) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON", nil, r.Method, endpoint)
		return false
	}
	return true
}

// respondServiceError is the single place domain errors become HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, method, endpoint string) {
	var failure *domain.ProviderFailure
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		h.respondError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil, method, endpoint)
	case errors.Is(err, domain.ErrInsufficientCredits):
		h.respondError(w, http.StatusForbidden, "insufficient_credits", "Insufficient credits, purchase more to continue", nil, method, endpoint)
	case errors.Is(err, domain.ErrAccountNotFound):
		h.respondError(w, http.StatusNotFound, "account_not_found", "Account not found", nil, method, endpoint)
	case errors.As(err, &failure):
		h.respondError(w, http.StatusInternalServerError, "provider_failure", "Image generation failed", failure.Balance, method, endpoint)
	case errors.Is(err, domain.ErrPaymentNotConfigured):
		h.respondError(w, http.StatusServiceUnavailable, "payment_not_configured", "Payments are not configured", nil, method, endpoint)
	case errors.Is(err, domain.ErrCaptureNotCompleted):
		h.respondError(w, http.StatusUnprocessableEntity, "capture_not_completed", "Payment was not completed", nil, method, endpoint)
	case errors.Is(err, domain.ErrOrderAlreadyCaptured):
		h.respondError(w, http.StatusConflict, "order_already_captured", "Order already captured", nil, method, endpoint)
	case errors.Is(err, domain.ErrProcessorError):
		h.respondError(w, http.StatusBadGateway, "processor_error", "Payment processor error", nil, method, endpoint)
	case errors.Is(err, domain.ErrConflict):
		h.respondError(w, http.StatusConflict, "conflict", "Request conflicted with a concurrent update, retry", nil, method, endpoint)
	default:
		requestLogger(r, h.logger).Error().Err(err).Str("endpoint", endpoint).Msg("unhandled service error")
		h.respondError(w, http.StatusInternalServerError, "internal", "Internal Server Error", nil, method, endpoint)
	}
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, kind, msg string, credits *int64, method, endpoint string) {
	h.respondJSON(w, code, models.ErrorResponse{Error: msg, Code: kind, Credits: credits}, method, endpoint)
}

func dataURL(p provider.Payload) string {
	return fmt.Sprintf("data:%s;base64,%s", p.MIMEType, base64.StdEncoding.EncodeToString(p.Data))
}
