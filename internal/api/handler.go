// Package api exposes the intake and management HTTP surfaces over the
// lifecycle controller.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/retouchlab/retouchops/internal/domain"
	"github.com/retouchlab/retouchops/internal/objstore"
	"github.com/retouchlab/retouchops/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retouch_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retouch_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "endpoint"})
)

// Lifecycle is the controller surface the handlers call into.
type Lifecycle interface {
	Create(ctx context.Context, in service.CreateInput) (*domain.Request, error)
	AttachEdited(ctx context.Context, id uuid.UUID, upload service.Upload) (*domain.Request, error)
	MarkReadyForEmail(ctx context.Context, id uuid.UUID) (*domain.Request, error)
	SendCompletionNotification(ctx context.Context, id uuid.UUID) (*domain.Request, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Request, error)
	List(ctx context.Context) ([]domain.Request, error)
}

// ObjectReader serves stored images to the management previews.
type ObjectReader interface {
	Get(ctx context.Context, key string) (*objstore.Object, error)
	PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler carries the HTTP endpoint implementations.
type Handler struct {
	svc       Lifecycle
	objects   ObjectReader
	db        Pinger
	validate  *validator.Validate
	log       *slog.Logger
	maxUpload int64
}

// NewHandler creates the endpoint set.
func NewHandler(svc Lifecycle, objects ObjectReader, db Pinger, log *slog.Logger, maxUpload int64) *Handler {
	return &Handler{
		svc:       svc,
		objects:   objects,
		db:        db,
		validate:  validator.New(),
		log:       log.With("component", "api"),
		maxUpload: maxUpload,
	}
}

// Helpers

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}

// respondServiceError maps the domain error taxonomy onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, method, endpoint string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrPrecondition):
		h.respondError(w, http.StatusConflict, err.Error(), method, endpoint)
	case errors.Is(err, domain.ErrTransport):
		h.log.ErrorContext(r.Context(), "upstream failure", slog.Any("error", err))
		h.respondError(w, http.StatusBadGateway, "upstream service unavailable", method, endpoint)
	default:
		h.log.ErrorContext(r.Context(), "internal error", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "internal server error", method, endpoint)
	}
}

func parseRequestID(vars map[string]string) (uuid.UUID, error) {
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		return uuid.Nil, domain.NewValidationError("id", "malformed request id")
	}
	return id, nil
}
