package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/retouchlab/retouchops/internal/config"
)

// NewRouter assembles all routes. Only the public intake endpoint is rate
// limited; the management surface is operator-facing and unlimited.
func NewRouter(h *Handler, rl config.RateLimitConfig) (*mux.Router, error) {
	intakeLimit, err := intakeLimiter(rl.Intake)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/uploads/{key:.+}", h.ServeUpload).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Handle("/requests", intakeLimit(http.HandlerFunc(h.CreateRequest))).Methods(http.MethodPost)
	apiV1.HandleFunc("/requests", h.ListRequests).Methods(http.MethodGet)
	apiV1.HandleFunc("/requests/{id}", h.GetRequest).Methods(http.MethodGet)
	apiV1.HandleFunc("/requests/{id}/edited", h.UploadEdited).Methods(http.MethodPut)
	apiV1.HandleFunc("/requests/{id}/ready", h.MarkReady).Methods(http.MethodPost)
	apiV1.HandleFunc("/requests/{id}/email", h.SendEmail).Methods(http.MethodPost)
	apiV1.HandleFunc("/requests/{id}/images", h.ImageURLs).Methods(http.MethodGet)

	return r, nil
}

// intakeLimiter builds a per-client-IP middleware from a formatted rate
// such as "3-M" (3 per minute), backed by an in-memory store.
func intakeLimiter(formatted string) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse intake rate limit %q: %w", formatted, err)
	}

	instance := limiter.New(memory.NewStore(), rate)
	middleware := mhttp.NewMiddleware(instance)
	return middleware.Handler, nil
}
