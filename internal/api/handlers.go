package api

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/retouchlab/retouchops/internal/domain"
	"github.com/retouchlab/retouchops/internal/service"
)

// presignTTL bounds the lifetime of management preview links.
const presignTTL = 15 * time.Minute

// allowedMIMEs is the sniffed-content counterpart of the extension check.
var allowedMIMEs = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// CreateRequest handles the public intake form:
// POST /api/v1/requests with multipart fields email, description, image,
// payment_proof.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/api/v1/requests"))
	defer timer.ObserveDuration()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed multipart form", "POST", "/api/v1/requests")
		return
	}

	email := r.FormValue("email")
	if err := h.validate.Var(email, "required,email"); err != nil {
		h.respondError(w, http.StatusBadRequest, "a valid email is required", "POST", "/api/v1/requests")
		return
	}

	original, err := h.readImageUpload(r, "image")
	if err != nil {
		h.respondServiceError(w, r, err, "POST", "/api/v1/requests")
		return
	}
	proof, err := h.readImageUpload(r, "payment_proof")
	if err != nil {
		h.respondServiceError(w, r, err, "POST", "/api/v1/requests")
		return
	}

	req, err := h.svc.Create(r.Context(), service.CreateInput{
		Email:       email,
		Description: r.FormValue("description"),
		Original:    original,
		Proof:       proof,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "POST", "/api/v1/requests")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/requests/%s", req.ID))
	h.respondJSON(w, http.StatusCreated, map[string]string{
		"message":    "Request received successfully",
		"request_id": req.ID.String(),
	}, "POST", "/api/v1/requests")
}

// ListRequests handles GET /api/v1/requests for the management grid.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.svc.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "GET", "/api/v1/requests")
		return
	}
	h.respondJSON(w, http.StatusOK, requests, "GET", "/api/v1/requests")
}

// GetRequest handles GET /api/v1/requests/{id}.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseRequestID(mux.Vars(r))
	if err != nil {
		h.respondServiceError(w, r, err, "GET", "/api/v1/requests/{id}")
		return
	}

	req, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err, "GET", "/api/v1/requests/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, req, "GET", "/api/v1/requests/{id}")
}

// UploadEdited handles PUT /api/v1/requests/{id}/edited: the operator
// attaches (or replaces) the edited result.
func (h *Handler) UploadEdited(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/requests/{id}/edited"

	id, err := parseRequestID(mux.Vars(r))
	if err != nil {
		h.respondServiceError(w, r, err, "PUT", endpoint)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed multipart form", "PUT", endpoint)
		return
	}

	upload, err := h.readImageUpload(r, "image")
	if err != nil {
		h.respondServiceError(w, r, err, "PUT", endpoint)
		return
	}

	req, err := h.svc.AttachEdited(r.Context(), id, upload)
	if err != nil {
		h.respondServiceError(w, r, err, "PUT", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, req, "PUT", endpoint)
}

// MarkReady handles POST /api/v1/requests/{id}/ready.
func (h *Handler) MarkReady(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/requests/{id}/ready"

	id, err := parseRequestID(mux.Vars(r))
	if err != nil {
		h.respondServiceError(w, r, err, "POST", endpoint)
		return
	}

	req, err := h.svc.MarkReadyForEmail(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, req, "POST", endpoint)
}

// SendEmail handles POST /api/v1/requests/{id}/email: the one-shot
// completion dispatch.
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/requests/{id}/email"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	id, err := parseRequestID(mux.Vars(r))
	if err != nil {
		h.respondServiceError(w, r, err, "POST", endpoint)
		return
	}

	req, err := h.svc.SendCompletionNotification(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Email sent successfully to %s", req.Email),
	}, "POST", endpoint)
}

// ImageURLs handles GET /api/v1/requests/{id}/images and returns
// time-limited presigned links for the desktop previews.
func (h *Handler) ImageURLs(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/v1/requests/{id}/images"

	id, err := parseRequestID(mux.Vars(r))
	if err != nil {
		h.respondServiceError(w, r, err, "GET", endpoint)
		return
	}

	req, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err, "GET", endpoint)
		return
	}

	urls := map[string]string{}
	keys := map[string]string{
		"original": req.OriginalImageKey,
		"proof":    req.PaymentProofKey,
	}
	if req.HasEditedImage() {
		keys["edited"] = *req.EditedImageKey
	}
	for name, key := range keys {
		u, err := h.objects.PresignedGetURL(r.Context(), key, presignTTL)
		if err != nil {
			h.respondServiceError(w, r, err, "GET", endpoint)
			return
		}
		urls[name] = u
	}
	h.respondJSON(w, http.StatusOK, urls, "GET", endpoint)
}

// ServeUpload handles GET /uploads/{key}: streams a stored image inline so
// the management previews work without direct object-store access.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/uploads/{key}"

	key := mux.Vars(r)["key"]
	obj, err := h.objects.Get(r.Context(), key)
	if err != nil {
		h.respondServiceError(w, r, err, "GET", endpoint)
		return
	}

	httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s", path.Base(key)))
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}

// Health handles GET /health with a live database ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.log.ErrorContext(r.Context(), "health check failed", "error", err)
		h.respondJSON(w, http.StatusInternalServerError,
			map[string]string{"status": "error", "database": "error"}, "GET", "/health")
		return
	}
	h.respondJSON(w, http.StatusOK,
		map[string]string{"status": "ok", "database": "ok"}, "GET", "/health")
}

// readImageUpload pulls one multipart file field and verifies both its
// extension and its sniffed content type.
func (h *Handler) readImageUpload(r *http.Request, field string) (service.Upload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return service.Upload{}, domain.NewValidationError(field, "image file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.Upload{}, fmt.Errorf("read upload %s: %w", field, err)
	}
	if len(data) == 0 {
		return service.Upload{}, domain.NewValidationError(field, "image file is empty")
	}

	mtype := mimetype.Detect(data)
	if _, ok := allowedMIMEs[mtype.String()]; !ok {
		return service.Upload{}, domain.NewValidationError(field, "file content is not an accepted image type")
	}

	return service.Upload{
		Filename:    header.Filename,
		ContentType: mtype.String(),
		Data:        data,
	}, nil
}
