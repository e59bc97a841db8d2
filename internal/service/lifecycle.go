// Package service implements the request lifecycle controller: which status
// transitions are legal, what must be present before each one, and the
// persistence contract around them.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/retouchlab/retouchops/internal/domain"
	"github.com/retouchlab/retouchops/internal/mailer"
	"github.com/retouchlab/retouchops/internal/objstore"
)

// RequestStore is the persistent record of requests.
type RequestStore interface {
	Insert(ctx context.Context, req *domain.Request) error
	Update(ctx context.Context, id uuid.UUID, upd domain.RequestUpdate) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Request, error)
	List(ctx context.Context) ([]domain.Request, error)
}

// ObjectStore holds the binary image payloads.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (*objstore.Object, error)
	Delete(ctx context.Context, key string) error
}

// Mailer dispatches the one-shot completion notification.
type Mailer interface {
	SendCompletion(ctx context.Context, recipient, requestID string, att mailer.Attachment) error
}

// Upload is one incoming image file.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Lifecycle is the request lifecycle controller.
type Lifecycle struct {
	store   RequestStore
	objects ObjectStore
	mail    Mailer
	log     *slog.Logger
	now     func() time.Time
}

// NewLifecycle creates the controller.
func NewLifecycle(store RequestStore, objects ObjectStore, mail Mailer, log *slog.Logger) *Lifecycle {
	return &Lifecycle{
		store:   store,
		objects: objects,
		mail:    mail,
		log:     log.With("service", "lifecycle"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput carries a new end-user submission.
type CreateInput struct {
	Email       string
	Description string
	Original    Upload
	Proof       Upload
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Email) == "" {
		return domain.NewValidationError("email", "email is required")
	}
	if len(in.Original.Data) == 0 {
		return domain.NewValidationError("image", "original image is required")
	}
	if len(in.Proof.Data) == 0 {
		return domain.NewValidationError("payment_proof", "payment proof image is required")
	}
	if !domain.AllowedImageFile(in.Original.Filename) {
		return domain.NewValidationError("image", "invalid file type, allowed: png, jpg, jpeg, gif, webp")
	}
	if !domain.AllowedImageFile(in.Proof.Filename) {
		return domain.NewValidationError("payment_proof", "invalid file type, allowed: png, jpg, jpeg, gif, webp")
	}
	return nil
}

// Create stores both input images, persists a new request in status pending
// and returns it. If the record insert fails after any object write
// succeeded, the written objects are deleted again; that cleanup is best
// effort and never masks the original error.
func (l *Lifecycle) Create(ctx context.Context, in CreateInput) (*domain.Request, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	origKey := objstore.OriginalKey(id.String(), domain.ImageExt(in.Original.Filename))
	proofKey := objstore.ProofKey(id.String(), domain.ImageExt(in.Proof.Filename))

	if err := l.objects.Put(ctx, origKey, in.Original.Data, in.Original.ContentType); err != nil {
		return nil, fmt.Errorf("store original image: %w", err)
	}
	if err := l.objects.Put(ctx, proofKey, in.Proof.Data, in.Proof.ContentType); err != nil {
		l.compensate(ctx, id, origKey)
		return nil, fmt.Errorf("store payment proof: %w", err)
	}

	req := &domain.Request{
		ID:               id,
		Email:            strings.TrimSpace(in.Email),
		Description:      in.Description,
		OriginalImageKey: origKey,
		PaymentProofKey:  proofKey,
		Status:           domain.StatusPending,
		SubmittedAt:      l.now(),
	}

	if err := l.store.Insert(ctx, req); err != nil {
		l.compensate(ctx, id, origKey, proofKey)
		return nil, fmt.Errorf("persist request: %w", err)
	}

	l.log.InfoContext(ctx, "request created",
		slog.String("request_id", id.String()),
		slog.String("status", req.Status.String()),
	)
	return req, nil
}

// AttachEdited stores an operator-uploaded edited image and points the
// request at it. Allowed while the request is pending or pending_email;
// rejected once completed. Re-uploads simply replace the reference, the
// previous object is left orphaned.
func (l *Lifecycle) AttachEdited(ctx context.Context, id uuid.UUID, upload Upload) (*domain.Request, error) {
	req, err := l.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return nil, domain.NewInvalidStateError(id.String(), req.Status, "attach edited image")
	}
	if len(upload.Data) == 0 {
		return nil, domain.NewValidationError("image", "edited image is required")
	}
	if !domain.AllowedImageFile(upload.Filename) {
		return nil, domain.NewValidationError("image", "invalid file type, allowed: png, jpg, jpeg, gif, webp")
	}

	key := objstore.EditedKey(id.String(), domain.ImageExt(upload.Filename))
	if err := l.objects.Put(ctx, key, upload.Data, upload.ContentType); err != nil {
		return nil, fmt.Errorf("store edited image: %w", err)
	}

	if err := l.store.Update(ctx, id, domain.RequestUpdate{EditedImageKey: &key}); err != nil {
		return nil, fmt.Errorf("record edited image: %w", err)
	}

	l.log.InfoContext(ctx, "edited image attached",
		slog.String("request_id", id.String()),
		slog.String("key", key),
	)

	req.EditedImageKey = &key
	return req, nil
}

// MarkReadyForEmail transitions the request to pending_email. Requires an
// attached edited image and a request still in pending.
func (l *Lifecycle) MarkReadyForEmail(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	req, err := l.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.HasEditedImage() {
		return nil, domain.NewPreconditionError(id.String(), req.Status, "mark ready for email", "edited image not attached")
	}
	if !domain.CanTransition(req.Status, domain.StatusPendingEmail) {
		return nil, domain.NewPreconditionError(id.String(), req.Status, "mark ready for email", "transition to pending_email not allowed")
	}

	status := domain.StatusPendingEmail
	if err := l.store.Update(ctx, id, domain.RequestUpdate{Status: &status}); err != nil {
		return nil, fmt.Errorf("mark ready for email: %w", err)
	}

	l.log.InfoContext(ctx, "request ready for email", slog.String("request_id", id.String()))

	req.Status = status
	return req, nil
}

// SendCompletionNotification fetches the edited image, dispatches the
// completion email and only then transitions the request to completed,
// setting completed_at. When dispatch succeeded but the status write failed
// the email must not be resent; the error wraps domain.ErrInconsistency and
// is logged at error level for manual reconciliation.
func (l *Lifecycle) SendCompletionNotification(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	req, err := l.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusPendingEmail {
		return nil, domain.NewPreconditionError(id.String(), req.Status, "send completion email", "status is not pending_email")
	}
	if req.Email == "" {
		return nil, domain.NewPreconditionError(id.String(), req.Status, "send completion email", "recipient email missing")
	}
	if !req.HasEditedImage() {
		return nil, domain.NewPreconditionError(id.String(), req.Status, "send completion email", "edited image missing")
	}

	obj, err := l.objects.Get(ctx, *req.EditedImageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch edited image: %w", err)
	}

	att := mailer.Attachment{
		Filename:    path.Base(*req.EditedImageKey),
		ContentType: obj.ContentType,
		Data:        obj.Data,
	}
	if err := l.mail.SendCompletion(ctx, req.Email, id.String(), att); err != nil {
		return nil, fmt.Errorf("dispatch completion email: %w", err)
	}

	status := domain.StatusCompleted
	completedAt := l.now()
	if err := l.store.Update(ctx, id, domain.RequestUpdate{Status: &status, CompletedAt: &completedAt}); err != nil {
		// The email is already out. Retrying would send it twice, so this
		// surfaces as an inconsistency for manual reconciliation instead.
		l.log.ErrorContext(ctx, "email sent but status update failed",
			slog.String("request_id", id.String()),
			slog.String("recipient", req.Email),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("email sent but status not recorded for request %s: %w: %w", id, domain.ErrInconsistency, err)
	}

	l.log.InfoContext(ctx, "completion email sent",
		slog.String("request_id", id.String()),
		slog.String("recipient", req.Email),
	)

	req.Status = status
	req.CompletedAt = &completedAt
	return req, nil
}

// Get returns one request by id.
func (l *Lifecycle) Get(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	return l.store.GetByID(ctx, id)
}

// List returns all requests, newest submission first.
func (l *Lifecycle) List(ctx context.Context) ([]domain.Request, error) {
	return l.store.List(ctx)
}

// compensate deletes objects written before a failed create. Failures here
// are logged and swallowed so they never replace the original error.
func (l *Lifecycle) compensate(ctx context.Context, id uuid.UUID, keys ...string) {
	for _, key := range keys {
		if err := l.objects.Delete(ctx, key); err != nil {
			l.log.ErrorContext(ctx, "rollback of stored object failed",
				slog.String("request_id", id.String()),
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}
}
