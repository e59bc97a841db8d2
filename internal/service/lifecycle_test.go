package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retouchlab/retouchops/internal/domain"
	"github.com/retouchlab/retouchops/internal/mailer"
	"github.com/retouchlab/retouchops/internal/objstore"
)

// ---------------------------------------------------------------------------
// Collaborator fakes
// ---------------------------------------------------------------------------

type fakeStore struct {
	requests  map[uuid.UUID]domain.Request
	insertErr error
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{requests: map[uuid.UUID]domain.Request{}}
}

func (f *fakeStore) Insert(_ context.Context, req *domain.Request) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.requests[req.ID] = *req
	return nil
}

func (f *fakeStore) Update(_ context.Context, id uuid.UUID, upd domain.RequestUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	req, ok := f.requests[id]
	if !ok {
		return fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	if upd.EditedImageKey != nil {
		req.EditedImageKey = upd.EditedImageKey
	}
	if upd.Status != nil {
		req.Status = *upd.Status
	}
	if upd.CompletedAt != nil {
		req.CompletedAt = upd.CompletedAt
	}
	f.requests[id] = req
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Request, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	out := req
	return &out, nil
}

func (f *fakeStore) List(_ context.Context) ([]domain.Request, error) {
	out := []domain.Request{}
	for _, req := range f.requests {
		out = append(out, req)
	}
	return out, nil
}

type fakeObjects struct {
	objects   map[string]objstore.Object
	putErrFor string // key prefix that fails Put
	getErr    error
	deleted   []string
	deleteErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string]objstore.Object{}}
}

func (f *fakeObjects) Put(_ context.Context, key string, data []byte, contentType string) error {
	if f.putErrFor != "" && strings.HasPrefix(key, f.putErrFor) {
		return fmt.Errorf("put %s: %w", key, domain.ErrTransport)
	}
	f.objects[key] = objstore.Object{Data: data, ContentType: contentType}
	return nil
}

func (f *fakeObjects) Get(_ context.Context, key string) (*objstore.Object, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	obj, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	return &obj, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

type sentEmail struct {
	recipient string
	requestID string
	att       mailer.Attachment
}

type fakeMailer struct {
	sent    []sentEmail
	sendErr error
}

func (f *fakeMailer) SendCompletion(_ context.Context, recipient, requestID string, att mailer.Attachment) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentEmail{recipient: recipient, requestID: requestID, att: att})
	return nil
}

type env struct {
	svc     *Lifecycle
	store   *fakeStore
	objects *fakeObjects
	mail    *fakeMailer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := newFakeStore()
	objs := newFakeObjects()
	ml := &fakeMailer{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &env{
		svc:     NewLifecycle(st, objs, ml, log),
		store:   st,
		objects: objs,
		mail:    ml,
	}
}

func validInput() CreateInput {
	return CreateInput{
		Email:       "a@b.com",
		Description: "",
		Original:    Upload{Filename: "orig.png", ContentType: "image/png", Data: []byte("orig-bytes")},
		Proof:       Upload{Filename: "proof.jpg", ContentType: "image/jpeg", Data: []byte("proof-bytes")},
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_Success(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	req, err := e.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Nil(t, req.EditedImageKey)
	assert.Nil(t, req.CompletedAt)
	assert.False(t, req.SubmittedAt.IsZero())
	assert.True(t, strings.HasPrefix(req.OriginalImageKey, "original/"))
	assert.True(t, strings.HasPrefix(req.PaymentProofKey, "proof/"))

	// Both payloads are in the object store under the recorded keys.
	assert.Equal(t, []byte("orig-bytes"), e.objects.objects[req.OriginalImageKey].Data)
	assert.Equal(t, []byte("proof-bytes"), e.objects.objects[req.PaymentProofKey].Data)
}

func TestCreate_UniqueIDs(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	seen := map[uuid.UUID]bool{}
	for range 10 {
		req, err := e.svc.Create(context.Background(), validInput())
		require.NoError(t, err)
		assert.False(t, seen[req.ID], "duplicate id %s", req.ID)
		seen[req.ID] = true
	}
}

func TestCreate_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"empty email", func(in *CreateInput) { in.Email = "" }},
		{"blank email", func(in *CreateInput) { in.Email = "   " }},
		{"missing original", func(in *CreateInput) { in.Original.Data = nil }},
		{"missing proof", func(in *CreateInput) { in.Proof.Data = nil }},
		{"original bad extension", func(in *CreateInput) { in.Original.Filename = "orig.pdf" }},
		{"proof bad extension", func(in *CreateInput) { in.Proof.Filename = "proof.exe" }},
		{"no extension", func(in *CreateInput) { in.Original.Filename = "orig" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			in := validInput()
			tt.mutate(&in)

			_, err := e.svc.Create(context.Background(), in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), "want validation error, got %v", err)
			assert.Empty(t, e.objects.objects, "no object may be written on validation failure")
			assert.Empty(t, e.store.requests)
		})
	}
}

func TestCreate_AcceptsUppercaseExtension(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	in := validInput()
	in.Original.Filename = "ORIG.PNG"
	in.Proof.Filename = "Proof.JPeG"

	_, err := e.svc.Create(context.Background(), in)
	require.NoError(t, err)
}

func TestCreate_InsertFailureRollsBackObjects(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.store.insertErr = errors.New("connection reset")

	_, err := e.svc.Create(context.Background(), validInput())
	require.Error(t, err)

	assert.Len(t, e.objects.deleted, 2, "both written objects must be deleted")
	assert.Empty(t, e.objects.objects)
	assert.Empty(t, e.store.requests)
}

func TestCreate_SecondPutFailureRollsBackFirst(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.objects.putErrFor = "proof/"

	_, err := e.svc.Create(context.Background(), validInput())
	require.Error(t, err)

	require.Len(t, e.objects.deleted, 1)
	assert.True(t, strings.HasPrefix(e.objects.deleted[0], "original/"))
	assert.Empty(t, e.store.requests)
}

func TestCreate_RollbackFailureDoesNotMaskOriginalError(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.store.insertErr = errors.New("insert boom")
	e.objects.deleteErr = errors.New("delete boom")

	_, err := e.svc.Create(context.Background(), validInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert boom")
}

// ---------------------------------------------------------------------------
// AttachEdited
// ---------------------------------------------------------------------------

func mustCreate(t *testing.T, e *env) *domain.Request {
	t.Helper()
	req, err := e.svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	return req
}

func editedUpload() Upload {
	return Upload{Filename: "edited.png", ContentType: "image/png", Data: []byte("edited-bytes")}
}

func TestAttachEdited_UnknownID(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	_, err := e.svc.AttachEdited(context.Background(), uuid.New(), editedUpload())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.False(t, errors.Is(err, domain.ErrInvalidState))
}

func TestAttachEdited_SetsKeyWithoutStatusChange(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := mustCreate(t, e)

	got, err := e.svc.AttachEdited(context.Background(), req.ID, editedUpload())
	require.NoError(t, err)

	require.NotNil(t, got.EditedImageKey)
	assert.True(t, strings.HasPrefix(*got.EditedImageKey, "edited/"))
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, []byte("edited-bytes"), e.objects.objects[*got.EditedImageKey].Data)
}

func TestAttachEdited_AllowedInPendingEmail(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := mustCreate(t, e)

	_, err := e.svc.AttachEdited(context.Background(), req.ID, editedUpload())
	require.NoError(t, err)
	_, err = e.svc.MarkReadyForEmail(context.Background(), req.ID)
	require.NoError(t, err)

	// Operator corrections remain possible until completion.
	upload := editedUpload()
	upload.Data = []byte("corrected-bytes")
	got, err := e.svc.AttachEdited(context.Background(), req.ID, upload)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingEmail, got.Status)
	assert.Equal(t, []byte("corrected-bytes"), e.objects.objects[*got.EditedImageKey].Data)
}

func TestAttachEdited_RejectedWhenCompleted(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := completedRequest(t, e)

	_, err := e.svc.AttachEdited(context.Background(), req.ID, editedUpload())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestAttachEdited_BadExtension(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := mustCreate(t, e)

	upload := editedUpload()
	upload.Filename = "edited.bmp"
	_, err := e.svc.AttachEdited(context.Background(), req.ID, upload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

// ---------------------------------------------------------------------------
// MarkReadyForEmail
// ---------------------------------------------------------------------------

func TestMarkReadyForEmail_UnknownID(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	_, err := e.svc.MarkReadyForEmail(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMarkReadyForEmail_WithoutEditedImage(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := mustCreate(t, e)

	_, err := e.svc.MarkReadyForEmail(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPrecondition))
}

func TestMarkReadyForEmail_Success(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := mustCreate(t, e)
	_, err := e.svc.AttachEdited(context.Background(), req.ID, editedUpload())
	require.NoError(t, err)

	got, err := e.svc.MarkReadyForEmail(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingEmail, got.Status)
}

func TestMarkReadyForEmail_AlreadyPendingEmail(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := mustCreate(t, e)
	_, err := e.svc.AttachEdited(context.Background(), req.ID, editedUpload())
	require.NoError(t, err)
	_, err = e.svc.MarkReadyForEmail(context.Background(), req.ID)
	require.NoError(t, err)

	_, err = e.svc.MarkReadyForEmail(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPrecondition))
}

// ---------------------------------------------------------------------------
// SendCompletionNotification
// ---------------------------------------------------------------------------

func readyRequest(t *testing.T, e *env) *domain.Request {
	t.Helper()
	req := mustCreate(t, e)
	_, err := e.svc.AttachEdited(context.Background(), req.ID, editedUpload())
	require.NoError(t, err)
	got, err := e.svc.MarkReadyForEmail(context.Background(), req.ID)
	require.NoError(t, err)
	return got
}

func completedRequest(t *testing.T, e *env) *domain.Request {
	t.Helper()
	req := readyRequest(t, e)
	got, err := e.svc.SendCompletionNotification(context.Background(), req.ID)
	require.NoError(t, err)
	return got
}

func TestSendCompletion_UnknownID(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	_, err := e.svc.SendCompletionNotification(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSendCompletion_NotReady(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := mustCreate(t, e)

	_, err := e.svc.SendCompletionNotification(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPrecondition))
	assert.Empty(t, e.mail.sent)
}

func TestSendCompletion_MissingEmailGuard(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := readyRequest(t, e)

	// Should be impossible given creation invariants, guarded regardless.
	stored := e.store.requests[req.ID]
	stored.Email = ""
	e.store.requests[req.ID] = stored

	_, err := e.svc.SendCompletionNotification(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPrecondition))
	assert.Empty(t, e.mail.sent)
}

func TestSendCompletion_Success(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := readyRequest(t, e)

	got, err := e.svc.SendCompletionNotification(context.Background(), req.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	require.Len(t, e.mail.sent, 1)
	sent := e.mail.sent[0]
	assert.Equal(t, "a@b.com", sent.recipient)
	assert.Equal(t, req.ID.String(), sent.requestID)
	assert.Equal(t, []byte("edited-bytes"), sent.att.Data)
	assert.Equal(t, "image/png", sent.att.ContentType)

	stored := e.store.requests[req.ID]
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
}

func TestSendCompletion_SecondCallSendsNothing(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := completedRequest(t, e)

	_, err := e.svc.SendCompletionNotification(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPrecondition))
	assert.Len(t, e.mail.sent, 1, "no additional dispatch may happen")
}

func TestSendCompletion_EditedObjectMissing(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := readyRequest(t, e)
	delete(e.objects.objects, *req.EditedImageKey)

	_, err := e.svc.SendCompletionNotification(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Empty(t, e.mail.sent)
}

func TestSendCompletion_DispatchFailureKeepsStatus(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := readyRequest(t, e)
	e.mail.sendErr = fmt.Errorf("smtp down: %w", domain.ErrTransport)

	_, err := e.svc.SendCompletionNotification(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))

	stored := e.store.requests[req.ID]
	assert.Equal(t, domain.StatusPendingEmail, stored.Status)
	assert.Nil(t, stored.CompletedAt)
}

func TestSendCompletion_StatusWriteFailureIsInconsistency(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	req := readyRequest(t, e)
	e.store.updateErr = errors.New("write failed")

	_, err := e.svc.SendCompletionNotification(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInconsistency))
	assert.Len(t, e.mail.sent, 1, "the email did go out exactly once")
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

func TestLifecycle_EndToEnd(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	req, err := e.svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, req.Status)

	attached, err := e.svc.AttachEdited(context.Background(), req.ID, editedUpload())
	require.NoError(t, err)
	require.NotNil(t, attached.EditedImageKey)
	assert.Equal(t, domain.StatusPending, attached.Status)

	ready, err := e.svc.MarkReadyForEmail(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingEmail, ready.Status)

	done, err := e.svc.SendCompletionNotification(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	require.Len(t, e.mail.sent, 1)
	assert.Equal(t, "a@b.com", e.mail.sent[0].recipient)
	assert.Equal(t, e.objects.objects[*attached.EditedImageKey].Data, e.mail.sent[0].att.Data)

	fetched, err := e.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, fetched.Status)

	all, err := e.svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
