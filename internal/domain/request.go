package domain

import (
	"time"

	"github.com/google/uuid"
)

// Request is one end-user submission: two input images, a contact email,
// an optional description, and a lifecycle status.
type Request struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Description      string     `json:"description"`
	OriginalImageKey string     `json:"original_image_key"`
	PaymentProofKey  string     `json:"payment_proof_key"`
	EditedImageKey   *string    `json:"edited_image_key"`
	Status           Status     `json:"status"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	CompletedAt      *time.Time `json:"completed_at"`
}

// HasEditedImage reports whether the operator has attached an edited result.
func (r *Request) HasEditedImage() bool {
	return r.EditedImageKey != nil && *r.EditedImageKey != ""
}

// RequestUpdate carries the mutable fields of a partial record update.
// Nil fields are left untouched by the store.
type RequestUpdate struct {
	EditedImageKey *string
	Status         *Status
	CompletedAt    *time.Time
}
