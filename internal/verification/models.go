package verification

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus tracks a submission through review.
type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusApproved  SubmissionStatus = "approved"
	StatusRejected  SubmissionStatus = "rejected"
	StatusNeedsInfo SubmissionStatus = "needs_info"
)

// DocumentType enumerates accepted verification documents.
type DocumentType string

const (
	DocTypeIdentity    DocumentType = "identity"
	DocTypeCertificate DocumentType = "certificate"
	DocTypePhoto       DocumentType = "photo"
	DocTypeLicense     DocumentType = "license"
	DocTypeOther       DocumentType = "other"
)

// RequiredDocument describes one entry of the submission form.
type RequiredDocument struct {
	Type           DocumentType `json:"type"`
	Required       bool         `json:"required"`
	ExpiryRequired bool         `json:"expiry_required"`
}

// RequiredDocuments is the form the provider must satisfy.
var RequiredDocuments = []RequiredDocument{
	{Type: DocTypeIdentity, Required: true, ExpiryRequired: true},
	{Type: DocTypeCertificate, Required: true, ExpiryRequired: false},
	{Type: DocTypePhoto, Required: true, ExpiryRequired: false},
}

// Document is an opaque URL plus metadata; contents are never inspected.
type Document struct {
	ID         uuid.UUID    `json:"id"`
	Type       DocumentType `json:"type"`
	URL        string       `json:"url"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

// Review is the reviewer decision record on a submission. Notes are
// reviewer-private and never serialized to providers.
type Review struct {
	ReviewerID uuid.UUID        `json:"reviewer_id"`
	ReviewedAt time.Time        `json:"reviewed_at"`
	Decision   SubmissionStatus `json:"decision"`
	Feedback   string           `json:"feedback,omitempty"`
	Notes      string           `json:"-"`
}

// Submission is a batch of documents submitted at one instant. Immutable
// once created except for status and review fields.
type Submission struct {
	ID          uuid.UUID        `json:"id"`
	ProviderID  uuid.UUID        `json:"provider_id"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Status      SubmissionStatus `json:"status"`
	Documents   []Document       `json:"documents"`
	Review      *Review          `json:"review,omitempty"`
}

// Form is what a provider sees before submitting.
type Form struct {
	RequiredDocuments []RequiredDocument `json:"required_documents"`
	Submissions       []Submission       `json:"previous_submissions"`
	CanResubmitAt     *time.Time         `json:"can_resubmit_at,omitempty"`
}

// Decision is returned to admin callers after a review action.
type Decision struct {
	SubmissionID  uuid.UUID        `json:"submission_id"`
	ProviderID    uuid.UUID        `json:"provider_id"`
	Status        SubmissionStatus `json:"status"`
	ResubmitAt    *time.Time       `json:"resubmit_at,omitempty"`
	Deadline      *time.Time       `json:"deadline,omitempty"`
	EligibleUntil *time.Time       `json:"eligible_until,omitempty"`
}

// DocumentInput is the submit payload.
type DocumentInput struct {
	Type      DocumentType `json:"type" binding:"required"`
	URL       string       `json:"url" binding:"required"`
	ExpiresAt *time.Time   `json:"expires_at"`
}
