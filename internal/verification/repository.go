package verification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// Repository defines the interface for submission data access
type Repository interface {
	CreateSubmission(ctx context.Context, s *Submission) error
	GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Submission, error)
	// LatestRejected returns the most recent rejected submission for a
	// provider, or nil if none exists.
	LatestRejected(ctx context.Context, providerID uuid.UUID) (*Submission, error)
	// SetReview records a decision on a submission and moves its status.
	SetReview(ctx context.Context, id uuid.UUID, status SubmissionStatus, review *Review) error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type submissionRow struct {
	ID          uuid.UUID        `db:"id"`
	ProviderID  uuid.UUID        `db:"provider_id"`
	SubmittedAt time.Time        `db:"submitted_at"`
	Status      SubmissionStatus `db:"status"`
	Documents   []byte           `db:"documents"`
	Review      []byte           `db:"review"`
}

func (row *submissionRow) toModel() (*Submission, error) {
	s := &Submission{
		ID:          row.ID,
		ProviderID:  row.ProviderID,
		SubmittedAt: row.SubmittedAt,
		Status:      row.Status,
	}
	if err := json.Unmarshal(row.Documents, &s.Documents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal documents: %w", err)
	}
	if len(row.Review) > 0 && string(row.Review) != "null" {
		// Unmarshal through the storage shape: the API-facing Review
		// type hides the private notes from JSON, so decoding into it
		// directly would drop them.
		var stored reviewJSON
		if err := json.Unmarshal(row.Review, &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal review: %w", err)
		}
		s.Review = &Review{
			ReviewerID: stored.ReviewerID,
			ReviewedAt: stored.ReviewedAt,
			Decision:   stored.Decision,
			Feedback:   stored.Feedback,
			Notes:      stored.Notes,
		}
	}
	return s, nil
}

// reviewJSON keeps the private notes in storage even though the API-facing
// Review type hides them from JSON.
type reviewJSON struct {
	ReviewerID uuid.UUID        `json:"reviewer_id"`
	ReviewedAt time.Time        `json:"reviewed_at"`
	Decision   SubmissionStatus `json:"decision"`
	Feedback   string           `json:"feedback,omitempty"`
	Notes      string           `json:"notes,omitempty"`
}

func (r *PostgresRepository) CreateSubmission(ctx context.Context, s *Submission) error {
	docsJSON, err := json.Marshal(s.Documents)
	if err != nil {
		return fmt.Errorf("failed to marshal documents: %w", err)
	}

	query := `
		INSERT INTO verification_submissions (id, provider_id, submitted_at, status, documents)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query, s.ID, s.ProviderID, s.SubmittedAt, s.Status, docsJSON)
	if err != nil {
		return faults.Dependency("STORAGE", err)
	}
	return nil
}

func (r *PostgresRepository) GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error) {
	query := `
		SELECT id, provider_id, submitted_at, status, documents, review
		FROM verification_submissions
		WHERE id = $1
	`

	var row submissionRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, faults.NotFound("SUBMISSION_NOT_FOUND", "submission %s not found", id)
		}
		return nil, faults.Dependency("STORAGE", err)
	}
	return row.toModel()
}

func (r *PostgresRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Submission, error) {
	query := `
		SELECT id, provider_id, submitted_at, status, documents, review
		FROM verification_submissions
		WHERE provider_id = $1
		ORDER BY submitted_at DESC
	`

	var rows []submissionRow
	if err := r.db.SelectContext(ctx, &rows, query, providerID); err != nil {
		return nil, faults.Dependency("STORAGE", err)
	}

	out := make([]Submission, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *PostgresRepository) LatestRejected(ctx context.Context, providerID uuid.UUID) (*Submission, error) {
	query := `
		SELECT id, provider_id, submitted_at, status, documents, review
		FROM verification_submissions
		WHERE provider_id = $1 AND status = 'rejected'
		ORDER BY submitted_at DESC
		LIMIT 1
	`

	var row submissionRow
	if err := r.db.GetContext(ctx, &row, query, providerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, faults.Dependency("STORAGE", err)
	}
	return row.toModel()
}

func (r *PostgresRepository) SetReview(ctx context.Context, id uuid.UUID, status SubmissionStatus, review *Review) error {
	reviewBytes, err := json.Marshal(reviewJSON{
		ReviewerID: review.ReviewerID,
		ReviewedAt: review.ReviewedAt,
		Decision:   review.Decision,
		Feedback:   review.Feedback,
		Notes:      review.Notes,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal review: %w", err)
	}

	query := `
		UPDATE verification_submissions
		SET status = $2, review = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status, reviewBytes)
	if err != nil {
		return faults.Dependency("STORAGE", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return faults.NotFound("SUBMISSION_NOT_FOUND", "submission %s not found", id)
	}
	return nil
}
