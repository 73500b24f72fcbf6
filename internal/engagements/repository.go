package engagements

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// Repository defines the interface for engagement data access
type Repository interface {
	Create(ctx context.Context, e *Engagement) error
	Get(ctx context.Context, id uuid.UUID) (*Engagement, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]Engagement, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Engagement, error)
	// FindActiveByProvider returns the provider's engagement in
	// accepted/in_progress, or nil.
	FindActiveByProvider(ctx context.Context, providerID uuid.UUID) (*Engagement, error)

	// TransitionStatus is a compare-and-set on the status column. It
	// returns false when the record was not in `from`, which is how
	// concurrent duplicate transitions lose.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	// CompleteWithFees applies the completed transition together with the
	// fee split in one statement.
	CompleteWithFees(ctx context.Context, id uuid.UUID, from Status, platformFee, providerEarning float64) (bool, error)
	// SetPaymentOrder records the gateway order reference.
	SetPaymentOrder(ctx context.Context, id uuid.UUID, orderID string) error
	// ClosePaid marks the engagement paid and closed after a verified
	// gateway callback.
	ClosePaid(ctx context.Context, id uuid.UUID, paymentRef string) (bool, error)
	// FindByPaymentOrder resolves a gateway order reference.
	FindByPaymentOrder(ctx context.Context, orderID string) (*Engagement, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const engagementColumns = `
	id, requester_id, provider_id, schedule_date, schedule_time, description,
	lat, lng, amount, status, payment_status, start_code, complete_code,
	platform_fee, provider_earning, payment_order_id, payment_ref,
	created_at, updated_at
`

func (r *PostgresRepository) Create(ctx context.Context, e *Engagement) error {
	query := `
		INSERT INTO engagements (
			id, requester_id, provider_id, schedule_date, schedule_time, description,
			lat, lng, amount, status, payment_status, start_code, complete_code,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.RequesterID, e.ProviderID, e.ScheduleDate, e.ScheduleTime, e.Description,
		e.Lat, e.Lng, e.Amount, e.Status, e.PaymentStatus, e.StartCode, e.CompleteCode,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return faults.Dependency("STORAGE", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Engagement, error) {
	var e Engagement
	err := r.db.GetContext(ctx, &e, `SELECT `+engagementColumns+` FROM engagements WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, faults.NotFound("ENGAGEMENT_NOT_FOUND", "engagement %s not found", id)
		}
		return nil, faults.Dependency("STORAGE", err)
	}
	return &e, nil
}

func (r *PostgresRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]Engagement, error) {
	query := `SELECT ` + engagementColumns + `
		FROM engagements WHERE requester_id = $1 ORDER BY created_at DESC`

	var out []Engagement
	if err := r.db.SelectContext(ctx, &out, query, requesterID); err != nil {
		return nil, faults.Dependency("STORAGE", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Engagement, error) {
	query := `SELECT ` + engagementColumns + `
		FROM engagements WHERE provider_id = $1 ORDER BY created_at DESC`

	var out []Engagement
	if err := r.db.SelectContext(ctx, &out, query, providerID); err != nil {
		return nil, faults.Dependency("STORAGE", err)
	}
	return out, nil
}

func (r *PostgresRepository) FindActiveByProvider(ctx context.Context, providerID uuid.UUID) (*Engagement, error) {
	query := `SELECT ` + engagementColumns + `
		FROM engagements
		WHERE provider_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1`

	var e Engagement
	err := r.db.GetContext(ctx, &e, query, providerID, pq.Array([]string{string(StatusAccepted), string(StatusInProgress)}))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, faults.Dependency("STORAGE", err)
	}
	return &e, nil
}

func (r *PostgresRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	query := `
		UPDATE engagements
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now())
	if err != nil {
		return false, faults.Dependency("STORAGE", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (r *PostgresRepository) CompleteWithFees(ctx context.Context, id uuid.UUID, from Status, platformFee, providerEarning float64) (bool, error) {
	query := `
		UPDATE engagements
		SET status = $3, platform_fee = $4, provider_earning = $5, updated_at = $6
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, from, StatusCompleted, platformFee, providerEarning, time.Now())
	if err != nil {
		return false, faults.Dependency("STORAGE", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (r *PostgresRepository) SetPaymentOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	query := `UPDATE engagements SET payment_order_id = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, orderID, time.Now())
	if err != nil {
		return faults.Dependency("STORAGE", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return faults.NotFound("ENGAGEMENT_NOT_FOUND", "engagement %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) ClosePaid(ctx context.Context, id uuid.UUID, paymentRef string) (bool, error) {
	query := `
		UPDATE engagements
		SET status = $2, payment_status = $3, payment_ref = $4, updated_at = $5
		WHERE id = $1 AND status = $6
	`

	result, err := r.db.ExecContext(ctx, query, id, StatusClosed, PaymentPaid, paymentRef, time.Now(), StatusCompleted)
	if err != nil {
		return false, faults.Dependency("STORAGE", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (r *PostgresRepository) FindByPaymentOrder(ctx context.Context, orderID string) (*Engagement, error) {
	var e Engagement
	err := r.db.GetContext(ctx, &e, `SELECT `+engagementColumns+` FROM engagements WHERE payment_order_id = $1`, orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, faults.NotFound("ENGAGEMENT_NOT_FOUND", "no engagement for order %s", orderID)
		}
		return nil, faults.Dependency("STORAGE", err)
	}
	return &e, nil
}
