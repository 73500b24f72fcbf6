package providers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// Repository defines the interface for provider data access
type Repository interface {
	Create(ctx context.Context, p *Provider) error
	Get(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*Provider, error)

	// UpdateAvailability persists the live presence state plus timestamp.
	UpdateAvailability(ctx context.Context, id uuid.UUID, status Availability) error
	// UpdateLocation is last-writer-wins; only the latest coordinate matters.
	UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64, cell string) error
	// UpdateEligibility mutates the verification-owned fields.
	UpdateEligibility(ctx context.Context, id uuid.UUID, e Eligibility, canGoOnline bool, eligibleUntil, resubmitAt *time.Time) error

	// ListOnlineInCells returns online providers whose stored geocell is in
	// the given set. approvedOnly additionally requires current eligibility.
	ListOnlineInCells(ctx context.Context, cells []string, approvedOnly bool) ([]Provider, error)
	// ListApprovalExpired returns approved providers whose eligibility
	// window has passed.
	ListApprovalExpired(ctx context.Context, now time.Time) ([]Provider, error)

	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, providerID uuid.UUID) ([]AuditEntry, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const providerColumns = `
	id, user_id, name, skills, service_radius_km, base_rate, rating,
	availability, eligibility, can_go_online, eligible_until, resubmit_at,
	lat, lng, cell, last_active_at, created_at, updated_at
`

func (r *PostgresRepository) Create(ctx context.Context, p *Provider) error {
	query := `
		INSERT INTO providers (
			id, user_id, name, skills, service_radius_km, base_rate, rating,
			availability, eligibility, can_go_online,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.Name, p.Skills, p.ServiceRadiusKm, p.BaseRate, p.Rating,
		p.Availability, p.Eligibility, p.CanGoOnline,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	err := r.db.GetContext(ctx, &p, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, faults.NotFound("PROVIDER_NOT_FOUND", "provider %s not found", id)
		}
		return nil, faults.Dependency("STORAGE", err)
	}
	return &p, nil
}

func (r *PostgresRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*Provider, error) {
	var p Provider
	err := r.db.GetContext(ctx, &p, `SELECT `+providerColumns+` FROM providers WHERE user_id = $1`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, faults.NotFound("PROVIDER_NOT_FOUND", "provider for user %s not found", userID)
		}
		return nil, faults.Dependency("STORAGE", err)
	}
	return &p, nil
}

func (r *PostgresRepository) UpdateAvailability(ctx context.Context, id uuid.UUID, status Availability) error {
	query := `
		UPDATE providers
		SET availability = $2, last_active_at = $3, updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		return faults.Dependency("STORAGE", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return faults.NotFound("PROVIDER_NOT_FOUND", "provider %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64, cell string) error {
	query := `
		UPDATE providers
		SET lat = $2, lng = $3, cell = $4, last_active_at = $5, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, lat, lng, cell, time.Now())
	if err != nil {
		return faults.Dependency("STORAGE", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return faults.NotFound("PROVIDER_NOT_FOUND", "provider %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) UpdateEligibility(ctx context.Context, id uuid.UUID, e Eligibility, canGoOnline bool, eligibleUntil, resubmitAt *time.Time) error {
	query := `
		UPDATE providers
		SET eligibility = $2, can_go_online = $3, eligible_until = $4, resubmit_at = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, e, canGoOnline, eligibleUntil, resubmitAt, time.Now())
	if err != nil {
		return faults.Dependency("STORAGE", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return faults.NotFound("PROVIDER_NOT_FOUND", "provider %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) ListOnlineInCells(ctx context.Context, cells []string, approvedOnly bool) ([]Provider, error) {
	query := `SELECT ` + providerColumns + `
		FROM providers
		WHERE cell = ANY($1) AND availability = 'online'
	`
	args := []interface{}{pq.Array(cells)}
	if approvedOnly {
		query += ` AND eligibility = 'approved' AND eligible_until > $2`
		args = append(args, time.Now())
	}

	var out []Provider
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, faults.Dependency("STORAGE", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListApprovalExpired(ctx context.Context, now time.Time) ([]Provider, error) {
	query := `SELECT ` + providerColumns + `
		FROM providers
		WHERE eligibility = 'approved' AND eligible_until IS NOT NULL AND eligible_until <= $1
	`

	var out []Provider
	if err := r.db.SelectContext(ctx, &out, query, now); err != nil {
		return nil, faults.Dependency("STORAGE", err)
	}
	return out, nil
}

func (r *PostgresRepository) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO provider_audit_log (provider_id, action, actor, at, summary)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, entry.ProviderID, entry.Action, entry.Actor, entry.At, entry.Summary)
	if err != nil {
		return faults.Dependency("STORAGE", err)
	}
	return nil
}

func (r *PostgresRepository) ListAudit(ctx context.Context, providerID uuid.UUID) ([]AuditEntry, error) {
	query := `
		SELECT id, provider_id, action, actor, at, summary
		FROM provider_audit_log
		WHERE provider_id = $1
		ORDER BY at ASC, id ASC
	`

	var out []AuditEntry
	if err := r.db.SelectContext(ctx, &out, query, providerID); err != nil {
		return nil, faults.Dependency("STORAGE", err)
	}
	return out, nil
}
