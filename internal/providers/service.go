package providers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// RegisterRequest is the payload for a new provider profile.
type RegisterRequest struct {
	Name            string   `json:"name" binding:"required"`
	Skills          []string `json:"skills" binding:"required"`
	ServiceRadiusKm float64  `json:"service_radius_km"`
	BaseRate        float64  `json:"base_rate"`
}

// Service manages provider profiles. Eligibility is owned by the
// verification workflow and availability by the presence layer; this
// service never writes either.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new provider service
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Register creates a provider profile for a user. New profiles start
// offline and unverified.
func (s *Service) Register(ctx context.Context, userID uuid.UUID, req RegisterRequest) (*Provider, error) {
	if len(req.Skills) == 0 {
		return nil, faults.Validation("NO_SKILLS", "at least one skill is required")
	}

	if existing, err := s.repo.GetByUser(ctx, userID); err == nil && existing != nil {
		return nil, faults.StateConflict("ALREADY_REGISTERED", "user already has a provider profile")
	}

	now := time.Now()
	p := &Provider{
		ID:              uuid.New(),
		UserID:          userID,
		Name:            req.Name,
		Skills:          pq.StringArray(req.Skills),
		ServiceRadiusKm: req.ServiceRadiusKm,
		BaseRate:        req.BaseRate,
		Availability:    AvailabilityOffline,
		Eligibility:     EligibilityNotSubmitted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Provider registered",
		zap.String("provider_id", p.ID.String()),
		zap.String("user_id", userID.String()))
	return p, nil
}

// Profile returns the provider profile owned by a user.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*Provider, error) {
	return s.repo.GetByUser(ctx, userID)
}

// Get returns a provider by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.repo.Get(ctx, id)
}

// AuditTrail returns the provider's append-only audit history.
func (s *Service) AuditTrail(ctx context.Context, providerID uuid.UUID) ([]AuditEntry, error) {
	if _, err := s.repo.Get(ctx, providerID); err != nil {
		return nil, err
	}
	return s.repo.ListAudit(ctx, providerID)
}
