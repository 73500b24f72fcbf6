package engagements

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
	"fieldserve/dispatch/dispatch-backend/internal/config"
	"fieldserve/dispatch/dispatch-backend/internal/events"
	"fieldserve/dispatch/dispatch-backend/internal/providers"
	"fieldserve/dispatch/dispatch-backend/pkg/faults"
	"fieldserve/dispatch/dispatch-backend/pkg/geospatial"
	"fieldserve/dispatch/dispatch-backend/pkg/workflows"
)

// Service drives the engagement lifecycle. Transitions are serialized per
// booking by the repository's compare-and-set; a losing duplicate gets
// InvalidTransition instead of silently overwriting.
type Service struct {
	repo        Repository
	providers   providers.Repository
	broadcaster events.Broadcaster
	machine     *workflows.StateMachine
	policy      config.PolicyConfig
	logger      *zap.Logger
}

// NewService creates a new engagement service
func NewService(repo Repository, providerRepo providers.Repository, broadcaster events.Broadcaster, policy config.PolicyConfig, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		providers:   providerRepo,
		broadcaster: broadcaster,
		machine:     workflows.NewEngagementStateMachine(),
		policy:      policy,
		logger:      logger,
	}
}

// Create opens a new engagement against a currently eligible provider and
// generates the two independent one-time codes.
func (s *Service) Create(ctx context.Context, requesterID uuid.UUID, req CreateRequest) (*Engagement, error) {
	if err := geospatial.ValidateCoordinates(req.Lat, req.Lng); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, faults.Validation("BAD_AMOUNT", "amount must be positive")
	}

	provider, err := s.providers.Get(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.Eligible(time.Now()) {
		return nil, faults.StateConflict("PROVIDER_NOT_ELIGIBLE", "provider is not currently approved").
			WithStatus(string(provider.Eligibility))
	}

	startCode, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate start code: %w", err)
	}
	completeCode, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate complete code: %w", err)
	}

	now := time.Now()
	e := &Engagement{
		ID:            uuid.New(),
		RequesterID:   requesterID,
		ProviderID:    req.ProviderID,
		ScheduleDate:  req.Schedule.Date,
		ScheduleTime:  req.Schedule.Time,
		Description:   req.Description,
		Lat:           req.Lat,
		Lng:           req.Lng,
		Amount:        req.Amount,
		Status:        StatusRequested,
		PaymentStatus: PaymentPending,
		StartCode:     startCode,
		CompleteCode:  completeCode,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.emit(e)
	s.logger.Info("Engagement created",
		zap.String("engagement_id", e.ID.String()),
		zap.String("requester_id", requesterID.String()),
		zap.String("provider_id", req.ProviderID.String()))
	return e, nil
}

// Get returns an engagement visible to one of its participants.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Engagement, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(actor, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListForRequester returns a requester's engagement history.
func (s *Service) ListForRequester(ctx context.Context, requesterID uuid.UUID) ([]Engagement, error) {
	return s.repo.ListByRequester(ctx, requesterID)
}

// ListForProvider returns a provider's engagement history.
func (s *Service) ListForProvider(ctx context.Context, providerID uuid.UUID) ([]Engagement, error) {
	return s.repo.ListByProvider(ctx, providerID)
}

// UpdateStatus applies a table-validated transition. Code-gated and
// payment-gated states are refused here; they have their own operations.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, next Status) (*Engagement, error) {
	switch next {
	case StatusInProgress, StatusCompleted:
		return nil, faults.StateConflict("CODE_REQUIRED", "transition to %s requires a one-time code", next)
	case StatusClosed:
		return nil, faults.StateConflict("PAYMENT_REQUIRED", "closure is driven by payment confirmation")
	}

	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTransition(actor, e, next); err != nil {
		return nil, err
	}
	return s.transition(ctx, e, next)
}

// MarkArrived is restricted to the assigned provider and is idempotent
// once arrived.
func (s *Service) MarkArrived(ctx context.Context, providerID, id uuid.UUID) (*Engagement, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.ProviderID != providerID {
		return nil, faults.Authorization("NOT_ASSIGNED", "you are not assigned to this engagement")
	}

	switch e.Status {
	case StatusArrived:
		return e, nil
	case StatusAccepted:
		return s.transition(ctx, e, StatusArrived)
	default:
		return nil, faults.StateConflict("INVALID_TRANSITION", "cannot mark arrived from %s", e.Status).
			WithStatus(string(e.Status))
	}
}

// StartWork verifies the start code and moves the engagement to
// in_progress. A wrong code never changes state.
func (s *Service) StartWork(ctx context.Context, providerID, id uuid.UUID, code string) (*Engagement, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.ProviderID != providerID {
		return nil, faults.Authorization("NOT_ASSIGNED", "you are not assigned to this engagement")
	}
	if e.Status != StatusAccepted && e.Status != StatusArrived {
		return nil, faults.StateConflict("INVALID_TRANSITION", "cannot start work from %s", e.Status).
			WithStatus(string(e.Status))
	}
	if code != e.StartCode {
		return nil, faults.StateConflict("INVALID_CODE", "start code mismatch")
	}
	return s.transition(ctx, e, StatusInProgress)
}

// CompleteWork verifies the completion code, fixes the fee split once,
// and moves the engagement to completed.
func (s *Service) CompleteWork(ctx context.Context, providerID, id uuid.UUID, code string) (*Engagement, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.ProviderID != providerID {
		return nil, faults.Authorization("NOT_ASSIGNED", "you are not assigned to this engagement")
	}
	if e.Status != StatusInProgress {
		return nil, faults.StateConflict("INVALID_TRANSITION", "cannot complete work from %s", e.Status).
			WithStatus(string(e.Status))
	}
	if code != e.CompleteCode {
		return nil, faults.StateConflict("INVALID_CODE", "completion code mismatch")
	}

	platformFee := math.Round(e.Amount*s.policy.CommissionRate*100) / 100
	providerEarning := math.Max(0, e.Amount-platformFee)

	ok, err := s.repo.CompleteWithFees(ctx, id, StatusInProgress, platformFee, providerEarning)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, _ := s.repo.Get(ctx, id)
		f := faults.StateConflict("INVALID_TRANSITION", "engagement is no longer in progress")
		if current != nil {
			f = f.WithStatus(string(current.Status))
		}
		return nil, f
	}

	e.Status = StatusCompleted
	e.PlatformFee = &platformFee
	e.ProviderEarning = &providerEarning
	s.emit(e)
	return e, nil
}

// ConfirmClosed finalizes a paid engagement (completed -> closed). The
// payment service calls this after verifying the gateway signature.
func (s *Service) ConfirmClosed(ctx context.Context, id uuid.UUID, paymentRef string) (*Engagement, error) {
	ok, err := s.repo.ClosePaid(ctx, id, paymentRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, _ := s.repo.Get(ctx, id)
		f := faults.StateConflict("INVALID_TRANSITION", "engagement is not awaiting closure")
		if current != nil {
			f = f.WithStatus(string(current.Status))
		}
		return nil, f
	}

	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(e)
	return e, nil
}

func (s *Service) transition(ctx context.Context, e *Engagement, next Status) (*Engagement, error) {
	if !s.machine.CanTransition(string(e.Status), string(next)) {
		return nil, faults.StateConflict("INVALID_TRANSITION", "invalid status transition from %s to %s", e.Status, next).
			WithStatus(string(e.Status))
	}

	ok, err := s.repo.TransitionStatus(ctx, e.ID, e.Status, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race; re-read so the conflict carries the actual status.
		current, _ := s.repo.Get(ctx, e.ID)
		f := faults.StateConflict("INVALID_TRANSITION", "engagement status changed concurrently")
		if current != nil {
			f = f.WithStatus(string(current.Status))
		}
		return nil, f
	}

	e.Status = next
	e.UpdatedAt = time.Now()
	s.emit(e)
	return e, nil
}

func (s *Service) authorizeParticipant(actor auth.Actor, e *Engagement) error {
	switch actor.Role {
	case auth.RoleAdmin, auth.RoleInternal:
		return nil
	case auth.RoleCustomer:
		if actor.ID == e.RequesterID.String() {
			return nil
		}
	case auth.RoleProvider:
		if actor.ID == e.ProviderID.String() {
			return nil
		}
	}
	return faults.Authorization("NOT_PARTICIPANT", "you are not a participant of this engagement")
}

func (s *Service) authorizeTransition(actor auth.Actor, e *Engagement, next Status) error {
	if actor.Role == auth.RoleAdmin || actor.Role == auth.RoleInternal {
		return nil
	}

	switch next {
	case StatusAccepted, StatusRejected, StatusArrived:
		if actor.Role == auth.RoleProvider && actor.ID == e.ProviderID.String() {
			return nil
		}
	case StatusCancelled:
		// A requester may cancel any time before completed; the
		// acceptance-timeout auto-cancel arrives through the internal role.
		if actor.Role == auth.RoleCustomer && actor.ID == e.RequesterID.String() {
			return nil
		}
	}
	return faults.Authorization("FORBIDDEN_TRANSITION", "actor may not move this engagement to %s", next)
}

// emit publishes the full snapshot to both participants and the
// engagement channel. The provider-facing copies never carry the codes.
func (s *Service) emit(e *Engagement) {
	s.broadcaster.ToActor(events.ChannelCustomer, e.RequesterID.String(), events.EngagementUpdated, e.RequesterSnapshot())
	s.broadcaster.ToActor(events.ChannelProvider, e.ProviderID.String(), events.EngagementUpdated, e.ProviderSnapshot())
	s.broadcaster.ToEngagement(e.ID.String(), events.EngagementUpdated, e.ProviderSnapshot())
}

// generateCode produces a 6-digit one-time numeric code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
