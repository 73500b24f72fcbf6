package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
	"fieldserve/dispatch/dispatch-backend/internal/engagements"
	"fieldserve/dispatch/dispatch-backend/pkg/faults"
	"fieldserve/dispatch/dispatch-backend/pkg/security"
)

// Order is the payable handed to the requester's client. The gateway
// charges against OrderID; Confirm later proves the charge with the
// gateway's signature over (order, payment).
type Order struct {
	OrderID      string    `json:"order_id"`
	EngagementID uuid.UUID `json:"engagement_id"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
}

// Service settles completed engagements.
type Service struct {
	repo      engagements.Repository
	lifecycle *engagements.Service
	signer    *security.Signer
	logger    *zap.Logger
}

// NewService creates a new payment service
func NewService(repo engagements.Repository, lifecycle *engagements.Service, signer *security.Signer, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		lifecycle: lifecycle,
		signer:    signer,
		logger:    logger,
	}
}

// CreateOrder opens a payment order for a completed, unpaid engagement.
// Only the requester pays.
func (s *Service) CreateOrder(ctx context.Context, actor auth.Actor, engagementID uuid.UUID) (*Order, error) {
	e, err := s.repo.Get(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleAdmin && actor.ID != e.RequesterID.String() {
		return nil, faults.Authorization("NOT_PAYER", "only the requester can pay for this engagement")
	}
	if e.Status != engagements.StatusCompleted {
		return nil, faults.StateConflict("NOT_COMPLETED", "engagement is not completed").
			WithStatus(string(e.Status))
	}
	if e.PaymentStatus == engagements.PaymentPaid {
		return nil, faults.StateConflict("ALREADY_PAID", "engagement is already paid")
	}

	// Idempotent per engagement: re-requesting returns the open order.
	if e.PaymentOrderID != nil {
		return &Order{
			OrderID:      *e.PaymentOrderID,
			EngagementID: e.ID,
			Amount:       e.Amount,
			Currency:     "INR",
			CreatedAt:    e.UpdatedAt,
		}, nil
	}

	orderID, err := generateOrderID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate order id: %w", err)
	}
	if err := s.repo.SetPaymentOrder(ctx, engagementID, orderID); err != nil {
		return nil, err
	}

	s.logger.Info("Payment order created",
		zap.String("engagement_id", engagementID.String()),
		zap.String("order_id", orderID))

	return &Order{
		OrderID:      orderID,
		EngagementID: e.ID,
		Amount:       e.Amount,
		Currency:     "INR",
		CreatedAt:    time.Now(),
	}, nil
}

// Confirm verifies the gateway's HMAC over (orderID, paymentID) and
// closes the engagement as paid. A bad signature never changes state.
func (s *Service) Confirm(ctx context.Context, orderID, paymentID, signature string) (*engagements.Engagement, error) {
	e, err := s.repo.FindByPaymentOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !s.signer.Verify(orderID, paymentID, signature) {
		s.logger.Warn("Payment signature mismatch",
			zap.String("order_id", orderID),
			zap.String("engagement_id", e.ID.String()))
		return nil, faults.Authorization("INVALID_SIGNATURE", "payment signature verification failed")
	}

	return s.lifecycle.ConfirmClosed(ctx, e.ID, paymentID)
}

func generateOrderID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "order_" + hex.EncodeToString(buf), nil
}
