package verification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/config"
	"fieldserve/dispatch/dispatch-backend/internal/providers"
	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// Service runs the provider eligibility workflow. Submit/approve/reject
// are serialized per provider so a submit cannot race a review decision.
type Service struct {
	repo      Repository
	providers providers.Repository
	policy    config.PolicyConfig
	logger    *zap.Logger

	locks sync.Map // provider id -> *sync.Mutex
}

// NewService creates a new verification service
func NewService(repo Repository, providerRepo providers.Repository, policy config.PolicyConfig, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		providers: providerRepo,
		policy:    policy,
		logger:    logger,
	}
}

func (s *Service) lockProvider(id uuid.UUID) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GetForm returns the required document list, submission history, and the
// earliest allowed resubmission time.
func (s *Service) GetForm(ctx context.Context, providerID uuid.UUID) (*Form, error) {
	if _, err := s.providers.Get(ctx, providerID); err != nil {
		return nil, err
	}

	history, err := s.repo.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	form := &Form{
		RequiredDocuments: RequiredDocuments,
		Submissions:       history,
	}
	last, err := s.repo.LatestRejected(ctx, providerID)
	if err != nil {
		// The form is still useful without a resubmission time; degrade
		// rather than fail the whole read.
		s.logger.Warn("Could not load latest rejected submission",
			zap.String("provider_id", providerID.String()), zap.Error(err))
	} else if last != nil {
		t := last.SubmittedAt.Add(s.policy.ResubmitCooldown)
		form.CanResubmitAt = &t
	}
	return form, nil
}

// Submit creates a new pending submission and flips the provider to
// pending, clearing any standing right to go online.
func (s *Service) Submit(ctx context.Context, providerID uuid.UUID, docs []DocumentInput) (*Submission, error) {
	if len(docs) == 0 {
		return nil, faults.Validation("NO_DOCUMENTS", "at least one document is required")
	}
	for _, d := range docs {
		if d.URL == "" || d.Type == "" {
			return nil, faults.Validation("BAD_DOCUMENT", "document type and url are required")
		}
	}

	unlock := s.lockProvider(providerID)
	defer unlock()

	provider, err := s.providers.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}

	if provider.Eligibility == providers.EligibilityPending {
		return nil, faults.StateConflict("ALREADY_PENDING", "a submission is already under review").
			WithStatus(string(provider.Eligibility))
	}

	now := time.Now()
	if last, err := s.repo.LatestRejected(ctx, providerID); err != nil {
		return nil, err
	} else if last != nil {
		allowed := last.SubmittedAt.Add(s.policy.ResubmitCooldown)
		if allowed.After(now) {
			return nil, faults.StateConflict("RESUBMIT_COOLDOWN", "resubmission allowed after %s", allowed.Format(time.RFC3339)).
				WithStatus(string(provider.Eligibility)).
				WithRetryAt(allowed)
		}
	}

	submission := &Submission{
		ID:          uuid.New(),
		ProviderID:  providerID,
		SubmittedAt: now,
		Status:      StatusPending,
		Documents:   make([]Document, 0, len(docs)),
	}
	for _, d := range docs {
		submission.Documents = append(submission.Documents, Document{
			ID:         uuid.New(),
			Type:       d.Type,
			URL:        d.URL,
			ExpiresAt:  d.ExpiresAt,
			UploadedAt: now,
		})
	}

	if err := s.repo.CreateSubmission(ctx, submission); err != nil {
		return nil, err
	}
	if err := s.providers.UpdateEligibility(ctx, providerID, providers.EligibilityPending, false, nil, provider.ResubmitAt); err != nil {
		return nil, err
	}
	s.audit(ctx, providerID, "verification_submitted", providerID.String(),
		fmt.Sprintf("submission %s with %d documents", submission.ID, len(submission.Documents)))

	s.logger.Info("Verification submitted",
		zap.String("provider_id", providerID.String()),
		zap.String("submission_id", submission.ID.String()),
		zap.Int("documents", len(submission.Documents)))

	return submission, nil
}

// Approve grants eligibility for the configured TTL.
func (s *Service) Approve(ctx context.Context, submissionID, reviewerID uuid.UUID, feedback string) (*Decision, error) {
	submission, err := s.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockProvider(submission.ProviderID)
	defer unlock()

	now := time.Now()
	eligibleUntil := now.Add(s.policy.ApprovalTTL)
	review := &Review{
		ReviewerID: reviewerID,
		ReviewedAt: now,
		Decision:   StatusApproved,
		Feedback:   feedback,
	}

	if err := s.repo.SetReview(ctx, submissionID, StatusApproved, review); err != nil {
		return nil, err
	}
	if err := s.providers.UpdateEligibility(ctx, submission.ProviderID, providers.EligibilityApproved, true, &eligibleUntil, nil); err != nil {
		return nil, err
	}
	s.audit(ctx, submission.ProviderID, "verification_approved", reviewerID.String(),
		fmt.Sprintf("submission %s approved until %s", submissionID, eligibleUntil.Format(time.RFC3339)))

	return &Decision{
		SubmissionID:  submissionID,
		ProviderID:    submission.ProviderID,
		Status:        StatusApproved,
		EligibleUntil: &eligibleUntil,
	}, nil
}

// Reject records a mandatory user-visible reason plus optional private
// notes, and starts the resubmission cooldown.
func (s *Service) Reject(ctx context.Context, submissionID, reviewerID uuid.UUID, reason, notes string) (*Decision, error) {
	if reason == "" {
		return nil, faults.Validation("REASON_REQUIRED", "a rejection reason is required")
	}

	submission, err := s.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockProvider(submission.ProviderID)
	defer unlock()

	now := time.Now()
	resubmitAt := now.Add(s.policy.ResubmitCooldown)
	review := &Review{
		ReviewerID: reviewerID,
		ReviewedAt: now,
		Decision:   StatusRejected,
		Feedback:   reason,
		Notes:      notes,
	}

	if err := s.repo.SetReview(ctx, submissionID, StatusRejected, review); err != nil {
		return nil, err
	}
	if err := s.providers.UpdateEligibility(ctx, submission.ProviderID, providers.EligibilityRejected, false, nil, &resubmitAt); err != nil {
		return nil, err
	}
	s.audit(ctx, submission.ProviderID, "verification_rejected", reviewerID.String(),
		fmt.Sprintf("submission %s rejected: %s", submissionID, reason))

	return &Decision{
		SubmissionID: submissionID,
		ProviderID:   submission.ProviderID,
		Status:       StatusRejected,
		ResubmitAt:   &resubmitAt,
	}, nil
}

// RequestMoreInfo moves a submission to needs_info with a resubmission
// deadline. Standing approval, if any, is left intact: only the
// verification status moves, eligible_until and can_go_online are not
// touched.
func (s *Service) RequestMoreInfo(ctx context.Context, submissionID, reviewerID uuid.UUID, feedback string, deadlineDays int) (*Decision, error) {
	if feedback == "" {
		return nil, faults.Validation("FEEDBACK_REQUIRED", "feedback is required")
	}
	if deadlineDays <= 0 {
		deadlineDays = s.policy.NeedsInfoDeadlineDays
	}

	submission, err := s.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockProvider(submission.ProviderID)
	defer unlock()

	provider, err := s.providers.Get(ctx, submission.ProviderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	deadline := now.Add(time.Duration(deadlineDays) * 24 * time.Hour)
	review := &Review{
		ReviewerID: reviewerID,
		ReviewedAt: now,
		Decision:   StatusNeedsInfo,
		Feedback:   feedback,
	}

	if err := s.repo.SetReview(ctx, submissionID, StatusNeedsInfo, review); err != nil {
		return nil, err
	}
	if err := s.providers.UpdateEligibility(ctx, submission.ProviderID, providers.EligibilityNeedsInfo,
		provider.CanGoOnline, provider.EligibleUntil, &deadline); err != nil {
		return nil, err
	}
	s.audit(ctx, submission.ProviderID, "verification_needs_info", reviewerID.String(),
		fmt.Sprintf("submission %s needs info by %s", submissionID, deadline.Format(time.RFC3339)))

	return &Decision{
		SubmissionID: submissionID,
		ProviderID:   submission.ProviderID,
		Status:       StatusNeedsInfo,
		Deadline:     &deadline,
	}, nil
}

// ExpireOverdue flips approved providers whose eligibility window has
// passed to expired. Invoked by the maintenance worker.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.providers.ListApprovalExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range expired {
		p := &expired[i]
		unlock := s.lockProvider(p.ID)
		if err := s.providers.UpdateEligibility(ctx, p.ID, providers.EligibilityExpired, false, p.EligibleUntil, nil); err != nil {
			unlock()
			s.logger.Error("Failed to expire provider eligibility",
				zap.Error(err), zap.String("provider_id", p.ID.String()))
			continue
		}
		s.audit(ctx, p.ID, "verification_expired", "system", "approval window elapsed")
		unlock()
		count++
	}
	return count, nil
}

func (s *Service) audit(ctx context.Context, providerID uuid.UUID, action, actor, summary string) {
	entry := &providers.AuditEntry{
		ProviderID: providerID,
		Action:     action,
		Actor:      actor,
		At:         time.Now(),
		Summary:    summary,
	}
	if err := s.providers.AppendAudit(ctx, entry); err != nil {
		s.logger.Error("Failed to append audit entry", zap.Error(err), zap.String("action", action))
	}
}
