package verification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/config"
	"fieldserve/dispatch/dispatch-backend/internal/providers"
	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateSubmission(ctx context.Context, s *Submission) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRepository) GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Submission), args.Error(1)
}

func (m *MockRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Submission, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).([]Submission), args.Error(1)
}

func (m *MockRepository) LatestRejected(ctx context.Context, providerID uuid.UUID) (*Submission, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Submission), args.Error(1)
}

func (m *MockRepository) SetReview(ctx context.Context, id uuid.UUID, status SubmissionStatus, review *Review) error {
	args := m.Called(ctx, id, status, review)
	return args.Error(0)
}

// MockProviderRepository is a mock implementation of providers.Repository
type MockProviderRepository struct {
	mock.Mock
}

func (m *MockProviderRepository) Create(ctx context.Context, p *providers.Provider) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProviderRepository) Get(ctx context.Context, id uuid.UUID) (*providers.Provider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Provider), args.Error(1)
}

func (m *MockProviderRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*providers.Provider, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Provider), args.Error(1)
}

func (m *MockProviderRepository) UpdateAvailability(ctx context.Context, id uuid.UUID, status providers.Availability) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockProviderRepository) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64, cell string) error {
	args := m.Called(ctx, id, lat, lng, cell)
	return args.Error(0)
}

func (m *MockProviderRepository) UpdateEligibility(ctx context.Context, id uuid.UUID, e providers.Eligibility, canGoOnline bool, eligibleUntil, resubmitAt *time.Time) error {
	args := m.Called(ctx, id, e, canGoOnline, eligibleUntil, resubmitAt)
	return args.Error(0)
}

func (m *MockProviderRepository) ListOnlineInCells(ctx context.Context, cells []string, approvedOnly bool) ([]providers.Provider, error) {
	args := m.Called(ctx, cells, approvedOnly)
	return args.Get(0).([]providers.Provider), args.Error(1)
}

func (m *MockProviderRepository) ListApprovalExpired(ctx context.Context, now time.Time) ([]providers.Provider, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]providers.Provider), args.Error(1)
}

func (m *MockProviderRepository) AppendAudit(ctx context.Context, entry *providers.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockProviderRepository) ListAudit(ctx context.Context, providerID uuid.UUID) ([]providers.AuditEntry, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).([]providers.AuditEntry), args.Error(1)
}

func newTestService(repo *MockRepository, providerRepo *MockProviderRepository) *Service {
	return NewService(repo, providerRepo, config.DefaultPolicy(), zap.NewNop())
}

func testDocs() []DocumentInput {
	return []DocumentInput{
		{Type: DocTypeIdentity, URL: "https://docs.example/id.pdf"},
		{Type: DocTypeCertificate, URL: "https://docs.example/cert.pdf"},
		{Type: DocTypePhoto, URL: "https://docs.example/photo.jpg"},
	}
}

func TestGetFormDegradesWhenCooldownLookupFails(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service := newTestService(repo, providerRepo)

	providerID := uuid.New()
	providerRepo.On("Get", mock.Anything, providerID).Return(&providers.Provider{ID: providerID}, nil)
	repo.On("ListByProvider", mock.Anything, providerID).Return([]Submission{}, nil)
	repo.On("LatestRejected", mock.Anything, providerID).Return(nil, faults.Dependency("STORAGE", assert.AnError))

	form, err := service.GetForm(context.Background(), providerID)

	assert.NoError(t, err)
	assert.Nil(t, form.CanResubmitAt, "a failed cooldown lookup leaves the resubmission time unset")
	assert.Equal(t, RequiredDocuments, form.RequiredDocuments)
}

func TestSubmitCreatesPendingSubmission(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service := newTestService(repo, providerRepo)
	ctx := context.Background()

	providerID := uuid.New()
	providerRepo.On("Get", ctx, providerID).Return(&providers.Provider{
		ID: providerID, Eligibility: providers.EligibilityNotSubmitted,
	}, nil)
	repo.On("LatestRejected", ctx, providerID).Return(nil, nil)
	repo.On("CreateSubmission", ctx, mock.AnythingOfType("*verification.Submission")).Return(nil)
	providerRepo.On("UpdateEligibility", ctx, providerID, providers.EligibilityPending, false,
		(*time.Time)(nil), (*time.Time)(nil)).Return(nil)
	providerRepo.On("AppendAudit", ctx, mock.AnythingOfType("*providers.AuditEntry")).Return(nil)

	submission, err := service.Submit(ctx, providerID, testDocs())
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, submission.Status)
	assert.Len(t, submission.Documents, 3)
	repo.AssertExpectations(t)
	providerRepo.AssertExpectations(t)
}

func TestSubmitFailsWhenAlreadyPending(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service := newTestService(repo, providerRepo)
	ctx := context.Background()

	providerID := uuid.New()
	providerRepo.On("Get", ctx, providerID).Return(&providers.Provider{
		ID: providerID, Eligibility: providers.EligibilityPending,
	}, nil)

	_, err := service.Submit(ctx, providerID, testDocs())
	assert.Error(t, err)
	assert.Equal(t, "ALREADY_PENDING", faults.CodeOf(err))
	repo.AssertNotCalled(t, "CreateSubmission", mock.Anything, mock.Anything)
}

// Submit three documents, get rejected, resubmit within an hour: the
// cooldown error must carry roughly 23h remaining.
func TestSubmitCooldownCarriesRemainingTime(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service := newTestService(repo, providerRepo)
	ctx := context.Background()

	providerID := uuid.New()
	providerRepo.On("Get", ctx, providerID).Return(&providers.Provider{
		ID: providerID, Eligibility: providers.EligibilityRejected,
	}, nil)
	repo.On("LatestRejected", ctx, providerID).Return(&Submission{
		ID:          uuid.New(),
		ProviderID:  providerID,
		SubmittedAt: time.Now().Add(-1 * time.Hour),
		Status:      StatusRejected,
	}, nil)

	_, err := service.Submit(ctx, providerID, testDocs())
	assert.Error(t, err)
	assert.Equal(t, "RESUBMIT_COOLDOWN", faults.CodeOf(err))

	f, ok := faults.As(err)
	assert.True(t, ok)
	if assert.NotNil(t, f.RetryAt) {
		remaining := time.Until(*f.RetryAt)
		assert.InDelta(t, 23*time.Hour, remaining, float64(5*time.Minute))
	}
	repo.AssertNotCalled(t, "CreateSubmission", mock.Anything, mock.Anything)
}

func TestSubmitAllowedAfterCooldownElapsed(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service := newTestService(repo, providerRepo)
	ctx := context.Background()

	providerID := uuid.New()
	providerRepo.On("Get", ctx, providerID).Return(&providers.Provider{
		ID: providerID, Eligibility: providers.EligibilityRejected,
	}, nil)
	repo.On("LatestRejected", ctx, providerID).Return(&Submission{
		ID:          uuid.New(),
		ProviderID:  providerID,
		SubmittedAt: time.Now().Add(-25 * time.Hour),
		Status:      StatusRejected,
	}, nil)
	repo.On("CreateSubmission", ctx, mock.AnythingOfType("*verification.Submission")).Return(nil)
	providerRepo.On("UpdateEligibility", ctx, providerID, providers.EligibilityPending, false,
		(*time.Time)(nil), (*time.Time)(nil)).Return(nil)
	providerRepo.On("AppendAudit", ctx, mock.AnythingOfType("*providers.AuditEntry")).Return(nil)

	_, err := service.Submit(ctx, providerID, testDocs())
	assert.NoError(t, err)
}

func TestSubmitRejectsEmptyDocuments(t *testing.T) {
	service := newTestService(new(MockRepository), new(MockProviderRepository))
	_, err := service.Submit(context.Background(), uuid.New(), nil)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestApproveGrantsEligibility(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service := newTestService(repo, providerRepo)
	ctx := context.Background()

	providerID := uuid.New()
	submissionID := uuid.New()
	reviewerID := uuid.New()

	repo.On("GetSubmission", ctx, submissionID).Return(&Submission{
		ID: submissionID, ProviderID: providerID, Status: StatusPending,
	}, nil)
	repo.On("SetReview", ctx, submissionID, StatusApproved, mock.AnythingOfType("*verification.Review")).Return(nil)
	providerRepo.On("UpdateEligibility", ctx, providerID, providers.EligibilityApproved, true,
		mock.AnythingOfType("*time.Time"), (*time.Time)(nil)).Return(nil)
	providerRepo.On("AppendAudit", ctx, mock.AnythingOfType("*providers.AuditEntry")).Return(nil)

	decision, err := service.Approve(ctx, submissionID, reviewerID, "all good")
	assert.NoError(t, err)
	assert.Equal(t, StatusApproved, decision.Status)
	if assert.NotNil(t, decision.EligibleUntil) {
		assert.InDelta(t, 365*24*time.Hour, time.Until(*decision.EligibleUntil), float64(time.Minute))
	}
}

func TestApproveUnknownSubmission(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockProviderRepository))
	ctx := context.Background()

	submissionID := uuid.New()
	repo.On("GetSubmission", ctx, submissionID).
		Return(nil, faults.NotFound("SUBMISSION_NOT_FOUND", "submission not found"))

	_, err := service.Approve(ctx, submissionID, uuid.New(), "")
	assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
}

func TestRejectRequiresReason(t *testing.T) {
	service := newTestService(new(MockRepository), new(MockProviderRepository))
	_, err := service.Reject(context.Background(), uuid.New(), uuid.New(), "", "")
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestRejectStartsCooldown(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service := newTestService(repo, providerRepo)
	ctx := context.Background()

	providerID := uuid.New()
	submissionID := uuid.New()

	repo.On("GetSubmission", ctx, submissionID).Return(&Submission{
		ID: submissionID, ProviderID: providerID, Status: StatusPending,
	}, nil)
	repo.On("SetReview", ctx, submissionID, StatusRejected, mock.MatchedBy(func(r *Review) bool {
		return r.Decision == StatusRejected && r.Feedback == "blurry photo" && r.Notes == "possible forgery"
	})).Return(nil)
	providerRepo.On("UpdateEligibility", ctx, providerID, providers.EligibilityRejected, false,
		(*time.Time)(nil), mock.AnythingOfType("*time.Time")).Return(nil)
	providerRepo.On("AppendAudit", ctx, mock.AnythingOfType("*providers.AuditEntry")).Return(nil)

	decision, err := service.Reject(ctx, submissionID, uuid.New(), "blurry photo", "possible forgery")
	assert.NoError(t, err)
	if assert.NotNil(t, decision.ResubmitAt) {
		assert.InDelta(t, 24*time.Hour, time.Until(*decision.ResubmitAt), float64(time.Minute))
	}
}

// needs_info must not revoke a standing approval: eligible_until and
// can_go_online pass through unchanged.
func TestRequestMoreInfoKeepsStandingApproval(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service := newTestService(repo, providerRepo)
	ctx := context.Background()

	providerID := uuid.New()
	submissionID := uuid.New()
	eligibleUntil := time.Now().Add(200 * 24 * time.Hour)

	repo.On("GetSubmission", ctx, submissionID).Return(&Submission{
		ID: submissionID, ProviderID: providerID, Status: StatusPending,
	}, nil)
	providerRepo.On("Get", ctx, providerID).Return(&providers.Provider{
		ID:            providerID,
		Eligibility:   providers.EligibilityApproved,
		CanGoOnline:   true,
		EligibleUntil: &eligibleUntil,
	}, nil)
	repo.On("SetReview", ctx, submissionID, StatusNeedsInfo, mock.AnythingOfType("*verification.Review")).Return(nil)
	providerRepo.On("UpdateEligibility", ctx, providerID, providers.EligibilityNeedsInfo, true,
		&eligibleUntil, mock.AnythingOfType("*time.Time")).Return(nil)
	providerRepo.On("AppendAudit", ctx, mock.AnythingOfType("*providers.AuditEntry")).Return(nil)

	decision, err := service.RequestMoreInfo(ctx, submissionID, uuid.New(), "need clearer certificate", 0)
	assert.NoError(t, err)
	if assert.NotNil(t, decision.Deadline) {
		assert.InDelta(t, 7*24*time.Hour, time.Until(*decision.Deadline), float64(time.Minute))
	}
	providerRepo.AssertExpectations(t)
}

func TestExpireOverdue(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service := newTestService(repo, providerRepo)
	ctx := context.Background()

	now := time.Now()
	past := now.Add(-time.Hour)
	expired := []providers.Provider{
		{ID: uuid.New(), Eligibility: providers.EligibilityApproved, EligibleUntil: &past},
		{ID: uuid.New(), Eligibility: providers.EligibilityApproved, EligibleUntil: &past},
	}

	providerRepo.On("ListApprovalExpired", ctx, now).Return(expired, nil)
	for i := range expired {
		providerRepo.On("UpdateEligibility", ctx, expired[i].ID, providers.EligibilityExpired, false,
			&past, (*time.Time)(nil)).Return(nil)
	}
	providerRepo.On("AppendAudit", ctx, mock.AnythingOfType("*providers.AuditEntry")).Return(nil)

	count, err := service.ExpireOverdue(ctx, now)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}
