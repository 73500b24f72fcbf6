package engagements

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
	"fieldserve/dispatch/dispatch-backend/internal/config"
	"fieldserve/dispatch/dispatch-backend/internal/providers"
	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, e *Engagement) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockRepository) Get(ctx context.Context, id uuid.UUID) (*Engagement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Engagement), args.Error(1)
}

func (m *MockRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]Engagement, error) {
	args := m.Called(ctx, requesterID)
	return args.Get(0).([]Engagement), args.Error(1)
}

func (m *MockRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Engagement, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).([]Engagement), args.Error(1)
}

func (m *MockRepository) FindActiveByProvider(ctx context.Context, providerID uuid.UUID) (*Engagement, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Engagement), args.Error(1)
}

func (m *MockRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CompleteWithFees(ctx context.Context, id uuid.UUID, from Status, platformFee, providerEarning float64) (bool, error) {
	args := m.Called(ctx, id, from, platformFee, providerEarning)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) SetPaymentOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	args := m.Called(ctx, id, orderID)
	return args.Error(0)
}

func (m *MockRepository) ClosePaid(ctx context.Context, id uuid.UUID, paymentRef string) (bool, error) {
	args := m.Called(ctx, id, paymentRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) FindByPaymentOrder(ctx context.Context, orderID string) (*Engagement, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Engagement), args.Error(1)
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

// recordingBroadcaster captures published events for assertions.
type recordingBroadcaster struct {
	actorEvents      []string
	engagementEvents []string
	payloads         []interface{}
}

func (r *recordingBroadcaster) ToActor(role, actorID, event string, payload interface{}) {
	r.actorEvents = append(r.actorEvents, role+":"+actorID+":"+event)
	r.payloads = append(r.payloads, payload)
}

func (r *recordingBroadcaster) ToEngagement(engagementID, event string, payload interface{}) {
	r.engagementEvents = append(r.engagementEvents, engagementID+":"+event)
	r.payloads = append(r.payloads, payload)
}

func (r *recordingBroadcaster) ToSearchers(cell, event string, payload interface{}) {}

func newTestService(repo *MockRepository, providerRepo *MockProviderRepository) (*Service, *recordingBroadcaster) {
	b := &recordingBroadcaster{}
	return NewService(repo, providerRepo, b, config.DefaultPolicy(), zap.NewNop()), b
}

func approvedProvider(id uuid.UUID) *providers.Provider {
	until := time.Now().Add(30 * 24 * time.Hour)
	return &providers.Provider{
		ID:            id,
		Name:          "Test Provider",
		Eligibility:   providers.EligibilityApproved,
		CanGoOnline:   true,
		EligibleUntil: &until,
	}
}

func pendingEngagement(requesterID, providerID uuid.UUID, status Status) *Engagement {
	return &Engagement{
		ID:           uuid.New(),
		RequesterID:  requesterID,
		ProviderID:   providerID,
		Amount:       500,
		Status:       status,
		StartCode:    "123456",
		CompleteCode: "654321",
	}
}

func TestCreate_GeneratesDistinctCodes(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, b := newTestService(repo, providerRepo)

	providerID := uuid.New()
	providerRepo.On("Get", mock.Anything, providerID).Return(approvedProvider(providerID), nil)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*engagements.Engagement")).Return(nil)

	e, err := service.Create(context.Background(), uuid.New(), CreateRequest{
		ProviderID: providerID,
		Schedule:   Schedule{Date: "2026-09-02", Time: "10:00"},
		Lat:        18.52,
		Lng:        73.85,
		Amount:     750,
	})

	assert.NoError(t, err)
	assert.Equal(t, StatusRequested, e.Status)
	assert.Equal(t, PaymentPending, e.PaymentStatus)
	assert.Len(t, e.StartCode, 6)
	assert.Len(t, e.CompleteCode, 6)
	assert.GreaterOrEqual(t, e.StartCode, "100000")
	assert.GreaterOrEqual(t, e.CompleteCode, "100000")
	assert.Len(t, b.actorEvents, 2)
	repo.AssertExpectations(t)
}

func TestCreate_ProviderNotEligible(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	providerID := uuid.New()
	p := approvedProvider(providerID)
	p.Eligibility = providers.EligibilityPending
	providerRepo.On("Get", mock.Anything, providerID).Return(p, nil)

	_, err := service.Create(context.Background(), uuid.New(), CreateRequest{
		ProviderID: providerID,
		Lat:        18.52,
		Lng:        73.85,
		Amount:     750,
	})

	assert.Error(t, err)
	assert.Equal(t, "PROVIDER_NOT_ELIGIBLE", faults.CodeOf(err))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_RejectsBadCoordinates(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	_, err := service.Create(context.Background(), uuid.New(), CreateRequest{
		ProviderID: uuid.New(),
		Lat:        91,
		Lng:        73.85,
		Amount:     750,
	})

	assert.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestUpdateStatus_ProviderAccepts(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, b := newTestService(repo, providerRepo)

	providerID := uuid.New()
	e := pendingEngagement(uuid.New(), providerID, StatusRequested)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)
	repo.On("TransitionStatus", mock.Anything, e.ID, StatusRequested, StatusAccepted).Return(true, nil)

	actor := auth.Actor{ID: providerID.String(), Role: auth.RoleProvider}
	updated, err := service.UpdateStatus(context.Background(), actor, e.ID, StatusAccepted)

	assert.NoError(t, err)
	assert.Equal(t, StatusAccepted, updated.Status)
	assert.Len(t, b.engagementEvents, 1)
	repo.AssertExpectations(t)
}

func TestUpdateStatus_RequesterCannotAccept(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	requesterID := uuid.New()
	e := pendingEngagement(requesterID, uuid.New(), StatusRequested)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)

	actor := auth.Actor{ID: requesterID.String(), Role: auth.RoleCustomer}
	_, err := service.UpdateStatus(context.Background(), actor, e.ID, StatusAccepted)

	assert.Error(t, err)
	assert.Equal(t, faults.KindAuthorization, faults.KindOf(err))
	repo.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateStatus_RequesterCancels(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	requesterID := uuid.New()
	e := pendingEngagement(requesterID, uuid.New(), StatusAccepted)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)
	repo.On("TransitionStatus", mock.Anything, e.ID, StatusAccepted, StatusCancelled).Return(true, nil)

	actor := auth.Actor{ID: requesterID.String(), Role: auth.RoleCustomer}
	updated, err := service.UpdateStatus(context.Background(), actor, e.ID, StatusCancelled)

	assert.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
}

func TestUpdateStatus_RefusesCodeGatedStates(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	actor := auth.Actor{ID: uuid.New().String(), Role: auth.RoleInternal}
	for _, next := range []Status{StatusInProgress, StatusCompleted} {
		_, err := service.UpdateStatus(context.Background(), actor, uuid.New(), next)
		assert.Equal(t, "CODE_REQUIRED", faults.CodeOf(err))
	}

	_, err := service.UpdateStatus(context.Background(), actor, uuid.New(), StatusClosed)
	assert.Equal(t, "PAYMENT_REQUIRED", faults.CodeOf(err))
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	providerID := uuid.New()
	e := pendingEngagement(uuid.New(), providerID, StatusCancelled)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)

	actor := auth.Actor{ID: providerID.String(), Role: auth.RoleProvider}
	_, err := service.UpdateStatus(context.Background(), actor, e.ID, StatusAccepted)

	assert.Error(t, err)
	assert.Equal(t, "INVALID_TRANSITION", faults.CodeOf(err))
}

func TestUpdateStatus_LostRaceSurfacesCurrentStatus(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	providerID := uuid.New()
	e := pendingEngagement(uuid.New(), providerID, StatusRequested)
	raced := *e
	raced.Status = StatusCancelled

	repo.On("Get", mock.Anything, e.ID).Return(e, nil).Once()
	repo.On("TransitionStatus", mock.Anything, e.ID, StatusRequested, StatusAccepted).Return(false, nil)
	repo.On("Get", mock.Anything, e.ID).Return(&raced, nil)

	actor := auth.Actor{ID: providerID.String(), Role: auth.RoleProvider}
	_, err := service.UpdateStatus(context.Background(), actor, e.ID, StatusAccepted)

	assert.Error(t, err)
	f, ok := faults.As(err)
	assert.True(t, ok)
	assert.Equal(t, "INVALID_TRANSITION", f.Code)
	assert.Equal(t, string(StatusCancelled), f.CurrentStatus)
}

func TestMarkArrived_IdempotentOnceArrived(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, b := newTestService(repo, providerRepo)

	providerID := uuid.New()
	e := pendingEngagement(uuid.New(), providerID, StatusArrived)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)

	updated, err := service.MarkArrived(context.Background(), providerID, e.ID)

	assert.NoError(t, err)
	assert.Equal(t, StatusArrived, updated.Status)
	assert.Empty(t, b.engagementEvents)
	repo.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkArrived_WrongProvider(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	e := pendingEngagement(uuid.New(), uuid.New(), StatusAccepted)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)

	_, err := service.MarkArrived(context.Background(), uuid.New(), e.ID)

	assert.Error(t, err)
	assert.Equal(t, faults.KindAuthorization, faults.KindOf(err))
}

func TestStartWork_WrongCodeLeavesStateUntouched(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, b := newTestService(repo, providerRepo)

	providerID := uuid.New()
	e := pendingEngagement(uuid.New(), providerID, StatusArrived)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)

	_, err := service.StartWork(context.Background(), providerID, e.ID, "000000")

	assert.Error(t, err)
	assert.Equal(t, "INVALID_CODE", faults.CodeOf(err))
	assert.Empty(t, b.engagementEvents)
	repo.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStartWork_CorrectCode(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	providerID := uuid.New()
	e := pendingEngagement(uuid.New(), providerID, StatusArrived)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)
	repo.On("TransitionStatus", mock.Anything, e.ID, StatusArrived, StatusInProgress).Return(true, nil)

	updated, err := service.StartWork(context.Background(), providerID, e.ID, "123456")

	assert.NoError(t, err)
	assert.Equal(t, StatusInProgress, updated.Status)
	repo.AssertExpectations(t)
}

func TestStartWork_CorrectCodeBeforeArrivalMark(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	providerID := uuid.New()
	e := pendingEngagement(uuid.New(), providerID, StatusAccepted)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)
	repo.On("TransitionStatus", mock.Anything, e.ID, StatusAccepted, StatusInProgress).Return(true, nil)

	updated, err := service.StartWork(context.Background(), providerID, e.ID, "123456")

	assert.NoError(t, err)
	assert.Equal(t, StatusInProgress, updated.Status)
	repo.AssertExpectations(t)
}

func TestCompleteWork_SplitsFees(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, b := newTestService(repo, providerRepo)

	providerID := uuid.New()
	e := pendingEngagement(uuid.New(), providerID, StatusInProgress)
	e.Amount = 999.99
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)
	// 10% of 999.99 rounds to 100.00; earning is the remainder.
	repo.On("CompleteWithFees", mock.Anything, e.ID, StatusInProgress, 100.0, 899.99).Return(true, nil)

	updated, err := service.CompleteWork(context.Background(), providerID, e.ID, "654321")

	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.InDelta(t, 100.0, *updated.PlatformFee, 1e-9)
	assert.InDelta(t, 899.99, *updated.ProviderEarning, 1e-9)
	assert.InDelta(t, updated.Amount, *updated.PlatformFee+*updated.ProviderEarning, 1e-9)
	assert.Len(t, b.actorEvents, 2)
	repo.AssertExpectations(t)
}

func TestCompleteWork_RequiresInProgress(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	providerID := uuid.New()
	e := pendingEngagement(uuid.New(), providerID, StatusAccepted)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)

	_, err := service.CompleteWork(context.Background(), providerID, e.ID, "654321")

	assert.Error(t, err)
	assert.Equal(t, "INVALID_TRANSITION", faults.CodeOf(err))
}

func TestConfirmClosed_NotCompleted(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	e := pendingEngagement(uuid.New(), uuid.New(), StatusInProgress)
	repo.On("ClosePaid", mock.Anything, e.ID, "pay_123").Return(false, nil)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)

	_, err := service.ConfirmClosed(context.Background(), e.ID, "pay_123")

	assert.Error(t, err)
	f, ok := faults.As(err)
	assert.True(t, ok)
	assert.Equal(t, string(StatusInProgress), f.CurrentStatus)
}

func TestGet_OutsiderDenied(t *testing.T) {
	repo := new(MockRepository)
	providerRepo := new(MockProviderRepository)
	service, _ := newTestService(repo, providerRepo)

	e := pendingEngagement(uuid.New(), uuid.New(), StatusRequested)
	repo.On("Get", mock.Anything, e.ID).Return(e, nil)

	actor := auth.Actor{ID: uuid.New().String(), Role: auth.RoleCustomer}
	_, err := service.Get(context.Background(), actor, e.ID)

	assert.Error(t, err)
	assert.Equal(t, "NOT_PARTICIPANT", faults.CodeOf(err))
}

func TestSnapshots_CodeVisibility(t *testing.T) {
	e := pendingEngagement(uuid.New(), uuid.New(), StatusRequested)

	requester := e.RequesterSnapshot()
	provider := e.ProviderSnapshot()

	assert.Equal(t, "123456", requester.StartCode)
	assert.Equal(t, "654321", requester.CompleteCode)
	assert.Empty(t, provider.StartCode)
	assert.Empty(t, provider.CompleteCode)
}
