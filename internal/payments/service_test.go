package payments

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wafulah/dukapesa-backend/internal/audit"
	"github.com/wafulah/dukapesa-backend/internal/orders"
	"github.com/wafulah/dukapesa-backend/pkg/db/models"
	"github.com/wafulah/dukapesa-backend/pkg/enums"
	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
	"github.com/wafulah/dukapesa-backend/pkg/mpesa"
)

type stubOrdersRepo struct {
	byID map[uuid.UUID]*models.Order

	setReferenceCalls int
	lastReference     string
	setReferenceErr   error
}

func newStubOrdersRepo(order *models.Order) *stubOrdersRepo {
	repo := &stubOrdersRepo{byID: make(map[uuid.UUID]*models.Order)}
	if order != nil {
		repo.byID[order.ID] = order
	}
	return repo
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository {
	return s
}

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	s.byID[order.ID] = order
	return nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *stubOrdersRepo) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindByPaymentReferenceForUpdate(ctx context.Context, reference string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) Update(ctx context.Context, order *models.Order) error {
	s.byID[order.ID] = order
	return nil
}

func (s *stubOrdersRepo) SetPaymentReference(ctx context.Context, orderID uuid.UUID, reference string) error {
	if s.setReferenceErr != nil {
		return s.setReferenceErr
	}
	order, ok := s.byID[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.setReferenceCalls++
	s.lastReference = reference
	order.PaymentReference = &reference
	order.PaymentStatus = enums.PaymentStatusPending
	return nil
}

type stubAuditRepo struct {
	entries []*models.AuditEntry
}

func (s *stubAuditRepo) WithTx(tx *gorm.DB) audit.Repository {
	return s
}

func (s *stubAuditRepo) Create(ctx context.Context, entry *models.AuditEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAuditRepo) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEntry, error) {
	return nil, nil
}

type fakeGateway struct {
	calls     []mpesa.StkPushInput
	reference string
	err       error
}

func (f *fakeGateway) RequestPayment(ctx context.Context, input mpesa.StkPushInput) (string, error) {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return "", f.err
	}
	return f.reference, nil
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func pendingOrder(userID uuid.UUID, totalCents int) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "DP-20260829-AB12CD",
		UserID:        userID,
		Phone:         "0712345678",
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		SubtotalCents: totalCents,
		TotalCents:    totalCents,
	}
}

func newTestService(t *testing.T, repo orders.Repository, auditRepo audit.Repository, gateway Gateway) *Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Orders:    repo,
		Audit:     auditRepo,
		Gateway:   gateway,
		Tx:        &stubTxRunner{},
		Tolerance: decimal.NewFromInt(5),
		Logger:    logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func TestInitiatePayment_success(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, 250000)
	repo := newStubOrdersRepo(order)
	auditRepo := &stubAuditRepo{}
	gateway := &fakeGateway{reference: "ws_CO_29082026_001"}
	svc := newTestService(t, repo, auditRepo, gateway)

	result, err := svc.InitiatePayment(context.Background(), InitiateInput{
		OrderID: order.ID,
		UserID:  userID,
		Amount:  decimal.NewFromInt(2500),
		Phone:   "+254 712 345 678",
	})
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_29082026_001", result.PaymentReference)
	assert.Equal(t, "pending", result.PaymentStatus)
	assert.False(t, result.AlreadyPaid)

	require.Len(t, gateway.calls, 1)
	assert.Equal(t, 250000, gateway.calls[0].AmountCents)
	assert.Equal(t, "254712345678", gateway.calls[0].Phone)
	assert.Equal(t, order.OrderNumber, gateway.calls[0].AccountReference)

	assert.Equal(t, 1, repo.setReferenceCalls)
	assert.Equal(t, "ws_CO_29082026_001", repo.lastReference)

	require.Len(t, auditRepo.entries, 1)
	assert.Equal(t, enums.AuditActionPaymentInitiated, auditRepo.entries[0].Action)
}

func TestInitiatePayment_amountWithinTolerance(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, 250000)
	svc := newTestService(t, newStubOrdersRepo(order), &stubAuditRepo{}, &fakeGateway{reference: "ws_CO_1"})

	// 2496 vs server 2500 with tolerance 5 passes.
	_, err := svc.InitiatePayment(context.Background(), InitiateInput{
		OrderID: order.ID,
		UserID:  userID,
		Amount:  decimal.NewFromInt(2496),
		Phone:   "0712345678",
	})
	assert.NoError(t, err)
}

func TestInitiatePayment_amountMismatch(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, 250000)
	gateway := &fakeGateway{reference: "ws_CO_1"}
	svc := newTestService(t, newStubOrdersRepo(order), &stubAuditRepo{}, gateway)

	_, err := svc.InitiatePayment(context.Background(), InitiateInput{
		OrderID: order.ID,
		UserID:  userID,
		Amount:  decimal.NewFromInt(2000),
		Phone:   "0712345678",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, gateway.calls)
}

func TestInitiatePayment_alreadyPaidShortCircuits(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, 250000)
	order.PaymentStatus = enums.PaymentStatusCompleted
	gateway := &fakeGateway{reference: "ws_CO_1"}
	svc := newTestService(t, newStubOrdersRepo(order), &stubAuditRepo{}, gateway)

	result, err := svc.InitiatePayment(context.Background(), InitiateInput{
		OrderID: order.ID,
		UserID:  userID,
		Amount:  decimal.NewFromInt(2500),
		Phone:   "0712345678",
	})
	require.NoError(t, err)
	assert.True(t, result.AlreadyPaid)
	assert.Equal(t, "completed", result.PaymentStatus)
	assert.Empty(t, gateway.calls)
}

func TestInitiatePayment_ownership(t *testing.T) {
	order := pendingOrder(uuid.New(), 250000)
	svc := newTestService(t, newStubOrdersRepo(order), &stubAuditRepo{}, &fakeGateway{})

	_, err := svc.InitiatePayment(context.Background(), InitiateInput{
		OrderID: order.ID,
		UserID:  uuid.New(),
		Amount:  decimal.NewFromInt(2500),
		Phone:   "0712345678",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestInitiatePayment_invalidPhoneBeforeGateway(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, 250000)
	gateway := &fakeGateway{}
	svc := newTestService(t, newStubOrdersRepo(order), &stubAuditRepo{}, gateway)

	_, err := svc.InitiatePayment(context.Background(), InitiateInput{
		OrderID: order.ID,
		UserID:  userID,
		Amount:  decimal.NewFromInt(2500),
		Phone:   "12345",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, gateway.calls)
}

func TestInitiatePayment_gatewayRejected(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, 250000)
	repo := newStubOrdersRepo(order)
	gateway := &fakeGateway{err: &mpesa.RejectedError{Code: "1032", Message: "Request cancelled by user"}}
	svc := newTestService(t, repo, &stubAuditRepo{}, gateway)

	_, err := svc.InitiatePayment(context.Background(), InitiateInput{
		OrderID: order.ID,
		UserID:  userID,
		Amount:  decimal.NewFromInt(2500),
		Phone:   "0712345678",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentRejected))
	// No state change on rejection.
	assert.Equal(t, 0, repo.setReferenceCalls)
	stored, findErr := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Nil(t, stored.PaymentReference)
}

func TestInitiatePayment_gatewayUnavailable(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, 250000)
	gateway := &fakeGateway{err: &mpesa.UnavailableError{Status: 502}}
	svc := newTestService(t, newStubOrdersRepo(order), &stubAuditRepo{}, gateway)

	_, err := svc.InitiatePayment(context.Background(), InitiateInput{
		OrderID: order.ID,
		UserID:  userID,
		Amount:  decimal.NewFromInt(2500),
		Phone:   "0712345678",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestRetryPayment_replacesReferenceAndAudits(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, 250000)
	previous := "ws_CO_OLD"
	order.PaymentReference = &previous
	order.PaymentStatus = enums.PaymentStatusFailed
	repo := newStubOrdersRepo(order)
	auditRepo := &stubAuditRepo{}
	gateway := &fakeGateway{reference: "ws_CO_NEW"}
	svc := newTestService(t, repo, auditRepo, gateway)

	result, err := svc.RetryPayment(context.Background(), RetryInput{
		OrderID: order.ID,
		UserID:  userID,
	})
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_NEW", result.PaymentReference)
	assert.Equal(t, "pending", result.PaymentStatus)

	// Uses the order's stored phone when none is supplied.
	require.Len(t, gateway.calls, 1)
	assert.Equal(t, "254712345678", gateway.calls[0].Phone)

	stored, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_NEW", *stored.PaymentReference)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)

	require.Len(t, auditRepo.entries, 1)
	assert.Equal(t, enums.AuditActionPaymentRetried, auditRepo.entries[0].Action)
}

func TestRetryPayment_overridePhone(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, 250000)
	gateway := &fakeGateway{reference: "ws_CO_1"}
	svc := newTestService(t, newStubOrdersRepo(order), &stubAuditRepo{}, gateway)

	_, err := svc.RetryPayment(context.Background(), RetryInput{
		OrderID: order.ID,
		UserID:  userID,
		Phone:   "0198765432",
	})
	require.NoError(t, err)
	require.Len(t, gateway.calls, 1)
	assert.Equal(t, "254198765432", gateway.calls[0].Phone)
}

func TestRetryPayment_refusesPaidOrder(t *testing.T) {
	userID := uuid.New()
	order := pendingOrder(userID, 250000)
	order.PaymentStatus = enums.PaymentStatusCompleted
	gateway := &fakeGateway{}
	svc := newTestService(t, newStubOrdersRepo(order), &stubAuditRepo{}, gateway)

	_, err := svc.RetryPayment(context.Background(), RetryInput{
		OrderID: order.ID,
		UserID:  userID,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, gateway.calls)
}
