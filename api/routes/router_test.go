package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wafulah/dukapesa-backend/internal/audit"
	"github.com/wafulah/dukapesa-backend/internal/inventory"
	"github.com/wafulah/dukapesa-backend/internal/orders"
	"github.com/wafulah/dukapesa-backend/internal/payments"
	"github.com/wafulah/dukapesa-backend/internal/reconcile"
	pkgAuth "github.com/wafulah/dukapesa-backend/pkg/auth"
	"github.com/wafulah/dukapesa-backend/pkg/config"
	"github.com/wafulah/dukapesa-backend/pkg/db/models"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
	"github.com/wafulah/dukapesa-backend/pkg/mpesa"
)

type stubOrdersRepo struct{}

func (stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return stubOrdersRepo{} }
func (stubOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	return nil
}
func (stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}
func (stubOrdersRepo) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}
func (stubOrdersRepo) FindByPaymentReferenceForUpdate(ctx context.Context, reference string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}
func (stubOrdersRepo) Update(ctx context.Context, order *models.Order) error {
	return nil
}
func (stubOrdersRepo) SetPaymentReference(ctx context.Context, orderID uuid.UUID, reference string) error {
	return nil
}

type stubInventoryRepo struct{}

func (stubInventoryRepo) WithTx(tx *gorm.DB) inventory.Repository { return stubInventoryRepo{} }
func (stubInventoryRepo) CreateProduct(ctx context.Context, product *models.Product) error {
	return nil
}
func (stubInventoryRepo) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return nil, gorm.ErrRecordNotFound
}
func (stubInventoryRepo) GetProductForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return nil, gorm.ErrRecordNotFound
}
func (stubInventoryRepo) ListProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	return nil, nil
}
func (stubInventoryRepo) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error {
	return nil
}
func (stubInventoryRepo) CreateMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return nil
}
func (stubInventoryRepo) ListMovementsByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]models.InventoryMovement, error) {
	return nil, nil
}
func (stubInventoryRepo) SumMovements(ctx context.Context, productID uuid.UUID) (int, error) {
	return 0, nil
}

type stubAuditRepo struct{}

func (stubAuditRepo) WithTx(tx *gorm.DB) audit.Repository { return stubAuditRepo{} }
func (stubAuditRepo) Create(ctx context.Context, entry *models.AuditEntry) error {
	return nil
}
func (stubAuditRepo) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditEntry, error) {
	return nil, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubGateway struct{}

func (stubGateway) RequestPayment(ctx context.Context, input mpesa.StkPushInput) (string, error) {
	return "ws_CO_TEST", nil
}

func newTestRouter(t *testing.T) (http.Handler, config.JWTConfig) {
	t.Helper()

	logg := logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
	jwtCfg := config.JWTConfig{Secret: "router-test-secret", Issuer: "dukapesa-test", ExpirationMinutes: 15}
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT = jwtCfg

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:    stubOrdersRepo{},
		Catalog: stubInventoryRepo{},
		Audit:   stubAuditRepo{},
		Tx:      stubTxRunner{},
		Logger:  logg,
	})
	require.NoError(t, err)

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Orders:    stubOrdersRepo{},
		Audit:     stubAuditRepo{},
		Gateway:   stubGateway{},
		Tx:        stubTxRunner{},
		Tolerance: decimal.NewFromInt(5),
		Logger:    logg,
	})
	require.NoError(t, err)

	reconcileSvc, err := reconcile.NewService(reconcile.ServiceParams{
		Orders:    stubOrdersRepo{},
		Inventory: stubInventoryRepo{},
		Audit:     stubAuditRepo{},
		Tx:        stubTxRunner{},
		Logger:    logg,
	})
	require.NoError(t, err)

	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:   stubInventoryRepo{},
		Audit:  stubAuditRepo{},
		Tx:     stubTxRunner{},
		Logger: logg,
	})
	require.NoError(t, err)

	router := NewRouter(Deps{
		Config:     cfg,
		Logger:     logg,
		Registry:   prometheus.NewRegistry(),
		Orders:     ordersSvc,
		Payments:   paymentsSvc,
		Reconcile:  reconcileSvc,
		Inventory:  inventorySvc,
		AuditTrail: stubAuditRepo{},
	})
	return router, jwtCfg
}

func bearer(t *testing.T, cfg config.JWTConfig, isAdmin bool) string {
	t.Helper()

	token, err := pkgAuth.MintAccessToken(cfg, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:  uuid.New(),
		IsAdmin: isAdmin,
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouter_healthLive(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-DukaPesa-Env"))
}

func TestRouter_metricsExposed(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ordersRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_unknownOrderReturns404(t *testing.T) {
	router, jwtCfg := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", bearer(t, jwtCfg, false))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_adminRoutesRejectNonAdmins(t *testing.T) {
	router, jwtCfg := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/orders/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"shipped"}`))
	req.Header.Set("Authorization", bearer(t, jwtCfg, false))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_webhookIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa", strings.NewReader(`{"Body":{}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Malformed body, but the route itself needs no credentials.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
