package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wafulah/dukapesa-backend/internal/audit"
	"github.com/wafulah/dukapesa-backend/pkg/db"
	"github.com/wafulah/dukapesa-backend/pkg/db/models"
	"github.com/wafulah/dukapesa-backend/pkg/enums"
	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ProductCatalog is the slice of the inventory layer checkout needs: current
// prices and names for the requested products.
type ProductCatalog interface {
	ListProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

// ServiceParams groups dependencies for the orders service.
type ServiceParams struct {
	Repo    Repository
	Catalog ProductCatalog
	Audit   audit.Repository
	Tx      txRunner
	Logger  *logger.Logger
}

// Service handles checkout and order lifecycle edits.
type Service struct {
	repo    Repository
	catalog ProductCatalog
	audit   audit.Repository
	tx      txRunner
	logg    *logger.Logger
}

// NewService builds an orders service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Catalog == nil {
		return nil, errors.New("product catalog is required")
	}
	if params.Audit == nil {
		return nil, errors.New("audit repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		repo:    params.Repo,
		catalog: params.Catalog,
		audit:   params.Audit,
		tx:      params.Tx,
		logg:    params.Logger,
	}, nil
}

// CreateOrder places an order. Prices are snapshotted from the catalog at
// this moment; stock is not reserved until payment is confirmed.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	ids := make([]uuid.UUID, 0, len(input.Items))
	seen := make(map[uuid.UUID]bool, len(input.Items))
	for _, item := range input.Items {
		if seen[item.ProductID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate product in order items").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		seen[item.ProductID] = true
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.ListProductsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	var (
		lineItems []models.OrderLineItem
		subtotal  int
	)
	for _, item := range input.Items {
		product, ok := byID[item.ProductID]
		if !ok || !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product not available").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		lineTotal := product.PriceCents * item.Qty
		subtotal += lineTotal
		lineItems = append(lineItems, models.OrderLineItem{
			ProductID:      product.ID,
			Name:           product.Name,
			Qty:            item.Qty,
			UnitPriceCents: product.PriceCents,
			TotalCents:     lineTotal,
		})
	}

	total := subtotal - input.DiscountCents + input.ShippingCents + input.TaxCents
	if total <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive").
			WithDetails(map[string]any{"total_cents": total})
	}

	order := &models.Order{
		UserID:        input.UserID,
		Phone:         strings.TrimSpace(input.Phone),
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		SubtotalCents: subtotal,
		DiscountCents: input.DiscountCents,
		ShippingCents: input.ShippingCents,
		TaxCents:      input.TaxCents,
		TotalCents:    total,
		Notes:         input.Notes,
		Items:         lineItems,
	}

	// Order numbers are random; retry on the rare collision.
	for attempt := 0; attempt < 3; attempt++ {
		order.OrderNumber = newOrderNumber()
		err = s.repo.Create(ctx, order)
		if err == nil {
			break
		}
		if !db.IsUniqueViolation(err, "order_number") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created")
	return order, nil
}

// GetOrder returns an order, enforcing ownership for non-admin callers.
func (s *Service) GetOrder(ctx context.Context, orderID, callerID uuid.UUID, isAdmin bool) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !isAdmin && order.UserID != callerID {
		// Hide existence from other users.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// UpdateStatus applies an admin fulfillment status edit and audits it.
// Payment status is not editable here; only reconciliation moves it.
func (s *Service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", input.Status))
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}

		previous := order.Status
		if previous == input.Status {
			return nil
		}
		order.Status = input.Status
		if err := repo.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}

		actorID := input.ActorID
		entry := audit.NewEntry(ctx, enums.AuditActionOrderStatusEdited, &actorID,
			audit.EntityTypeOrder, order.ID.String(), map[string]any{
				"from": previous,
				"to":   input.Status,
			})
		if err := s.audit.WithTx(tx).Create(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "audit status edit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// newOrderNumber returns a short human-readable order number like
// DP-20260829-4F2A1B.
func newOrderNumber() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unreachable; fall back to time.
		return fmt.Sprintf("DP-%s", time.Now().UTC().Format("20060102150405.000000"))
	}
	return fmt.Sprintf("DP-%s-%s",
		time.Now().UTC().Format("20060102"),
		strings.ToUpper(hex.EncodeToString(buf)))
}
