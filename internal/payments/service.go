package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wafulah/dukapesa-backend/internal/audit"
	"github.com/wafulah/dukapesa-backend/internal/orders"
	"github.com/wafulah/dukapesa-backend/pkg/db/models"
	"github.com/wafulah/dukapesa-backend/pkg/enums"
	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
	"github.com/wafulah/dukapesa-backend/pkg/metrics"
	"github.com/wafulah/dukapesa-backend/pkg/mpesa"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gateway is the slice of the payment gateway this service needs. It returns
// the gateway correlation id for the accepted push.
type Gateway interface {
	RequestPayment(ctx context.Context, input mpesa.StkPushInput) (string, error)
}

// ServiceParams groups dependencies for the payments service.
type ServiceParams struct {
	Orders    orders.Repository
	Audit     audit.Repository
	Gateway   Gateway
	Tx        txRunner
	Tolerance decimal.Decimal
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
}

// Service initiates and retries gateway payments for orders. It never marks
// a payment completed; only callback reconciliation does that.
type Service struct {
	orders    orders.Repository
	audit     audit.Repository
	gateway   Gateway
	tx        txRunner
	tolerance decimal.Decimal
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

// NewService builds a payments service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, errors.New("orders repository is required")
	}
	if params.Audit == nil {
		return nil, errors.New("audit repository is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Tolerance.IsNegative() {
		return nil, errors.New("tolerance must not be negative")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		orders:    params.Orders,
		audit:     params.Audit,
		gateway:   params.Gateway,
		tx:        params.Tx,
		tolerance: params.Tolerance,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// InitiateInput carries a payment initiation request. Amount is the
// client-displayed total in currency units, used only as a consistency check
// against the stored order total.
type InitiateInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Amount  decimal.Decimal
	Phone   string
}

// RetryInput carries a payment retry request. Phone is optional; when empty
// the order's stored phone is used.
type RetryInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Phone   string
}

// Result reports the outcome of an initiation or retry.
type Result struct {
	OrderID          uuid.UUID `json:"order_id"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	PaymentStatus    string    `json:"payment_status"`
	AlreadyPaid      bool      `json:"already_paid,omitempty"`
}

// InitiatePayment pushes a payment prompt to the customer's phone for an
// order. Initiating against an already-paid order is a no-op success.
func (s *Service) InitiatePayment(ctx context.Context, input InitiateInput) (*Result, error) {
	order, err := s.loadOwnedOrder(ctx, input.OrderID, input.UserID)
	if err != nil {
		s.metrics.IncInitiation("error")
		return nil, err
	}
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		s.metrics.IncInitiation("already_paid")
		return &Result{
			OrderID:       order.ID,
			PaymentStatus: order.PaymentStatus.String(),
			AlreadyPaid:   true,
		}, nil
	}

	serverAmount := decimal.NewFromInt(int64(order.TotalCents)).Div(decimal.NewFromInt(100))
	if input.Amount.Sub(serverAmount).Abs().GreaterThan(s.tolerance) {
		s.metrics.IncInitiation("amount_mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match order total").
			WithDetails(map[string]any{
				"order_total": serverAmount.String(),
				"submitted":   input.Amount.String(),
			})
	}

	return s.push(ctx, order, input.Phone, enums.AuditActionPaymentInitiated)
}

// RetryPayment issues a fresh push for an order whose earlier attempt failed
// or went unanswered. The new correlation id supersedes the old one.
func (s *Service) RetryPayment(ctx context.Context, input RetryInput) (*Result, error) {
	order, err := s.loadOwnedOrder(ctx, input.OrderID, input.UserID)
	if err != nil {
		s.metrics.IncInitiation("error")
		return nil, err
	}
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		s.metrics.IncInitiation("already_paid")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid")
	}

	phone := input.Phone
	if phone == "" {
		phone = order.Phone
	}
	return s.push(ctx, order, phone, enums.AuditActionPaymentRetried)
}

func (s *Service) push(ctx context.Context, order *models.Order, rawPhone string, action enums.AuditAction) (*Result, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		s.metrics.IncInitiation("invalid_phone")
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	reference, err := s.gateway.RequestPayment(ctx, mpesa.StkPushInput{
		AmountCents:      order.TotalCents,
		Phone:            phone,
		AccountReference: order.OrderNumber,
		Description:      fmt.Sprintf("Payment for order %s", order.OrderNumber),
	})
	if err != nil {
		return nil, s.mapGatewayError(ctx, err)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).SetPaymentReference(ctx, order.ID, reference); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment reference")
		}
		userID := order.UserID
		entry := audit.NewEntry(ctx, action, &userID,
			audit.EntityTypeOrder, order.ID.String(), map[string]any{
				"payment_reference": reference,
				"phone":             phone,
				"amount_cents":      order.TotalCents,
			})
		if err := s.audit.WithTx(tx).Create(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "audit payment attempt")
		}
		return nil
	})
	if err != nil {
		// The push went out but we lost the correlation id; the callback for
		// it will land as an orphan.
		s.metrics.IncInitiation("error")
		s.logg.Error(ctx, "payment pushed but reference not persisted", err)
		return nil, err
	}

	s.metrics.IncInitiation("accepted")
	s.logg.Info(s.logg.WithField(ctx, "payment_reference", reference), "payment push accepted")
	return &Result{
		OrderID:          order.ID,
		PaymentReference: reference,
		PaymentStatus:    enums.PaymentStatusPending.String(),
	}, nil
}

func (s *Service) loadOwnedOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// mapGatewayError translates transport-level gateway failures into the API
// error taxonomy. The order is left untouched in every case.
func (s *Service) mapGatewayError(ctx context.Context, err error) error {
	var rejected *mpesa.RejectedError
	if errors.As(err, &rejected) {
		s.metrics.IncInitiation("rejected")
		s.logg.Warn(ctx, fmt.Sprintf("gateway rejected payment push: %s", rejected.Message))
		return pkgerrors.Wrap(pkgerrors.CodePaymentRejected, err, "payment gateway rejected the request").
			WithDetails(map[string]any{"gateway_code": rejected.Code})
	}

	var authErr *mpesa.AuthError
	var unavailable *mpesa.UnavailableError
	if errors.As(err, &authErr) || errors.As(err, &unavailable) {
		s.metrics.IncInitiation("gateway_unavailable")
		s.logg.Error(ctx, "payment gateway unavailable", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}

	s.metrics.IncInitiation("error")
	s.logg.Error(ctx, "payment push failed", err)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway request failed")
}
