package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wafulah/dukapesa-backend/internal/audit"
	"github.com/wafulah/dukapesa-backend/internal/inventory"
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

// Result names the terminal outcome of processing one callback.
type Result string

const (
	ResultCompleted     Result = "completed"
	ResultFailed        Result = "failed"
	ResultDuplicate     Result = "duplicate"
	ResultStockConflict Result = "stock_conflict"
)

// Outcome reports what a callback did to its order.
type Outcome struct {
	Result        Result
	OrderID       uuid.UUID
	OrderNumber   string
	PaymentStatus enums.PaymentStatus
}

// ServiceParams groups dependencies for the reconciliation service.
type ServiceParams struct {
	Orders    orders.Repository
	Inventory inventory.Repository
	Audit     audit.Repository
	Tx        txRunner
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
}

// Service settles gateway callbacks against orders. Each callback is handled
// in one transaction: order payment state, stock movements and the audit
// entry commit together or not at all.
type Service struct {
	orders    orders.Repository
	inventory inventory.Repository
	audit     audit.Repository
	tx        txRunner
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

// NewService builds a reconciliation service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, errors.New("orders repository is required")
	}
	if params.Inventory == nil {
		return nil, errors.New("inventory repository is required")
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
		orders:    params.Orders,
		inventory: params.Inventory,
		audit:     params.Audit,
		tx:        params.Tx,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// HandleCallback settles one gateway callback. Replays of an already-settled
// callback are acknowledged without further effect. A callback whose
// correlation id matches no order returns CodeNotFound; the caller decides
// how to acknowledge it.
func (s *Service) HandleCallback(ctx context.Context, callback *mpesa.StkCallback) (*Outcome, error) {
	var outcome Outcome
	var conflict *stockConflict

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		order, err := ordersRepo.FindByPaymentReferenceForUpdate(ctx, callback.CheckoutRequestID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no order matches callback reference").
					WithDetails(map[string]any{"checkout_request_id": callback.CheckoutRequestID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order by payment reference")
		}

		txCtx := s.logg.WithOrderID(ctx, order.ID.String())

		// Replays and late duplicates: the first settlement won, keep it.
		if order.PaymentStatus == enums.PaymentStatusCompleted {
			outcome = Outcome{
				Result:        ResultDuplicate,
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				PaymentStatus: order.PaymentStatus,
			}
			return nil
		}

		if !callback.Succeeded() {
			return s.settleFailure(txCtx, tx, order, callback, &outcome)
		}
		return s.settleSuccess(txCtx, tx, order, callback, &outcome, &conflict)
	})
	if err != nil {
		if conflict != nil {
			// The transaction rolled back; record the conflict outside it so
			// the trail survives.
			s.recordStockConflict(ctx, conflict)
			s.metrics.IncCallback(string(ResultStockConflict))
		} else if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.metrics.IncCallback("orphaned")
			s.logg.Warn(ctx, fmt.Sprintf("orphan callback: no order for reference %s", callback.CheckoutRequestID))
		} else {
			s.metrics.IncCallback("error")
		}
		return nil, err
	}

	s.metrics.IncCallback(string(outcome.Result))
	return &outcome, nil
}

func (s *Service) settleFailure(ctx context.Context, tx *gorm.DB, order *models.Order, callback *mpesa.StkCallback, outcome *Outcome) error {
	order.PaymentStatus = enums.PaymentStatusFailed
	reason := fmt.Sprintf("payment failed: %s (code %d)", callback.ResultDesc, callback.ResultCode)
	order.Notes = &reason
	if err := s.orders.WithTx(tx).Update(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment failed")
	}

	entry := audit.NewEntry(ctx, enums.AuditActionPaymentFailed, nil,
		audit.EntityTypeOrder, order.ID.String(), map[string]any{
			"checkout_request_id": callback.CheckoutRequestID,
			"result_code":         callback.ResultCode,
			"result_desc":         callback.ResultDesc,
		})
	if err := s.audit.WithTx(tx).Create(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "audit payment failure")
	}

	s.logg.Info(ctx, fmt.Sprintf("payment failed for order %s: %s", order.OrderNumber, callback.ResultDesc))
	*outcome = Outcome{
		Result:        ResultFailed,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentStatus: enums.PaymentStatusFailed,
	}
	return nil
}

func (s *Service) settleSuccess(ctx context.Context, tx *gorm.DB, order *models.Order, callback *mpesa.StkCallback, outcome *Outcome, conflict **stockConflict) error {
	invRepo := s.inventory.WithTx(tx)

	// Check availability for the whole order before moving anything, so a
	// shortfall on the last line does not depend on rollback alone.
	for _, item := range order.Items {
		product, err := invRepo.GetProductForUpdate(ctx, item.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product for settlement")
		}
		if product.StockQty < item.Qty {
			*conflict = &stockConflict{
				order:     order,
				callback:  callback,
				productID: product.ID,
				requested: item.Qty,
				available: product.StockQty,
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock to settle paid order").
				WithDetails(map[string]any{
					"order_id":   order.ID,
					"product_id": product.ID,
					"requested":  item.Qty,
					"available":  product.StockQty,
				})
		}
	}

	for _, item := range order.Items {
		err := inventory.ApplyMovement(ctx, invRepo, inventory.MovementInput{
			ProductID: item.ProductID,
			Delta:     -item.Qty,
			Reason:    enums.MovementReasonSale,
			Reference: order.OrderNumber,
		})
		if err != nil {
			return err
		}
	}

	receipt := callback.ReceiptNumber()
	order.PaymentStatus = enums.PaymentStatusCompleted
	order.Status = enums.OrderStatusConfirmed
	if receipt != "" {
		order.PaymentReceiptID = &receipt
	}
	if err := s.orders.WithTx(tx).Update(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment completed")
	}

	entry := audit.NewEntry(ctx, enums.AuditActionPaymentCompleted, nil,
		audit.EntityTypeOrder, order.ID.String(), map[string]any{
			"checkout_request_id": callback.CheckoutRequestID,
			"receipt_number":      receipt,
			"amount_cents":        callback.AmountCents(),
			"payer_phone":         callback.PayerPhone(),
			"transaction_date":    callback.TransactionDate(),
		})
	if err := s.audit.WithTx(tx).Create(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "audit payment completion")
	}

	s.logg.Info(ctx, fmt.Sprintf("payment completed for order %s, receipt %s", order.OrderNumber, receipt))
	*outcome = Outcome{
		Result:        ResultCompleted,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentStatus: enums.PaymentStatusCompleted,
	}
	return nil
}

type stockConflict struct {
	order     *models.Order
	callback  *mpesa.StkCallback
	productID uuid.UUID
	requested int
	available int
}

// recordStockConflict writes the conflict trail after the settlement
// transaction has rolled back. Money was collected for stock we no longer
// have; this entry is what operators work from.
func (s *Service) recordStockConflict(ctx context.Context, c *stockConflict) {
	entry := audit.NewEntry(ctx, enums.AuditActionStockConflictDetected, nil,
		audit.EntityTypeOrder, c.order.ID.String(), map[string]any{
			"checkout_request_id": c.callback.CheckoutRequestID,
			"receipt_number":      c.callback.ReceiptNumber(),
			"product_id":          c.productID,
			"requested":           c.requested,
			"available":           c.available,
		})
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logg.Error(ctx, "failed to record stock conflict audit entry", err)
	}
	s.logg.Error(s.logg.WithOrderID(ctx, c.order.ID.String()),
		fmt.Sprintf("paid order %s cannot be fulfilled: product %s has %d, needs %d",
			c.order.OrderNumber, c.productID, c.available, c.requested), nil)
}
