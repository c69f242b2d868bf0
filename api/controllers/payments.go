package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wafulah/dukapesa-backend/api/responses"
	"github.com/wafulah/dukapesa-backend/api/validators"
	"github.com/wafulah/dukapesa-backend/internal/payments"
	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
)

type paymentsService interface {
	InitiatePayment(ctx context.Context, input payments.InitiateInput) (*payments.Result, error)
	RetryPayment(ctx context.Context, input payments.RetryInput) (*payments.Result, error)
}

type initiatePaymentRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
	Amount  string `json:"amount" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
}

// InitiatePayment pushes a payment prompt for an order. Amount is the total
// the client showed the customer, in currency units.
func InitiatePayment(svc paymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseUUIDField(req.OrderID, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		result, err := svc.InitiatePayment(r.Context(), payments.InitiateInput{
			OrderID: orderID,
			UserID:  userID,
			Amount:  amount,
			Phone:   req.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

type retryPaymentRequest struct {
	Phone string `json:"phone"`
}

// RetryPayment issues a fresh payment prompt for the order in the path.
func RetryPayment(svc paymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req retryPaymentRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.RetryPayment(r.Context(), payments.RetryInput{
			OrderID: orderID,
			UserID:  userID,
			Phone:   req.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

func parseUUIDField(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
