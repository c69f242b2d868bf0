package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wafulah/dukapesa-backend/internal/reconcile"
	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
	"github.com/wafulah/dukapesa-backend/pkg/mpesa"
)

type reconcileService interface {
	HandleCallback(ctx context.Context, callback *mpesa.StkCallback) (*reconcile.Outcome, error)
}

// gatewayAck is the body the gateway expects back. Anything else makes it
// re-deliver the callback.
type gatewayAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// MpesaCallback receives STK push resolutions from the gateway. Settled and
// duplicate callbacks are acknowledged with 200; malformed bodies get a 400
// and unmatched correlation ids a 404 so misconfigured senders surface
// quickly. Transient settlement failures return 5xx to trigger redelivery.
func MpesaCallback(svc reconcileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			writeAck(w, http.StatusInternalServerError, gatewayAck{ResultCode: 1, ResultDesc: "Service unavailable"})
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			writeAck(w, http.StatusBadRequest, gatewayAck{ResultCode: 1, ResultDesc: "Unreadable body"})
			return
		}

		callback, err := mpesa.ParseCallback(payload)
		if err != nil {
			if logg != nil {
				logg.Warn(ctx, fmt.Sprintf("malformed gateway callback: %v", err))
			}
			writeAck(w, http.StatusBadRequest, gatewayAck{ResultCode: 1, ResultDesc: "Malformed callback"})
			return
		}

		outcome, err := svc.HandleCallback(ctx, callback)
		if err != nil {
			// Unmatched correlation ids are already logged by the reconciler.
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				writeAck(w, http.StatusNotFound, gatewayAck{ResultCode: 1, ResultDesc: "Unknown reference"})
				return
			}
			if logg != nil {
				logg.Error(ctx, "callback settlement failed", err)
			}
			// Non-2xx so the gateway retries transient failures.
			writeAck(w, http.StatusInternalServerError, gatewayAck{ResultCode: 1, ResultDesc: "Settlement failed"})
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("callback %s settled as %s for order %s",
				callback.CheckoutRequestID, outcome.Result, outcome.OrderNumber))
		}
		writeAck(w, http.StatusOK, gatewayAck{ResultCode: 0, ResultDesc: "Accepted"})
	}
}

func writeAck(w http.ResponseWriter, status int, ack gatewayAck) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ack)
}
