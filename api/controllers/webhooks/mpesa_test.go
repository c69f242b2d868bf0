package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafulah/dukapesa-backend/internal/reconcile"
	"github.com/wafulah/dukapesa-backend/pkg/enums"
	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
	"github.com/wafulah/dukapesa-backend/pkg/mpesa"
)

type stubReconcileService struct {
	outcome  *reconcile.Outcome
	err      error
	received *mpesa.StkCallback
}

func (s *stubReconcileService) HandleCallback(ctx context.Context, callback *mpesa.StkCallback) (*reconcile.Outcome, error) {
	s.received = callback
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

const successBody = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 2500.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20260829101530},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`

func postCallback(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) gatewayAck {
	t.Helper()

	var ack gatewayAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	return ack
}

func TestMpesaCallback_settledCallbackIsAcknowledged(t *testing.T) {
	svc := &stubReconcileService{outcome: &reconcile.Outcome{
		Result:        reconcile.ResultCompleted,
		OrderID:       uuid.New(),
		OrderNumber:   "DP-20260829-AB12CD",
		PaymentStatus: enums.PaymentStatusCompleted,
	}}
	rec := postCallback(t, MpesaCallback(svc, nil), successBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeAck(t, rec).ResultCode)

	require.NotNil(t, svc.received)
	assert.Equal(t, "ws_CO_191220191020363925", svc.received.CheckoutRequestID)
	assert.True(t, svc.received.Succeeded())
	assert.Equal(t, "NLJ7RT61SV", svc.received.ReceiptNumber())
}

func TestMpesaCallback_malformedBody(t *testing.T) {
	svc := &stubReconcileService{}
	rec := postCallback(t, MpesaCallback(svc, nil), `{"Body": {}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, decodeAck(t, rec).ResultCode)
	assert.Nil(t, svc.received)
}

func TestMpesaCallback_invalidJSON(t *testing.T) {
	rec := postCallback(t, MpesaCallback(&stubReconcileService{}, nil), `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMpesaCallback_unmatchedReferenceReturns404(t *testing.T) {
	svc := &stubReconcileService{err: pkgerrors.New(pkgerrors.CodeNotFound, "no order matches callback reference")}
	rec := postCallback(t, MpesaCallback(svc, nil), successBody)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, decodeAck(t, rec).ResultCode)
}

func TestMpesaCallback_settlementFailureTriggersRedelivery(t *testing.T) {
	svc := &stubReconcileService{err: pkgerrors.New(pkgerrors.CodeInternal, "db down")}
	rec := postCallback(t, MpesaCallback(svc, nil), successBody)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, decodeAck(t, rec).ResultCode)
}
