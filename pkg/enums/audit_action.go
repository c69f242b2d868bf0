package enums

import "fmt"

// AuditAction names a security or financially relevant action in the audit log.
type AuditAction string

const (
	AuditActionPaymentInitiated      AuditAction = "payment_initiated"
	AuditActionPaymentRetried        AuditAction = "payment_retried"
	AuditActionPaymentCompleted      AuditAction = "payment_completed"
	AuditActionPaymentFailed         AuditAction = "payment_failed"
	AuditActionOrderStatusEdited     AuditAction = "order_status_edited"
	AuditActionStockAdjusted         AuditAction = "stock_adjusted"
	AuditActionStockConflictDetected AuditAction = "reconciliation_stock_conflict"
)

var validAuditActions = []AuditAction{
	AuditActionPaymentInitiated,
	AuditActionPaymentRetried,
	AuditActionPaymentCompleted,
	AuditActionPaymentFailed,
	AuditActionOrderStatusEdited,
	AuditActionStockAdjusted,
	AuditActionStockConflictDetected,
}

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuditAction.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditAction converts raw input into an AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}
