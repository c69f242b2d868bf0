package enums

import "fmt"

// MovementReason categorizes an inventory movement in the stock ledger.
type MovementReason string

const (
	MovementReasonSale             MovementReason = "sale"
	MovementReasonManualAdjustment MovementReason = "manual_adjustment"
	MovementReasonRestock          MovementReason = "restock"
	MovementReasonCustomerReturn   MovementReason = "customer_return"
)

var validMovementReasons = []MovementReason{
	MovementReasonSale,
	MovementReasonManualAdjustment,
	MovementReasonRestock,
	MovementReasonCustomerReturn,
}

// String implements fmt.Stringer.
func (m MovementReason) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementReason.
func (m MovementReason) IsValid() bool {
	for _, candidate := range validMovementReasons {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementReason converts raw input into a MovementReason.
func ParseMovementReason(value string) (MovementReason, error) {
	for _, candidate := range validMovementReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement reason %q", value)
}
