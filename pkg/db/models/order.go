package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wafulah/dukapesa-backend/pkg/enums"
)

// Order is a placed customer order. PaymentReference holds the gateway
// correlation id for the current payment attempt; it is unique when present
// and replaced only by an explicit retry.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber      string              `gorm:"column:order_number;not null;uniqueIndex"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	Phone            string              `gorm:"column:phone;not null"`
	Status           enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	PaymentReference *string             `gorm:"column:payment_reference;uniqueIndex"`
	PaymentReceiptID *string             `gorm:"column:payment_receipt_id"`
	SubtotalCents    int                 `gorm:"column:subtotal_cents;not null"`
	DiscountCents    int                 `gorm:"column:discount_cents;not null;default:0"`
	ShippingCents    int                 `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents         int                 `gorm:"column:tax_cents;not null;default:0"`
	TotalCents       int                 `gorm:"column:total_cents;not null"`
	Notes            *string             `gorm:"column:notes"`
	Items            []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
