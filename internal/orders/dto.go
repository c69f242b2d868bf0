package orders

import (
	"github.com/google/uuid"

	"github.com/wafulah/dukapesa-backend/pkg/db/models"
	"github.com/wafulah/dukapesa-backend/pkg/enums"
)

// CreateOrderItem is one requested line in a checkout.
type CreateOrderItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,gt=0"`
}

// CreateOrderInput carries a checkout request. Monetary adjustments are in
// cents; the total is always recomputed server-side.
type CreateOrderInput struct {
	UserID        uuid.UUID
	Phone         string            `json:"phone" validate:"required"`
	Items         []CreateOrderItem `json:"items" validate:"required,min=1,dive"`
	DiscountCents int               `json:"discount_cents" validate:"gte=0"`
	ShippingCents int               `json:"shipping_cents" validate:"gte=0"`
	TaxCents      int               `json:"tax_cents" validate:"gte=0"`
	Notes         *string           `json:"notes"`
}

// UpdateStatusInput carries an admin fulfillment status edit.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	ActorID uuid.UUID
}

// LineItemView is the API shape of one order line.
type LineItemView struct {
	ID             uuid.UUID `json:"id"`
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	Qty            int       `json:"qty"`
	UnitPriceCents int       `json:"unit_price_cents"`
	TotalCents     int       `json:"total_cents"`
}

// OrderView is the API shape of an order.
type OrderView struct {
	ID               uuid.UUID      `json:"id"`
	OrderNumber      string         `json:"order_number"`
	Phone            string         `json:"phone"`
	Status           string         `json:"status"`
	PaymentStatus    string         `json:"payment_status"`
	PaymentReceiptID *string        `json:"payment_receipt_id,omitempty"`
	SubtotalCents    int            `json:"subtotal_cents"`
	DiscountCents    int            `json:"discount_cents"`
	ShippingCents    int            `json:"shipping_cents"`
	TaxCents         int            `json:"tax_cents"`
	TotalCents       int            `json:"total_cents"`
	Notes            *string        `json:"notes,omitempty"`
	Items            []LineItemView `json:"items"`
	CreatedAt        string         `json:"created_at"`
}

// NewOrderView maps a stored order to its API shape. The payment reference is
// deliberately omitted; it is gateway-facing state.
func NewOrderView(order *models.Order) OrderView {
	items := make([]LineItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItemView{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
		})
	}
	return OrderView{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		Phone:            order.Phone,
		Status:           order.Status.String(),
		PaymentStatus:    order.PaymentStatus.String(),
		PaymentReceiptID: order.PaymentReceiptID,
		SubtotalCents:    order.SubtotalCents,
		DiscountCents:    order.DiscountCents,
		ShippingCents:    order.ShippingCents,
		TaxCents:         order.TaxCents,
		TotalCents:       order.TotalCents,
		Notes:            order.Notes,
		Items:            items,
		CreatedAt:        order.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
