package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/wafulah/dukapesa-backend/pkg/enums"
)

// InventoryMovement is one append-only stock ledger entry. Rows are never
// updated or deleted; the product stock counter is the running sum of these
// deltas.
type InventoryMovement struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID            `gorm:"column:product_id;type:uuid;not null;index"`
	Delta     int                  `gorm:"column:delta;not null"`
	Reason    enums.MovementReason `gorm:"column:reason;not null"`
	Reference string               `gorm:"column:reference;not null"`
	CreatedBy *uuid.UUID           `gorm:"column:created_by;type:uuid"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}
