package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wafulah/dukapesa-backend/pkg/db/models"
	"github.com/wafulah/dukapesa-backend/pkg/enums"
	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
)

// MovementInput describes one stock change to record.
type MovementInput struct {
	ProductID uuid.UUID
	Delta     int
	Reason    enums.MovementReason
	Reference string
	CreatedBy *uuid.UUID
}

// ApplyMovement appends a ledger entry and adjusts the cached counter in a
// single step. Callers own the transaction; the repository passed in must
// already be bound to it. Negative resulting stock is rejected before any
// write happens.
func ApplyMovement(ctx context.Context, repo Repository, input MovementInput) error {
	if input.Delta == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "movement delta must be non-zero")
	}
	if !input.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown movement reason %q", input.Reason))
	}

	product, err := repo.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}

	if product.StockQty+input.Delta < 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock").
			WithDetails(map[string]any{
				"product_id": product.ID,
				"available":  product.StockQty,
				"requested":  -input.Delta,
			})
	}

	movement := &models.InventoryMovement{
		ProductID: input.ProductID,
		Delta:     input.Delta,
		Reason:    input.Reason,
		Reference: input.Reference,
		CreatedBy: input.CreatedBy,
	}
	if err := repo.CreateMovement(ctx, movement); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append movement")
	}
	if err := repo.AdjustStock(ctx, input.ProductID, input.Delta); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjust stock counter")
	}
	return nil
}
