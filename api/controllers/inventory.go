package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/wafulah/dukapesa-backend/api/responses"
	"github.com/wafulah/dukapesa-backend/api/validators"
	"github.com/wafulah/dukapesa-backend/internal/inventory"
	"github.com/wafulah/dukapesa-backend/pkg/db/models"
	"github.com/wafulah/dukapesa-backend/pkg/enums"
	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
)

type inventoryService interface {
	Adjust(ctx context.Context, input inventory.AdjustInput) (*models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]models.InventoryMovement, error)
}

type adjustStockRequest struct {
	Delta     int    `json:"delta" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
	Reference string `json:"reference" validate:"required"`
}

// AdminAdjustStock applies a manual stock movement to the product in the
// path.
func AdminAdjustStock(svc inventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		actorID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := pathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adjustStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason, err := enums.ParseMovementReason(req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason"))
			return
		}

		product, err := svc.Adjust(r.Context(), inventory.AdjustInput{
			ProductID: productID,
			Delta:     req.Delta,
			Reason:    reason,
			Reference: req.Reference,
			ActorID:   actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// AdminProductMovements returns a product and its recent ledger entries.
func AdminProductMovements(svc inventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		productID, err := pathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movements, err := svc.ListMovements(r.Context(), productID, 50)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"product":   product,
			"movements": movements,
		})
	}
}
