package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wafulah/dukapesa-backend/internal/audit"
	"github.com/wafulah/dukapesa-backend/pkg/db/models"
	"github.com/wafulah/dukapesa-backend/pkg/enums"
	pkgerrors "github.com/wafulah/dukapesa-backend/pkg/errors"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the inventory service.
type ServiceParams struct {
	Repo   Repository
	Audit  audit.Repository
	Tx     txRunner
	Logger *logger.Logger
}

// Service exposes manual stock operations for admin callers. Sale deductions
// never go through here; those happen inside payment reconciliation.
type Service struct {
	repo  Repository
	audit audit.Repository
	tx    txRunner
	logg  *logger.Logger
}

// NewService builds an inventory service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Audit == nil {
		return nil, errors.New("audit repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		repo:  params.Repo,
		audit: params.Audit,
		tx:    params.Tx,
		logg:  params.Logger,
	}, nil
}

// AdjustInput describes one manual stock adjustment.
type AdjustInput struct {
	ProductID uuid.UUID
	Delta     int
	Reason    enums.MovementReason
	Reference string
	ActorID   uuid.UUID
}

// Adjust applies a manual stock movement and audits it, all in one
// transaction.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (*models.Product, error) {
	if input.Reason == enums.MovementReasonSale {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale movements are recorded by payment reconciliation only")
	}

	var product *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		actorID := input.ActorID
		if err := ApplyMovement(ctx, repo, MovementInput{
			ProductID: input.ProductID,
			Delta:     input.Delta,
			Reason:    input.Reason,
			Reference: input.Reference,
			CreatedBy: &actorID,
		}); err != nil {
			return err
		}

		entry := audit.NewEntry(ctx, enums.AuditActionStockAdjusted, &actorID,
			audit.EntityTypeProduct, input.ProductID.String(), map[string]any{
				"delta":     input.Delta,
				"reason":    input.Reason,
				"reference": input.Reference,
			})
		if err := s.audit.WithTx(tx).Create(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "audit stock adjustment")
		}

		var err error
		product, err = repo.GetProduct(ctx, input.ProductID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id": input.ProductID.String(),
		"delta":      input.Delta,
		"reason":     input.Reason.String(),
	}), "stock adjusted")
	return product, nil
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return product, nil
}

// ListMovements returns the most recent ledger entries for a product.
func (s *Service) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]models.InventoryMovement, error) {
	movements, err := s.repo.ListMovementsByProduct(ctx, productID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list movements")
	}
	return movements, nil
}
