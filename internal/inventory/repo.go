package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wafulah/dukapesa-backend/pkg/db/models"
)

// Repository manages products and their append-only stock ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error
	CreateMovement(ctx context.Context, movement *models.InventoryMovement) error
	ListMovementsByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]models.InventoryMovement, error)
	SumMovements(ctx context.Context, productID uuid.UUID) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return r.getProduct(ctx, id, false)
}

// GetProductForUpdate locks the product row so a concurrent movement for the
// same product serializes behind this transaction.
func (r *repository) GetProductForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return r.getProduct(ctx, id, true)
}

func (r *repository) getProduct(ctx context.Context, id uuid.UUID, lock bool) (*models.Product, error) {
	query := r.db.WithContext(ctx)
	if lock && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var product models.Product
	if err := query.Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

// AdjustStock applies a relative delta to the cached counter. Callers must
// pair every call with a CreateMovement in the same transaction.
func (r *repository) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock_qty", gorm.Expr("stock_qty + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) CreateMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListMovementsByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]models.InventoryMovement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var movements []models.InventoryMovement
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(limit).
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// SumMovements returns the ledger total for a product. Equality with the
// cached stock counter is the core inventory invariant.
func (r *repository) SumMovements(ctx context.Context, productID uuid.UUID) (int, error) {
	var total struct {
		Sum int
	}
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Select("COALESCE(SUM(delta), 0) AS sum").
		Where("product_id = ?", productID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total.Sum, nil
}
