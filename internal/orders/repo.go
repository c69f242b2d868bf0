package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wafulah/dukapesa-backend/pkg/db/models"
)

// Repository manages persistence for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	FindByPaymentReferenceForUpdate(ctx context.Context, reference string) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	SetPaymentReference(ctx context.Context, orderID uuid.UUID, reference string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	return r.findByPaymentReference(ctx, reference, false)
}

// FindByPaymentReferenceForUpdate takes a row lock on the matched order so
// concurrent callback deliveries for the same correlation id serialize.
func (r *repository) FindByPaymentReferenceForUpdate(ctx context.Context, reference string) (*models.Order, error) {
	return r.findByPaymentReference(ctx, reference, true)
}

func (r *repository) findByPaymentReference(ctx context.Context, reference string, lock bool) (*models.Order, error) {
	query := r.db.WithContext(ctx)
	// sqlite has no FOR UPDATE; its writers serialize on the database lock.
	if lock && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var order models.Order
	err := query.
		Where("payment_reference = ?", reference).
		First(&order).Error
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Where("order_id = ?", order.ID).
		Order("created_at ASC").
		Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Update(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).
		Omit("Items").
		Save(order).Error
}

// SetPaymentReference stores a new correlation id and resets the payment
// status to pending, superseding any prior attempt.
func (r *repository) SetPaymentReference(ctx context.Context, orderID uuid.UUID, reference string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"payment_reference": reference,
			"payment_status":    "pending",
		}).Error
}
