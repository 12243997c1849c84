package repository

import (
	"context"
	"errors"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
	repo "github.com/Bree-codes/SuperMartConnect/internal/repository"

	"gorm.io/gorm"
)

type CheckoutGormRepository struct {
	db *gorm.DB
}

func NewCheckoutGormRepository(db *gorm.DB) *CheckoutGormRepository {
	return &CheckoutGormRepository{db: db}
}

func (r *CheckoutGormRepository) Create(ctx context.Context, c model.Checkout) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (r *CheckoutGormRepository) FindByID(ctx context.Context, checkoutID int64) (model.Checkout, error) {
	var c model.Checkout
	err := r.db.WithContext(ctx).First(&c, "id = ?", checkoutID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Checkout{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Checkout{}, err
	}
	return c, nil
}

func (r *CheckoutGormRepository) UpdateStatus(ctx context.Context, checkoutID int64, status model.CheckoutStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.Checkout{}).
		Where("id = ?", checkoutID).
		Update("status", status)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CheckoutGormRepository) SetPaymentRef(ctx context.Context, checkoutID int64, ref string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Checkout{}).
		Where("id = ?", checkoutID).
		Update("payment_ref", ref)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CheckoutGormRepository) SetFailure(ctx context.Context, checkoutID int64, reason model.CheckoutFailReason) error {
	res := r.db.WithContext(ctx).
		Model(&model.Checkout{}).
		Where("id = ?", checkoutID).
		Updates(map[string]interface{}{
			"status":      model.CheckoutStatusFailed,
			"fail_reason": reason,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CheckoutGormRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Checkout, bool, error) {
	var c model.Checkout
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&c).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Checkout{}, false, nil
	}
	if err != nil {
		return model.Checkout{}, false, err
	}
	return c, true, nil
}

type CheckoutLineGormRepository struct {
	db *gorm.DB
}

func NewCheckoutLineGormRepository(db *gorm.DB) *CheckoutLineGormRepository {
	return &CheckoutLineGormRepository{db: db}
}

func (r *CheckoutLineGormRepository) CreateBulk(ctx context.Context, checkoutID int64, lines []model.CheckoutLine) error {
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].CheckoutID = checkoutID
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *CheckoutLineGormRepository) ListByCheckoutID(ctx context.Context, checkoutID int64) ([]model.CheckoutLine, error) {
	var lines []model.CheckoutLine
	err := r.db.WithContext(ctx).
		Where("checkout_id = ?", checkoutID).
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}
