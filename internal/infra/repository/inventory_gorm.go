package repository

import (
	"context"
	"errors"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
	repo "github.com/Bree-codes/SuperMartConnect/internal/repository"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

func (r *InventoryGormRepository) FindByID(ctx context.Context, itemID int64) (model.InventoryItem, error) {
	var item model.InventoryItem
	err := r.db.WithContext(ctx).First(&item, "id = ?", itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.InventoryItem{}, repo.ErrNotFound
	}
	if err != nil {
		return model.InventoryItem{}, err
	}
	return item, nil
}

// 全件または1支店分。ID昇順で安定した並びにする。
func (r *InventoryGormRepository) ListByBranch(ctx context.Context, branch string) ([]model.InventoryItem, error) {
	q := r.db.WithContext(ctx).Model(&model.InventoryItem{}).Order("id ASC")
	if branch != "" {
		q = q.Where("branch = ?", branch)
	}

	var items []model.InventoryItem
	if err := q.Find(&items).Error; err != nil {
		// 障害を空リストで隠さない
		return nil, err
	}
	return items, nil
}

// 在庫の現在値を設定
func (r *InventoryGormRepository) SetStock(ctx context.Context, itemID int64, newStock int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.InventoryItem{}).
		Where("id = ?", itemID).
		Update("stock", newStock)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 同値更新でもpostgresは行を数えるので、0なら対象なし
		return repo.ErrNotFound
	}
	return nil
}

// 在庫が足りるときだけ減らす。条件付きUPDATE一発で行い、読み取り・再書き込みの競合窓を作らない。
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, itemID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.InventoryItem{}).
		Where("id = ? AND stock >= ?", itemID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 在庫戻し（補充）
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, itemID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.InventoryItem{}).
		Where("id = ?", itemID).
		Update("stock", gorm.Expr("stock + ?", qty))

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 調整履歴作成
func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	if err := r.db.WithContext(ctx).Create(&adj).Error; err != nil {
		return err
	}
	return nil
}
