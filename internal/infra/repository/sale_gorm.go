package repository

import (
	"context"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"

	"gorm.io/gorm"
)

// 売上イベントの追記専用レポジトリ。UpdateもDeleteも実装しない。
type SaleGormRepository struct {
	db *gorm.DB
}

func NewSaleGormRepository(db *gorm.DB) *SaleGormRepository {
	return &SaleGormRepository{db: db}
}

func (r *SaleGormRepository) Create(ctx context.Context, sale model.SaleEvent) (model.SaleEvent, error) {
	if err := r.db.WithContext(ctx).Create(&sale).Error; err != nil {
		return model.SaleEvent{}, err
	}
	return sale, nil
}

func (r *SaleGormRepository) List(ctx context.Context, limit int) ([]model.SaleEvent, error) {
	q := r.db.WithContext(ctx).Model(&model.SaleEvent{}).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var sales []model.SaleEvent
	if err := q.Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}
