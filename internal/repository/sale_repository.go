package repository

import (
	"context"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
)

// 売上イベントは追記のみ。更新・削除のメソッドは存在しない。
type SaleRepository interface {
	Create(ctx context.Context, sale model.SaleEvent) (model.SaleEvent, error)
	List(ctx context.Context, limit int) ([]model.SaleEvent, error)
}
