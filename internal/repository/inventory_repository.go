package repository

import (
	"context"
	"errors"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 在庫の永続化を約束。stockの変更はここを通る。
type InventoryRepository interface {
	FindByID(ctx context.Context, itemID int64) (model.InventoryItem, error)

	// 全件または1支店分。並びはID昇順で安定。
	ListByBranch(ctx context.Context, branch string) ([]model.InventoryItem, error)

	// 在庫の現在値を設定（負はレポジトリ層の前に0へクランプ済み）
	SetStock(ctx context.Context, itemID int64, newStock int64) error

	// 在庫が足りるときだけ減算。足りなければ(false, nil)。
	DecreaseStockIfEnough(ctx context.Context, itemID int64, qty int64) (bool, error)

	// 在庫戻し（補充など）
	IncreaseStock(ctx context.Context, itemID int64, qty int64) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
