package usecase

import (
	"context"
	"errors"
	"net/http"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
	repo "github.com/Bree-codes/SuperMartConnect/internal/repository"

	"go.uber.org/zap"
)

// 在庫台帳。stockの読み取りと更新はすべてここを通る。
type InventoryUsecase struct {
	inventoryRepo repo.InventoryRepository
	publisher     StockPublisher
	logger        *zap.Logger
}

// DI
func NewInventoryUsecase(
	inventoryRepo repo.InventoryRepository,
	publisher StockPublisher,
	logger *zap.Logger,
) *InventoryUsecase {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &InventoryUsecase{
		inventoryRepo: inventoryRepo,
		publisher:     publisher,
		logger:        logger,
	}
}

// 全件または1支店分。ストレージ障害は空リストで隠さずエラーで返す。
func (u *InventoryUsecase) ListInventory(ctx context.Context, branch string) ([]model.InventoryItem, error) {
	if branch != "" && !model.IsValidBranch(branch) {
		return nil, NewHTTPError(http.StatusBadRequest, "unknown branch")
	}

	items, err := u.inventoryRepo.ListByBranch(ctx, branch)
	if err != nil {
		u.logger.Error("list inventory failed", zap.String("branch", branch), zap.Error(err))
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return items, nil
}

func (u *InventoryUsecase) GetStock(ctx context.Context, itemID int64) (int64, error) {
	if itemID <= 0 {
		return 0, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	item, err := u.inventoryRepo.FindByID(ctx, itemID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return item.Stock, nil
}

type SetStockInput struct {
	NewStock int64
	Reason   string
	// 管理画面のライブセッション。イベントのoriginタグに載せる。
	SessionID string
}

// SetStockは在庫の上書き。負の入力は0にクランプする。同じ値の再設定は冪等。
func (u *InventoryUsecase) SetStock(ctx context.Context, adminID int64, itemID int64, in SetStockInput) (model.InventoryItem, error) {
	if adminID <= 0 {
		return model.InventoryItem{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if itemID <= 0 {
		return model.InventoryItem{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStock := in.NewStock
	if newStock < 0 {
		newStock = 0
	}

	item, err := u.inventoryRepo.FindByID(ctx, itemID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.InventoryItem{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.InventoryItem{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.inventoryRepo.SetStock(ctx, itemID, newStock); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.InventoryItem{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return model.InventoryItem{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//調整履歴（deltaで残す）
	if err := u.inventoryRepo.CreateAdjustment(ctx, model.InventoryAdjustment{
		ItemID:      itemID,
		AdminUserID: adminID,
		Delta:       newStock - item.Stock,
		Reason:      in.Reason,
	}); err != nil {
		u.logger.Error("create adjustment failed", zap.Int64("item_id", itemID), zap.Error(err))
		return model.InventoryItem{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.publisher.PublishStockChanged(item.Branch, item.Product, itemID, newStock, in.SessionID)

	item.Stock = newStock
	return item, nil
}

type RestockInput struct {
	Amount    int64
	Reason    string
	SessionID string
}

// Restockは補充。amountは正のみ。
func (u *InventoryUsecase) Restock(ctx context.Context, adminID int64, itemID int64, in RestockInput) (model.InventoryItem, error) {
	if adminID <= 0 {
		return model.InventoryItem{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if itemID <= 0 {
		return model.InventoryItem{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if in.Amount <= 0 {
		return model.InventoryItem{}, NewHTTPError(http.StatusBadRequest, "invalid amount")
	}

	if err := u.inventoryRepo.IncreaseStock(ctx, itemID, in.Amount); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.InventoryItem{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return model.InventoryItem{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	item, err := u.inventoryRepo.FindByID(ctx, itemID)
	if err != nil {
		return model.InventoryItem{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.inventoryRepo.CreateAdjustment(ctx, model.InventoryAdjustment{
		ItemID:      itemID,
		AdminUserID: adminID,
		Delta:       in.Amount,
		Reason:      in.Reason,
	}); err != nil {
		u.logger.Error("create adjustment failed", zap.Int64("item_id", itemID), zap.Error(err))
		return model.InventoryItem{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.publisher.PublishStockChanged(item.Branch, item.Product, itemID, item.Stock, in.SessionID)

	return item, nil
}
