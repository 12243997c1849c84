package repository

import (
	"context"

	repo "github.com/Bree-codes/SuperMartConnect/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	inventory     repo.InventoryRepository
	sales         repo.SaleRepository
	checkouts     repo.CheckoutRepository
	checkoutLines repo.CheckoutLineRepository
}

func (r *txReposGorm) Inventory() repo.InventoryRepository        { return r.inventory }
func (r *txReposGorm) Sales() repo.SaleRepository                 { return r.sales }
func (r *txReposGorm) Checkouts() repo.CheckoutRepository         { return r.checkouts }
func (r *txReposGorm) CheckoutLines() repo.CheckoutLineRepository { return r.checkoutLines }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			inventory:     NewInventoryGormRepository(tx),
			sales:         NewSaleGormRepository(tx),
			checkouts:     NewCheckoutGormRepository(tx),
			checkoutLines: NewCheckoutLineGormRepository(tx),
		}
		return fn(r)
	})
}
