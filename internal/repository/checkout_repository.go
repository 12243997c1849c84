package repository

import (
	"context"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
)

type CheckoutRepository interface {
	Create(ctx context.Context, c model.Checkout) (int64, error)
	FindByID(ctx context.Context, checkoutID int64) (model.Checkout, error)
	UpdateStatus(ctx context.Context, checkoutID int64, status model.CheckoutStatus) error
	SetPaymentRef(ctx context.Context, checkoutID int64, ref string) error
	SetFailure(ctx context.Context, checkoutID int64, reason model.CheckoutFailReason) error

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Checkout, bool, error)
}

type CheckoutLineRepository interface {
	CreateBulk(ctx context.Context, checkoutID int64, lines []model.CheckoutLine) error
	ListByCheckoutID(ctx context.Context, checkoutID int64) ([]model.CheckoutLine, error)
}
