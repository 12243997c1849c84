package usecase

import (
	"context"
	"net/http"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
	repo "github.com/Bree-codes/SuperMartConnect/internal/repository"

	"go.uber.org/zap"
)

// 売上の集計。毎回SaleEvent全件を読み直すO(n)の再計算で、
// キャッシュも増分更新も持たない（データ量が小さい前提）。
type ReportUsecase struct {
	saleRepo repo.SaleRepository
	logger   *zap.Logger
}

func NewReportUsecase(saleRepo repo.SaleRepository, logger *zap.Logger) *ReportUsecase {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &ReportUsecase{saleRepo: saleRepo, logger: logger}
}

type ReportOutput struct {
	SoldPerProduct    map[string]int64 `json:"sold_per_product"`
	RevenuePerProduct map[string]int64 `json:"revenue_per_product"`
	TotalRevenue      int64            `json:"total_revenue"`
	TotalItemsSold    int64            `json:"total_items_sold"`
	TopProduct        string           `json:"top_product"`
}

func (u *ReportUsecase) Report(ctx context.Context) (ReportOutput, error) {
	sales, err := u.saleRepo.List(ctx, 0)
	if err != nil {
		u.logger.Error("load sales failed", zap.Error(err))
		return ReportOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out := ReportOutput{
		SoldPerProduct:    make(map[string]int64),
		RevenuePerProduct: make(map[string]int64),
	}

	for _, s := range sales {
		out.SoldPerProduct[s.Product] += s.Quantity
		out.RevenuePerProduct[s.Product] += s.TotalAmount
		out.TotalRevenue += s.TotalAmount
		out.TotalItemsSold += s.Quantity
	}

	// 最多販売。同数は名前順で決める（挿入順に依存させない）。
	var topSold int64
	for product, sold := range out.SoldPerProduct {
		if sold > topSold || (sold == topSold && topSold > 0 && product < out.TopProduct) {
			out.TopProduct = product
			topSold = sold
		}
	}

	return out, nil
}

func (u *ReportUsecase) ListSales(ctx context.Context, limit int) ([]model.SaleEvent, error) {
	if limit < 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	sales, err := u.saleRepo.List(ctx, limit)
	if err != nil {
		u.logger.Error("list sales failed", zap.Error(err))
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return sales, nil
}
