package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
	"github.com/Bree-codes/SuperMartConnect/internal/payment"
	repo "github.com/Bree-codes/SuperMartConnect/internal/repository"

	"go.uber.org/zap"
)

// 行の精算途中で出す内部シグナル
var errInsufficientStock = errors.New("insufficient stock")

// 精算コーディネータ。
// AWAITING_PAYMENT -> PAYMENT_CONFIRMING -> SETTLING -> COMPLETE、
// 失敗はFAILED（支払い前）かPARTIALLY_SETTLED（精算途中）。
type CheckoutUsecase struct {
	tx            repo.TransactionManager
	inventoryRepo repo.InventoryRepository
	checkoutRepo  repo.CheckoutRepository
	lineRepo      repo.CheckoutLineRepository
	payments      payment.Service
	publisher     StockPublisher

	paymentTimeout time.Duration
	logger         *zap.Logger
}

// DI
func NewCheckoutUsecase(
	tx repo.TransactionManager,
	inventoryRepo repo.InventoryRepository,
	checkoutRepo repo.CheckoutRepository,
	lineRepo repo.CheckoutLineRepository,
	payments payment.Service,
	publisher StockPublisher,
	paymentTimeout time.Duration,
	logger *zap.Logger,
) *CheckoutUsecase {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &CheckoutUsecase{
		tx:             tx,
		inventoryRepo:  inventoryRepo,
		checkoutRepo:   checkoutRepo,
		lineRepo:       lineRepo,
		payments:       payments,
		publisher:      publisher,
		paymentTimeout: paymentTimeout,
		logger:         logger,
	}
}

type CheckoutLineInput struct {
	ItemID   int64
	Quantity int64
}

type CheckoutInput struct {
	Lines          []CheckoutLineInput
	Payee          string
	IdempotencyKey string
	// 発信者のライブセッション。stock変更イベントのoriginに載せる。
	SessionID string
}

type CheckoutLineOutput struct {
	ItemID     int64  `json:"item_id"`
	Branch     string `json:"branch"`
	Product    string `json:"product"`
	UnitPrice  int64  `json:"unit_price"`
	Quantity   int64  `json:"quantity"`
	Status     string `json:"status"`
	FailDetail string `json:"fail_detail,omitempty"`
}

type CheckoutOutput struct {
	ID          int64                `json:"id"`
	Status      string               `json:"status"`
	TotalAmount int64                `json:"total_amount"`
	PaymentRef  string               `json:"payment_ref,omitempty"`
	FailReason  string               `json:"fail_reason,omitempty"`
	Lines       []CheckoutLineOutput `json:"lines"`
}

// Checkoutはカートを精算する。
// 支払い確認の成功後、行は送信順に1行ずつ（並行にせず）精算される。
// 行の失敗で以降は打ち切り、精算済みの行は巻き戻さない（補償は外部の突合に任せる）。
func (u *CheckoutUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (CheckoutOutput, error) {
	if userID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in.Lines) == 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "cart empty")
	}
	for _, l := range in.Lines {
		if l.ItemID <= 0 || l.Quantity <= 0 {
			return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
		}
	}
	payee := strings.TrimSpace(in.Payee)
	if payee == "" {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payee")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
	}

	// 同じキーなら同じ結果（新しいSaleEventは作らない）
	if existing, found, err := u.checkoutRepo.FindByIdempotencyKey(ctx, userID, key); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	} else if found {
		return u.replay(ctx, existing)
	}

	// 価格は精算時点の在庫から読む（クライアント申告は信用しない）
	lines := make([]model.CheckoutLine, 0, len(in.Lines))
	var total int64
	for _, l := range in.Lines {
		item, err := u.inventoryRepo.FindByID(ctx, l.ItemID)
		if errors.Is(err, repo.ErrNotFound) {
			return CheckoutOutput{}, NewHTTPError(http.StatusNotFound, "item not found")
		}
		if err != nil {
			return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		lines = append(lines, model.CheckoutLine{
			ItemID:            item.ID,
			Branch:            item.Branch,
			Product:           item.Product,
			UnitPriceSnapshot: item.Price,
			Quantity:          l.Quantity,
			Status:            model.LineStatusUnattempted,
		})
		total += item.Price * l.Quantity
	}
	if total <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid total")
	}

	checkoutID, err := u.checkoutRepo.Create(ctx, model.Checkout{
		UserID:         userID,
		Status:         model.CheckoutStatusAwaitingPayment,
		Payee:          payee,
		TotalAmount:    total,
		IdempotencyKey: key,
	})
	if err != nil {
		//競合（同時に同じキーが入った等）はもう一回検索して同じ結果を返す
		if ex, found, err2 := u.checkoutRepo.FindByIdempotencyKey(ctx, userID, key); err2 == nil && found {
			return u.replay(ctx, ex)
		}
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "idempotency conflict")
	}

	// ここからは失敗しても必ず明細を書き残して返す
	out := CheckoutOutput{ID: checkoutID, TotalAmount: total}

	if err := u.checkoutRepo.UpdateStatus(ctx, checkoutID, model.CheckoutStatusPaymentConfirming); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	ref, err := u.payments.InitiateSTKPush(ctx, payee, total, "SuperMart checkout")
	if err != nil {
		u.logger.Warn("stk push failed", zap.Int64("checkout_id", checkoutID), zap.Error(err))
		return u.failCheckout(ctx, checkoutID, model.FailReasonDeclined, lines, out)
	}
	out.PaymentRef = ref
	if err := u.checkoutRepo.SetPaymentRef(ctx, checkoutID, ref); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outcome, err := u.payments.AwaitConfirmation(ctx, ref, u.paymentTimeout)
	if errors.Is(err, payment.ErrConfirmationTimeout) {
		// timeoutと明示的な拒否は区別して残す
		return u.failCheckout(ctx, checkoutID, model.FailReasonTimeout, lines, out)
	}
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "payment service error")
	}
	if outcome != payment.OutcomeConfirmed {
		return u.failCheckout(ctx, checkoutID, model.FailReasonDeclined, lines, out)
	}

	if err := u.checkoutRepo.UpdateStatus(ctx, checkoutID, model.CheckoutStatusSettling); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	// 行ごとに1トランザクション：条件付き減算→SaleEvent追記。
	// 精算済みの行はその後の失敗でもcommitされたまま残る。
	type publishInfo struct {
		branch, product string
		itemID          int64
		newStock        int64
	}
	var publishes []publishInfo

	halted := false
	settled := 0
	for i := range lines {
		if halted {
			continue
		}

		var newStock int64
		line := &lines[i]
		err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, line.ItemID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return errInsufficientStock
			}

			if _, err := r.Sales().Create(ctx, model.SaleEvent{
				ItemID:      line.ItemID,
				Branch:      line.Branch,
				Product:     line.Product,
				Quantity:    line.Quantity,
				TotalAmount: line.UnitPriceSnapshot * line.Quantity,
			}); err != nil {
				return err
			}

			item, err := r.Inventory().FindByID(ctx, line.ItemID)
			if err != nil {
				return err
			}
			newStock = item.Stock
			return nil
		})

		switch {
		case err == nil:
			line.Status = model.LineStatusSettled
			settled++
			publishes = append(publishes, publishInfo{
				branch:   line.Branch,
				product:  line.Product,
				itemID:   line.ItemID,
				newStock: newStock,
			})
		case errors.Is(err, errInsufficientStock):
			line.Status = model.LineStatusFailed
			line.FailDetail = "insufficient stock"
			halted = true
		default:
			u.logger.Error("line settlement failed",
				zap.Int64("checkout_id", checkoutID),
				zap.Int64("item_id", line.ItemID),
				zap.Error(err),
			)
			line.Status = model.LineStatusFailed
			line.FailDetail = "store error"
			halted = true
		}
	}

	status := model.CheckoutStatusComplete
	if halted {
		if settled > 0 {
			status = model.CheckoutStatusPartiallySettled
		} else {
			status = model.CheckoutStatusFailed
		}
	}

	if err := u.checkoutRepo.UpdateStatus(ctx, checkoutID, status); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if err := u.lineRepo.CreateBulk(ctx, checkoutID, lines); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	// (branch, product)ではなくitem単位で1回ずつ。同じitemが複数行なら最後の在庫値。
	seen := make(map[int64]int)
	deduped := publishes[:0]
	for _, p := range publishes {
		if idx, ok := seen[p.itemID]; ok {
			deduped[idx] = p
			continue
		}
		seen[p.itemID] = len(deduped)
		deduped = append(deduped, p)
	}
	for _, p := range deduped {
		u.publisher.PublishStockChanged(p.branch, p.product, p.itemID, p.newStock, in.SessionID)
	}

	out.Status = string(status)
	out.Lines = toLineOutputs(lines)

	u.logger.Info("checkout finished",
		zap.Int64("checkout_id", checkoutID),
		zap.String("status", string(status)),
		zap.Int("settled_lines", settled),
		zap.Int("total_lines", len(lines)),
	)
	return out, nil
}

// Cancelは支払い要求前だけ許す。SETTLINGに入った精算は取り消せない。
func (u *CheckoutUsecase) Cancel(ctx context.Context, userID int64, checkoutID int64) (CheckoutOutput, error) {
	if userID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	c, err := u.checkoutRepo.FindByID(ctx, checkoutID)
	if errors.Is(err, repo.ErrNotFound) {
		return CheckoutOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if c.UserID != userID {
		//他人の精算は「存在しない扱い」にする
		return CheckoutOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if c.Status != model.CheckoutStatusAwaitingPayment {
		return CheckoutOutput{}, NewHTTPError(http.StatusConflict, "cannot cancel")
	}

	if err := u.checkoutRepo.SetFailure(ctx, checkoutID, model.FailReasonCanceled); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return CheckoutOutput{
		ID:          c.ID,
		Status:      string(model.CheckoutStatusFailed),
		TotalAmount: c.TotalAmount,
		FailReason:  string(model.FailReasonCanceled),
	}, nil
}

// failCheckoutは支払い段階の失敗。SaleEventは作られず在庫も動かない。
// カートはクライアント側に残っているので再試行できる。
func (u *CheckoutUsecase) failCheckout(
	ctx context.Context,
	checkoutID int64,
	reason model.CheckoutFailReason,
	lines []model.CheckoutLine,
	out CheckoutOutput,
) (CheckoutOutput, error) {
	if err := u.checkoutRepo.SetFailure(ctx, checkoutID, reason); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if err := u.lineRepo.CreateBulk(ctx, checkoutID, lines); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out.Status = string(model.CheckoutStatusFailed)
	out.FailReason = string(reason)
	out.Lines = toLineOutputs(lines)
	return out, nil
}

// replayは既存の精算をそのまま返す（副作用なし）。
func (u *CheckoutUsecase) replay(ctx context.Context, c model.Checkout) (CheckoutOutput, error) {
	lines, err := u.lineRepo.ListByCheckoutID(ctx, c.ID)
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return CheckoutOutput{
		ID:          c.ID,
		Status:      string(c.Status),
		TotalAmount: c.TotalAmount,
		PaymentRef:  c.PaymentRef,
		FailReason:  string(c.FailReason),
		Lines:       toLineOutputs(lines),
	}, nil
}

func toLineOutputs(lines []model.CheckoutLine) []CheckoutLineOutput {
	outs := make([]CheckoutLineOutput, 0, len(lines))
	for _, l := range lines {
		outs = append(outs, CheckoutLineOutput{
			ItemID:     l.ItemID,
			Branch:     l.Branch,
			Product:    l.Product,
			UnitPrice:  l.UnitPriceSnapshot,
			Quantity:   l.Quantity,
			Status:     string(l.Status),
			FailDetail: l.FailDetail,
		})
	}
	return outs
}
