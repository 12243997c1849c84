package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Bree-codes/SuperMartConnect/internal/domain/model"
	"github.com/Bree-codes/SuperMartConnect/internal/payment"
	repo "github.com/Bree-codes/SuperMartConnect/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =====================
// インメモリのフェイク（並行テストのためmutexで守る）
// =====================

type fakeStore struct {
	mu        sync.Mutex
	items     map[int64]model.InventoryItem
	sales     []model.SaleEvent
	checkouts map[int64]model.Checkout
	lines     map[int64][]model.CheckoutLine
	nextID    int64

	// itemID毎にDecreaseStockIfEnoughを失敗させる
	decrementErr map[int64]error
}

func newFakeStore(items ...model.InventoryItem) *fakeStore {
	s := &fakeStore{
		items:        make(map[int64]model.InventoryItem),
		checkouts:    make(map[int64]model.Checkout),
		lines:        make(map[int64][]model.CheckoutLine),
		decrementErr: make(map[int64]error),
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *fakeStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(s)
}

func (s *fakeStore) Inventory() repo.InventoryRepository        { return s }
func (s *fakeStore) Sales() repo.SaleRepository                 { return s }
func (s *fakeStore) Checkouts() repo.CheckoutRepository         { return fakeCheckoutRepo{s} }
func (s *fakeStore) CheckoutLines() repo.CheckoutLineRepository { return s }

func (s *fakeStore) FindByID(ctx context.Context, itemID int64) (model.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return model.InventoryItem{}, repo.ErrNotFound
	}
	return it, nil
}

func (s *fakeStore) ListByBranch(ctx context.Context, branch string) ([]model.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InventoryItem
	for _, it := range s.items {
		if branch == "" || it.Branch == branch {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *fakeStore) SetStock(ctx context.Context, itemID int64, newStock int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return repo.ErrNotFound
	}
	it.Stock = newStock
	s.items[itemID] = it
	return nil
}

func (s *fakeStore) DecreaseStockIfEnough(ctx context.Context, itemID int64, qty int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.decrementErr[itemID]; ok {
		return false, err
	}
	it, ok := s.items[itemID]
	if !ok {
		return false, nil
	}
	if it.Stock < qty {
		return false, nil
	}
	it.Stock -= qty
	s.items[itemID] = it
	return true, nil
}

func (s *fakeStore) IncreaseStock(ctx context.Context, itemID int64, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return repo.ErrNotFound
	}
	it.Stock += qty
	s.items[itemID] = it
	return nil
}

func (s *fakeStore) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	return nil
}

func (s *fakeStore) Create(ctx context.Context, sale model.SaleEvent) (model.SaleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sale.ID = s.nextID
	s.sales = append(s.sales, sale)
	return sale, nil
}

func (s *fakeStore) List(ctx context.Context, limit int) ([]model.SaleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SaleEvent, len(s.sales))
	copy(out, s.sales)
	return out, nil
}

func (s *fakeStore) createCheckout(c model.Checkout) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.checkouts {
		if ex.UserID == c.UserID && ex.IdempotencyKey == c.IdempotencyKey {
			return 0, errors.New("duplicate key")
		}
	}
	s.nextID++
	c.ID = s.nextID
	s.checkouts[c.ID] = c
	return c.ID, nil
}

// repo.CheckoutRepository
func (s *fakeStore) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Checkout, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.checkouts {
		if c.UserID == userID && c.IdempotencyKey == key {
			return c, true, nil
		}
	}
	return model.Checkout{}, false, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, checkoutID int64, status model.CheckoutStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkouts[checkoutID]
	if !ok {
		return repo.ErrNotFound
	}
	c.Status = status
	s.checkouts[checkoutID] = c
	return nil
}

func (s *fakeStore) SetPaymentRef(ctx context.Context, checkoutID int64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkouts[checkoutID]
	if !ok {
		return repo.ErrNotFound
	}
	c.PaymentRef = ref
	s.checkouts[checkoutID] = c
	return nil
}

func (s *fakeStore) SetFailure(ctx context.Context, checkoutID int64, reason model.CheckoutFailReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkouts[checkoutID]
	if !ok {
		return repo.ErrNotFound
	}
	c.Status = model.CheckoutStatusFailed
	c.FailReason = reason
	s.checkouts[checkoutID] = c
	return nil
}

func (s *fakeStore) CreateBulk(ctx context.Context, checkoutID int64, lines []model.CheckoutLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]model.CheckoutLine, len(lines))
	copy(stored, lines)
	for i := range stored {
		stored[i].CheckoutID = checkoutID
	}
	s.lines[checkoutID] = stored
	return nil
}

func (s *fakeStore) ListByCheckoutID(ctx context.Context, checkoutID int64) ([]model.CheckoutLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[checkoutID], nil
}

// createCheckoutをinterface経由に合わせる薄い別名
type fakeCheckoutRepo struct{ *fakeStore }

func (f fakeCheckoutRepo) Create(ctx context.Context, c model.Checkout) (int64, error) {
	return f.createCheckout(c)
}

func (s *fakeStore) checkoutRepo() repo.CheckoutRepository { return fakeCheckoutRepo{s} }

func (s *fakeStore) FindCheckout(id int64) model.Checkout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkouts[id]
}

// repo.CheckoutRepository.FindByID
func (f fakeCheckoutRepo) FindByID(ctx context.Context, checkoutID int64) (model.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.checkouts[checkoutID]
	if !ok {
		return model.Checkout{}, repo.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) stockOf(itemID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[itemID].Stock
}

func (s *fakeStore) salesCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}

func (s *fakeStore) soldQuantity(itemID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, sale := range s.sales {
		if sale.ItemID == itemID {
			total += sale.Quantity
		}
	}
	return total
}

type fakePayment struct {
	mu       sync.Mutex
	outcome  payment.Outcome
	err      error
	awaitErr error
	refSeq   int
}

func (p *fakePayment) InitiateSTKPush(ctx context.Context, payee string, amount int64, description string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.refSeq++
	return fmt.Sprintf("ws_CO_%d", p.refSeq), nil
}

func (p *fakePayment) AwaitConfirmation(ctx context.Context, ref string, timeout time.Duration) (payment.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.awaitErr != nil {
		return "", p.awaitErr
	}
	return p.outcome, nil
}

type publishedEvent struct {
	Branch, Product string
	ItemID          int64
	NewStock        int64
	Origin          string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) PublishStockChanged(branch, product string, itemID, newStock int64, origin string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{branch, product, itemID, newStock, origin})
}

func (p *fakePublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func newCheckoutUsecase(store *fakeStore, pay *fakePayment, pub *fakePublisher) *CheckoutUsecase {
	return NewCheckoutUsecase(
		store, store, store.checkoutRepo(), store,
		pay, pub, time.Second, zap.NewNop(),
	)
}

// =====================
// Tests
// =====================

func TestCheckoutComplete(t *testing.T) {
	store := newFakeStore(
		model.InventoryItem{ID: 1, Branch: "Nairobi", Product: "Coke", Price: 120, Stock: 100},
		model.InventoryItem{ID: 2, Branch: "Kisumu", Product: "Fanta", Price: 100, Stock: 30},
	)
	pay := &fakePayment{outcome: payment.OutcomeConfirmed}
	pub := &fakePublisher{}
	uc := newCheckoutUsecase(store, pay, pub)

	out, err := uc.Checkout(context.Background(), 7, CheckoutInput{
		Lines: []CheckoutLineInput{
			{ItemID: 1, Quantity: 2},
			{ItemID: 2, Quantity: 1},
		},
		Payee:          "0712345678",
		IdempotencyKey: "key-1",
		SessionID:      "sess-A",
	})

	require.NoError(t, err)
	assert.Equal(t, string(model.CheckoutStatusComplete), out.Status)
	assert.Equal(t, int64(2*120+100), out.TotalAmount)
	assert.Equal(t, int64(98), store.stockOf(1))
	assert.Equal(t, int64(29), store.stockOf(2))
	assert.Equal(t, 2, store.salesCount())

	events := pub.all()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "sess-A", ev.Origin)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	// stock=50のitemに30個ずつの精算を同時に2本。片方だけが通る。
	store := newFakeStore(
		model.InventoryItem{ID: 1, Branch: "Nairobi", Product: "Coke", Price: 100, Stock: 50},
	)
	pay := &fakePayment{outcome: payment.OutcomeConfirmed}
	pub := &fakePublisher{}
	uc := newCheckoutUsecase(store, pay, pub)

	results := make([]CheckoutOutput, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = uc.Checkout(context.Background(), int64(i+1), CheckoutInput{
				Lines:          []CheckoutLineInput{{ItemID: 1, Quantity: 30}},
				Payee:          "0712345678",
				IdempotencyKey: fmt.Sprintf("key-%d", i),
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	complete := 0
	failed := 0
	for _, out := range results {
		switch out.Status {
		case string(model.CheckoutStatusComplete):
			complete++
		case string(model.CheckoutStatusFailed):
			failed++
		}
	}

	assert.Equal(t, 1, complete, "exactly one checkout settles fully")
	assert.Equal(t, 1, failed)
	assert.Equal(t, int64(20), store.stockOf(1))
	assert.GreaterOrEqual(t, store.stockOf(1), int64(0))
	assert.LessOrEqual(t, store.soldQuantity(1), int64(50))
}

func TestConcurrentBurstSellsAtMostInitialStock(t *testing.T) {
	const initialStock = 10
	store := newFakeStore(
		model.InventoryItem{ID: 1, Branch: "Kisumu", Product: "Fanta", Price: 100, Stock: initialStock},
	)
	pay := &fakePayment{outcome: payment.OutcomeConfirmed}
	uc := newCheckoutUsecase(store, pay, &fakePublisher{})

	errs := make([]error, 25)
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = uc.Checkout(context.Background(), int64(i+1), CheckoutInput{
				Lines:          []CheckoutLineInput{{ItemID: 1, Quantity: 1}},
				Payee:          "0712345678",
				IdempotencyKey: fmt.Sprintf("burst-%d", i),
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, store.stockOf(1), int64(0))
	assert.Equal(t, int64(initialStock), store.soldQuantity(1)+store.stockOf(1))
	assert.LessOrEqual(t, store.soldQuantity(1), int64(initialStock))
}

func TestPartialSettlement(t *testing.T) {
	// 3行の2行目でストア障害。1行目は確定のまま、2行目失敗、3行目は未実行。
	store := newFakeStore(
		model.InventoryItem{ID: 1, Branch: "Nairobi", Product: "Coke", Price: 100, Stock: 50},
		model.InventoryItem{ID: 2, Branch: "Nairobi", Product: "Fanta", Price: 100, Stock: 50},
		model.InventoryItem{ID: 3, Branch: "Nairobi", Product: "Sprite", Price: 100, Stock: 50},
	)
	store.decrementErr[2] = errors.New("connection reset")

	pay := &fakePayment{outcome: payment.OutcomeConfirmed}
	pub := &fakePublisher{}
	uc := newCheckoutUsecase(store, pay, pub)

	out, err := uc.Checkout(context.Background(), 7, CheckoutInput{
		Lines: []CheckoutLineInput{
			{ItemID: 1, Quantity: 2},
			{ItemID: 2, Quantity: 1},
			{ItemID: 3, Quantity: 4},
		},
		Payee:          "0712345678",
		IdempotencyKey: "key-partial",
	})

	require.NoError(t, err)
	assert.Equal(t, string(model.CheckoutStatusPartiallySettled), out.Status)

	require.Len(t, out.Lines, 3)
	assert.Equal(t, string(model.LineStatusSettled), out.Lines[0].Status)
	assert.Equal(t, string(model.LineStatusFailed), out.Lines[1].Status)
	assert.Equal(t, "store error", out.Lines[1].FailDetail)
	assert.Equal(t, string(model.LineStatusUnattempted), out.Lines[2].Status)

	// 確定済みの行は巻き戻さない
	assert.Equal(t, int64(48), store.stockOf(1))
	assert.Equal(t, int64(50), store.stockOf(2))
	assert.Equal(t, int64(50), store.stockOf(3))
	assert.Equal(t, 1, store.salesCount())

	// 在庫が動いたitemだけ配信される
	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].ItemID)
	assert.Equal(t, int64(48), events[0].NewStock)
}

func TestInsufficientStockLineFails(t *testing.T) {
	store := newFakeStore(
		model.InventoryItem{ID: 1, Branch: "Kisumu", Product: "Coke", Price: 100, Stock: 5},
	)
	pay := &fakePayment{outcome: payment.OutcomeConfirmed}
	uc := newCheckoutUsecase(store, pay, &fakePublisher{})

	out, err := uc.Checkout(context.Background(), 7, CheckoutInput{
		Lines:          []CheckoutLineInput{{ItemID: 1, Quantity: 6}},
		Payee:          "0712345678",
		IdempotencyKey: "key-short",
	})

	require.NoError(t, err)
	assert.Equal(t, string(model.CheckoutStatusFailed), out.Status)
	require.Len(t, out.Lines, 1)
	assert.Equal(t, "insufficient stock", out.Lines[0].FailDetail)
	assert.Equal(t, int64(5), store.stockOf(1))
	assert.Equal(t, 0, store.salesCount())
}

func TestCheckoutIdempotent(t *testing.T) {
	store := newFakeStore(
		model.InventoryItem{ID: 1, Branch: "Nairobi", Product: "Coke", Price: 100, Stock: 10},
	)
	pay := &fakePayment{outcome: payment.OutcomeConfirmed}
	uc := newCheckoutUsecase(store, pay, &fakePublisher{})

	in := CheckoutInput{
		Lines:          []CheckoutLineInput{{ItemID: 1, Quantity: 3}},
		Payee:          "0712345678",
		IdempotencyKey: "key-same",
	}

	first, err := uc.Checkout(context.Background(), 7, in)
	require.NoError(t, err)
	require.Equal(t, string(model.CheckoutStatusComplete), first.Status)

	// 同じキーの再送は同じ結果で、SaleEventは増えない
	second, err := uc.Checkout(context.Background(), 7, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, store.salesCount())
	assert.Equal(t, int64(7), store.stockOf(1))
}

func TestPaymentDeclined(t *testing.T) {
	store := newFakeStore(
		model.InventoryItem{ID: 1, Branch: "Nairobi", Product: "Coke", Price: 100, Stock: 10},
	)
	pay := &fakePayment{outcome: payment.OutcomeDeclined}
	uc := newCheckoutUsecase(store, pay, &fakePublisher{})

	out, err := uc.Checkout(context.Background(), 7, CheckoutInput{
		Lines:          []CheckoutLineInput{{ItemID: 1, Quantity: 3}},
		Payee:          "0712345678",
		IdempotencyKey: "key-declined",
	})

	require.NoError(t, err)
	assert.Equal(t, string(model.CheckoutStatusFailed), out.Status)
	assert.Equal(t, string(model.FailReasonDeclined), out.FailReason)
	assert.Equal(t, 0, store.salesCount())
	assert.Equal(t, int64(10), store.stockOf(1))
}

func TestPaymentTimeoutIsNotComplete(t *testing.T) {
	store := newFakeStore(
		model.InventoryItem{ID: 1, Branch: "Nairobi", Product: "Coke", Price: 100, Stock: 10},
	)
	pay := &fakePayment{awaitErr: payment.ErrConfirmationTimeout}
	uc := newCheckoutUsecase(store, pay, &fakePublisher{})

	out, err := uc.Checkout(context.Background(), 7, CheckoutInput{
		Lines:          []CheckoutLineInput{{ItemID: 1, Quantity: 3}},
		Payee:          "0712345678",
		IdempotencyKey: "key-timeout",
	})

	require.NoError(t, err)
	assert.Equal(t, string(model.CheckoutStatusFailed), out.Status)
	// timeoutは拒否と別の理由で残す
	assert.Equal(t, string(model.FailReasonTimeout), out.FailReason)
	assert.Equal(t, 0, store.salesCount())
	assert.Equal(t, int64(10), store.stockOf(1))
}

func TestCheckoutValidation(t *testing.T) {
	store := newFakeStore(
		model.InventoryItem{ID: 1, Branch: "Nairobi", Product: "Coke", Price: 100, Stock: 10},
	)
	pay := &fakePayment{outcome: payment.OutcomeConfirmed}
	uc := newCheckoutUsecase(store, pay, &fakePublisher{})

	cases := []struct {
		name   string
		userID int64
		in     CheckoutInput
		status int
	}{
		{"empty cart", 7, CheckoutInput{Payee: "0712345678", IdempotencyKey: "k"}, http.StatusBadRequest},
		{"zero quantity", 7, CheckoutInput{
			Lines: []CheckoutLineInput{{ItemID: 1, Quantity: 0}}, Payee: "0712345678", IdempotencyKey: "k",
		}, http.StatusBadRequest},
		{"missing payee", 7, CheckoutInput{
			Lines: []CheckoutLineInput{{ItemID: 1, Quantity: 1}}, IdempotencyKey: "k",
		}, http.StatusBadRequest},
		{"missing key", 7, CheckoutInput{
			Lines: []CheckoutLineInput{{ItemID: 1, Quantity: 1}}, Payee: "0712345678",
		}, http.StatusBadRequest},
		{"unknown item", 7, CheckoutInput{
			Lines: []CheckoutLineInput{{ItemID: 99, Quantity: 1}}, Payee: "0712345678", IdempotencyKey: "k",
		}, http.StatusNotFound},
		{"unauthorized", 0, CheckoutInput{
			Lines: []CheckoutLineInput{{ItemID: 1, Quantity: 1}}, Payee: "0712345678", IdempotencyKey: "k",
		}, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Checkout(context.Background(), tc.userID, tc.in)
			require.Error(t, err)
			he, ok := AsHTTPError(err)
			require.True(t, ok)
			assert.Equal(t, tc.status, he.Status)
			// 副作用なし
			assert.Equal(t, 0, store.salesCount())
		})
	}
}

func TestCancelOnlyWhileAwaitingPayment(t *testing.T) {
	store := newFakeStore()
	pay := &fakePayment{outcome: payment.OutcomeConfirmed}
	uc := newCheckoutUsecase(store, pay, &fakePublisher{})

	id, err := store.createCheckout(model.Checkout{
		UserID:         7,
		Status:         model.CheckoutStatusAwaitingPayment,
		TotalAmount:    300,
		IdempotencyKey: "key-cancel",
	})
	require.NoError(t, err)

	out, err := uc.Cancel(context.Background(), 7, id)
	require.NoError(t, err)
	assert.Equal(t, string(model.CheckoutStatusFailed), out.Status)
	assert.Equal(t, string(model.FailReasonCanceled), out.FailReason)

	// 既にFAILEDなので二度目は409
	_, err = uc.Cancel(context.Background(), 7, id)
	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, he.Status)

	// 他人の精算は404
	_, err = uc.Cancel(context.Background(), 8, id)
	he, ok = AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}
