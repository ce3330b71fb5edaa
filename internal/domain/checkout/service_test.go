package checkout

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/digishop/internal/domain/cart"
	"github.com/xenking/digishop/internal/domain/order"
	"github.com/xenking/digishop/internal/domain/product"
	"github.com/xenking/digishop/internal/domain/stock"
	"github.com/xenking/digishop/internal/gateway"
)

// --- Mock implementations ---

type memCartStore struct {
	carts map[string]*cart.Cart
}

func newMemCartStore() *memCartStore {
	return &memCartStore{carts: make(map[string]*cart.Cart)}
}

func (m *memCartStore) Get(_ context.Context, sessionID string) (*cart.Cart, error) {
	if c, ok := m.carts[sessionID]; ok {
		return c, nil
	}
	return &cart.Cart{}, nil
}

func (m *memCartStore) Save(_ context.Context, sessionID string, c *cart.Cart) error {
	m.carts[sessionID] = c
	return nil
}

func (m *memCartStore) Clear(_ context.Context, sessionID string) error {
	delete(m.carts, sessionID)
	return nil
}

type mockProductRepo struct {
	byID map[string]*product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type mockOrderRepo struct {
	byID        map[string]*order.Order
	createErr   error
	markPaidErr error
	markPaids   int
}

func newMockOrderRepo(orders ...*order.Order) *mockOrderRepo {
	byID := make(map[string]*order.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return &mockOrderRepo{byID: byID}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) ListByBuyer(_ context.Context, _ string) ([]order.Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) MarkPaid(_ context.Context, id, transactionRef string) error {
	m.markPaids++
	if m.markPaidErr != nil {
		return m.markPaidErr
	}
	o, ok := m.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.IsPaid {
		return nil
	}
	o.IsPaid = true
	o.Status = order.StatusPaid
	o.TransactionRef = transactionRef
	return nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status order.Status) error {
	o, ok := m.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

type mockGateway struct {
	initiation *gateway.Initiation
	initErr    error
	receipt    *gateway.Receipt
	verifyErr  error
	verifies   int
}

func (m *mockGateway) RequestPayment(_ context.Context, _ decimal.Decimal, _, _ string, _ gateway.Contact) (*gateway.Initiation, error) {
	if m.initErr != nil {
		return nil, m.initErr
	}
	return m.initiation, nil
}

func (m *mockGateway) VerifyPayment(_ context.Context, _ decimal.Decimal, _ string) (*gateway.Receipt, error) {
	m.verifies++
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.receipt, nil
}

type memAttemptStore struct {
	attempts map[string]Attempt
}

func newMemAttemptStore() *memAttemptStore {
	return &memAttemptStore{attempts: make(map[string]Attempt)}
}

func (m *memAttemptStore) Save(_ context.Context, sessionID string, a Attempt) error {
	m.attempts[sessionID] = a
	return nil
}

func (m *memAttemptStore) Load(_ context.Context, sessionID string) (*Attempt, error) {
	a, ok := m.attempts[sessionID]
	if !ok {
		return nil, ErrNoPendingPayment
	}
	return &a, nil
}

func (m *memAttemptStore) Clear(_ context.Context, sessionID string) error {
	delete(m.attempts, sessionID)
	return nil
}

// --- Helpers ---

const (
	sid         = "session-1"
	callbackURL = "https://shop.example/api/payment/callback"
)

type fixture struct {
	svc      *Service
	carts    *cart.Service
	store    *memCartStore
	orders   *mockOrderRepo
	gw       *mockGateway
	attempts *memAttemptStore
}

func newFixture(orders *mockOrderRepo, gw *mockGateway, products ...product.Product) *fixture {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	store := newMemCartStore()
	carts := cart.NewService(store, &mockProductRepo{byID: byID})
	attempts := newMemAttemptStore()
	return &fixture{
		svc:      NewService(carts, orders, gw, attempts, callbackURL),
		carts:    carts,
		store:    store,
		orders:   orders,
		gw:       gw,
		attempts: attempts,
	}
}

func (f *fixture) fillCart(t *testing.T, productID string, qty int) {
	t.Helper()
	_, err := f.carts.Add(context.Background(), sid, productID, qty, false)
	require.NoError(t, err)
}

func testProduct(id, price string, stockLevel int) product.Product {
	return product.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: decimal.RequireFromString(price),
		Stock: stockLevel,
	}
}

func pendingOrder(id, total string) *order.Order {
	return &order.Order{
		ID:         id,
		BuyerID:    sid,
		Phone:      "09120000000",
		TotalPrice: decimal.RequireFromString(total),
		Status:     order.StatusPending,
	}
}

// --- Tests ---

func TestCreateOrder_EmptyCart(t *testing.T) {
	f := newFixture(newMockOrderRepo(), &mockGateway{})

	_, err := f.svc.CreateOrder(context.Background(), sid, CreateOrderRequest{
		RecipientName: "Jo", Address: "Street 1", Phone: "091",
	})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateOrder_SnapshotsCartAndClearsIt(t *testing.T) {
	f := newFixture(newMockOrderRepo(), &mockGateway{},
		testProduct("p1", "10.00", 10), testProduct("p2", "20.00", 10))
	f.fillCart(t, "p1", 2)
	f.fillCart(t, "p2", 1)

	o, err := f.svc.CreateOrder(context.Background(), sid, CreateOrderRequest{
		RecipientName: "Jo", Address: "Street 1", Phone: "091",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.False(t, o.IsPaid)
	assert.True(t, decimal.RequireFromString("40.00").Equal(o.TotalPrice))
	require.Len(t, o.Lines, 2)

	c, err := f.carts.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty(), "cart must be cleared after order creation")
}

func TestCreateOrder_BuyerDefaultsToSession(t *testing.T) {
	f := newFixture(newMockOrderRepo(), &mockGateway{}, testProduct("p1", "10.00", 10))
	f.fillCart(t, "p1", 1)

	o, err := f.svc.CreateOrder(context.Background(), sid, CreateOrderRequest{
		RecipientName: "Jo", Address: "Street 1", Phone: "091",
	})
	require.NoError(t, err)
	assert.Equal(t, sid, o.BuyerID)
}

func TestCreateOrder_ExplicitBuyerWins(t *testing.T) {
	f := newFixture(newMockOrderRepo(), &mockGateway{}, testProduct("p1", "10.00", 10))
	f.fillCart(t, "p1", 1)

	o, err := f.svc.CreateOrder(context.Background(), sid, CreateOrderRequest{
		BuyerID: "buyer-42", RecipientName: "Jo", Address: "Street 1", Phone: "091",
	})
	require.NoError(t, err)
	assert.Equal(t, "buyer-42", o.BuyerID)
}

func TestInitiatePayment_SavesAttempt(t *testing.T) {
	o := pendingOrder("ord-1", "100.00")
	gw := &mockGateway{initiation: &gateway.Initiation{
		Authority:   "A-0001",
		RedirectURL: "https://pay.example/start/A-0001",
	}}
	f := newFixture(newMockOrderRepo(o), gw)

	url, err := f.svc.InitiatePayment(context.Background(), sid, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/start/A-0001", url)

	attempt, err := f.attempts.Load(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", attempt.OrderID)
	assert.Equal(t, "A-0001", attempt.Authority)
}

func TestInitiatePayment_AlreadyPaid(t *testing.T) {
	o := pendingOrder("ord-1", "100.00")
	o.IsPaid = true
	f := newFixture(newMockOrderRepo(o), &mockGateway{})

	_, err := f.svc.InitiatePayment(context.Background(), sid, "ord-1")
	require.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestInitiatePayment_GatewayFailureKeepsOrderPending(t *testing.T) {
	o := pendingOrder("ord-1", "100.00")
	gw := &mockGateway{initErr: &gateway.Error{Code: gateway.CodeTimeout}}
	f := newFixture(newMockOrderRepo(o), gw)

	_, err := f.svc.InitiatePayment(context.Background(), sid, "ord-1")

	var initErr *InitiationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, gateway.CodeTimeout, initErr.Code)
	assert.Equal(t, order.StatusPending, o.Status)

	// No attempt saved for a failed initiation.
	_, err = f.attempts.Load(context.Background(), sid)
	require.ErrorIs(t, err, ErrNoPendingPayment)
}

func TestVerifyPayment_Success(t *testing.T) {
	o := pendingOrder("ord-1", "100.00")
	gw := &mockGateway{receipt: &gateway.Receipt{RefID: "ref-777"}}
	f := newFixture(newMockOrderRepo(o), gw)
	require.NoError(t, f.attempts.Save(context.Background(), sid, Attempt{OrderID: "ord-1", Authority: "A-0001"}))

	paid, err := f.svc.VerifyPayment(context.Background(), sid, "A-0001", CallbackOK)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	assert.Equal(t, order.StatusPaid, paid.Status)
	assert.Equal(t, "ref-777", paid.TransactionRef)

	_, err = f.attempts.Load(context.Background(), sid)
	require.ErrorIs(t, err, ErrNoPendingPayment, "attempt must be cleared on success")
}

func TestVerifyPayment_AuthorityFallsBackToAttempt(t *testing.T) {
	o := pendingOrder("ord-1", "100.00")
	gw := &mockGateway{receipt: &gateway.Receipt{RefID: "ref-777"}}
	f := newFixture(newMockOrderRepo(o), gw)
	require.NoError(t, f.attempts.Save(context.Background(), sid, Attempt{OrderID: "ord-1", Authority: "A-0001"}))

	paid, err := f.svc.VerifyPayment(context.Background(), sid, "", CallbackOK)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
}

func TestVerifyPayment_NoPendingAttempt(t *testing.T) {
	f := newFixture(newMockOrderRepo(), &mockGateway{})

	_, err := f.svc.VerifyPayment(context.Background(), sid, "A-0001", CallbackOK)
	require.ErrorIs(t, err, ErrNoPendingPayment)
}

func TestVerifyPayment_BuyerCancelled(t *testing.T) {
	o := pendingOrder("ord-1", "100.00")
	gw := &mockGateway{}
	f := newFixture(newMockOrderRepo(o), gw)
	require.NoError(t, f.attempts.Save(context.Background(), sid, Attempt{OrderID: "ord-1", Authority: "A-0001"}))

	_, err := f.svc.VerifyPayment(context.Background(), sid, "A-0001", "NOK")
	require.ErrorIs(t, err, ErrPaymentCancelled)

	assert.Equal(t, 0, gw.verifies, "no verify call for a cancelled payment")
	assert.Equal(t, order.StatusPending, o.Status)
	assert.False(t, o.IsPaid)

	_, err = f.attempts.Load(context.Background(), sid)
	require.ErrorIs(t, err, ErrNoPendingPayment, "attempt must be cleared on buyer cancel")
}

func TestVerifyPayment_GatewayFailureKeepsAttempt(t *testing.T) {
	o := pendingOrder("ord-1", "100.00")
	gw := &mockGateway{verifyErr: &gateway.Error{Code: gateway.CodeTimeout}}
	f := newFixture(newMockOrderRepo(o), gw)
	require.NoError(t, f.attempts.Save(context.Background(), sid, Attempt{OrderID: "ord-1", Authority: "A-0001"}))

	_, err := f.svc.VerifyPayment(context.Background(), sid, "A-0001", CallbackOK)

	var verifyErr *VerificationError
	require.ErrorAs(t, err, &verifyErr)
	assert.Equal(t, gateway.CodeTimeout, verifyErr.Code)
	assert.False(t, o.IsPaid)

	// The attempt survives so a repeated callback can resume.
	attempt, err := f.attempts.Load(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "A-0001", attempt.Authority)
}

// A repeated callback after success: the provider reports "verified before"
// and MarkPaid is a no-op for a paid order, so stock moves at most once.
func TestVerifyPayment_RepeatedCallbackIsIdempotent(t *testing.T) {
	o := pendingOrder("ord-1", "100.00")
	gw := &mockGateway{receipt: &gateway.Receipt{RefID: "ref-777"}}
	f := newFixture(newMockOrderRepo(o), gw)
	require.NoError(t, f.attempts.Save(context.Background(), sid, Attempt{OrderID: "ord-1", Authority: "A-0001"}))

	_, err := f.svc.VerifyPayment(context.Background(), sid, "A-0001", CallbackOK)
	require.NoError(t, err)

	// Second delivery of the same callback.
	require.NoError(t, f.attempts.Save(context.Background(), sid, Attempt{OrderID: "ord-1", Authority: "A-0001"}))
	gw.receipt = &gateway.Receipt{RefID: "ref-777", AlreadyVerified: true}

	paid, err := f.svc.VerifyPayment(context.Background(), sid, "A-0001", CallbackOK)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	assert.Equal(t, "ref-777", paid.TransactionRef)
	assert.Equal(t, 2, f.orders.markPaids, "second MarkPaid must be a repository-level no-op")
}

func TestVerifyPayment_InsufficientStockClearsAttempt(t *testing.T) {
	o := pendingOrder("ord-1", "100.00")
	gw := &mockGateway{receipt: &gateway.Receipt{RefID: "ref-777"}}
	repo := newMockOrderRepo(o)
	repo.markPaidErr = &stock.InsufficientStockError{ProductID: "p1", Available: 0, Required: 1}
	f := newFixture(repo, gw)
	require.NoError(t, f.attempts.Save(context.Background(), sid, Attempt{OrderID: "ord-1", Authority: "A-0001"}))

	_, err := f.svc.VerifyPayment(context.Background(), sid, "A-0001", CallbackOK)

	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "p1", insufficient.ProductID)

	_, err = f.attempts.Load(context.Background(), sid)
	require.ErrorIs(t, err, ErrNoPendingPayment, "definitive outcome must close the attempt")
}

func TestVerifyPayment_TransientMarkPaidFailureKeepsAttempt(t *testing.T) {
	o := pendingOrder("ord-1", "100.00")
	gw := &mockGateway{receipt: &gateway.Receipt{RefID: "ref-777"}}
	repo := newMockOrderRepo(o)
	repo.markPaidErr = errors.New("connection reset")
	f := newFixture(repo, gw)
	require.NoError(t, f.attempts.Save(context.Background(), sid, Attempt{OrderID: "ord-1", Authority: "A-0001"}))

	_, err := f.svc.VerifyPayment(context.Background(), sid, "A-0001", CallbackOK)
	require.Error(t, err)

	_, loadErr := f.attempts.Load(context.Background(), sid)
	require.NoError(t, loadErr, "transient failure must keep the attempt for retry")
}
