package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/apperr"
	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/inventory"
	"github.com/ariefcatur/go-realtime-checkout/internal/store"
	"github.com/ariefcatur/go-realtime-checkout/internal/store/memstore"
)

// readCommittedStore behaves like PostgreSQL at READ COMMITTED with
// SELECT ... FOR UPDATE: every Tx call commits on its own, and LockProduct
// holds a per-product lock until the enclosing InTx returns. Nothing is
// rolled back, so it only suits paths that fail before their first write.
type readCommittedStore struct {
	inner *memstore.Store
	// readDelay widens the window between a reservation read and what follows.
	readDelay time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newReadCommittedStore(inner *memstore.Store, readDelay time.Duration) *readCommittedStore {
	return &readCommittedStore{inner: inner, readDelay: readDelay, locks: map[string]*sync.Mutex{}}
}

func (s *readCommittedStore) productLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *readCommittedStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx := &readCommittedTx{s: s, held: map[string]*sync.Mutex{}}
	defer func() {
		for _, l := range tx.held {
			l.Unlock()
		}
	}()
	return fn(ctx, tx)
}

// readCommittedTx overrides the calls the cart paths make; anything else
// panics through the nil embedded interface.
type readCommittedTx struct {
	store.Tx
	s    *readCommittedStore
	held map[string]*sync.Mutex
}

func (t *readCommittedTx) auto(ctx context.Context, fn func(tx store.Tx) error) error {
	return t.s.inner.InTx(ctx, func(_ context.Context, tx store.Tx) error { return fn(tx) })
}

func (t *readCommittedTx) LockProduct(ctx context.Context, id string) (domain.Product, error) {
	if _, ok := t.held[id]; !ok {
		l := t.s.productLock(id)
		l.Lock()
		t.held[id] = l
	}
	var p domain.Product
	err := t.auto(ctx, func(tx store.Tx) (err error) { p, err = tx.GetProduct(ctx, id); return })
	return p, err
}

func (t *readCommittedTx) SaveProductStock(ctx context.Context, p domain.Product) error {
	return t.auto(ctx, func(tx store.Tx) error { return tx.SaveProductStock(ctx, p) })
}

func (t *readCommittedTx) AddCartProductCount(ctx context.Context, id string, delta int) error {
	return t.auto(ctx, func(tx store.Tx) error { return tx.AddCartProductCount(ctx, id, delta) })
}

func (t *readCommittedTx) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	var c domain.Cart
	err := t.auto(ctx, func(tx store.Tx) (err error) { c, err = tx.GetOrCreateCart(ctx, userID); return })
	return c, err
}

func (t *readCommittedTx) FindCartByUser(ctx context.Context, userID string) (domain.Cart, error) {
	var c domain.Cart
	err := t.auto(ctx, func(tx store.Tx) (err error) { c, err = tx.FindCartByUser(ctx, userID); return })
	return c, err
}

func (t *readCommittedTx) UpsertCartItem(ctx context.Context, cartID, productID string, delta int) (domain.CartItem, bool, error) {
	var (
		it      domain.CartItem
		created bool
	)
	err := t.auto(ctx, func(tx store.Tx) (err error) {
		it, created, err = tx.UpsertCartItem(ctx, cartID, productID, delta)
		return
	})
	return it, created, err
}

func (t *readCommittedTx) LockCartItem(ctx context.Context, cartID, productID string) (domain.CartItem, error) {
	var it domain.CartItem
	err := t.auto(ctx, func(tx store.Tx) (err error) { it, err = tx.LockCartItem(ctx, cartID, productID); return })
	return it, err
}

func (t *readCommittedTx) SetCartItemQuantity(ctx context.Context, itemID string, qty int) error {
	return t.auto(ctx, func(tx store.Tx) error { return tx.SetCartItemQuantity(ctx, itemID, qty) })
}

func (t *readCommittedTx) DeleteCartItem(ctx context.Context, cartID, productID string) (int64, error) {
	var n int64
	err := t.auto(ctx, func(tx store.Tx) (err error) { n, err = tx.DeleteCartItem(ctx, cartID, productID); return })
	return n, err
}

func (t *readCommittedTx) ListReservations(ctx context.Context, cartID, productID string) ([]domain.Reservation, error) {
	var rs []domain.Reservation
	err := t.auto(ctx, func(tx store.Tx) (err error) { rs, err = tx.ListReservations(ctx, cartID, productID); return })
	time.Sleep(t.s.readDelay)
	return rs, err
}

func (t *readCommittedTx) AddReservation(ctx context.Context, r domain.Reservation) error {
	return t.auto(ctx, func(tx store.Tx) error { return tx.AddReservation(ctx, r) })
}

func (t *readCommittedTx) DeleteReservations(ctx context.Context, cartID, productID string) error {
	return t.auto(ctx, func(tx store.Tx) error { return tx.DeleteReservations(ctx, cartID, productID) })
}

func readCommittedSetup(t *testing.T) (*memstore.Store, *Manager) {
	t.Helper()
	inner := memstore.New()
	inner.PutProduct(domain.Product{
		ID:    "p1",
		Price: decimal.NewFromInt(25),
		Sizes: map[domain.Size]int{domain.SizeS: 5, domain.SizeM: 5},
	})
	inner.PutCustomer(domain.Customer{ID: "u1", Name: "Ana", Email: "ana@example.com", Phone: "+100"})
	rc := newReadCommittedStore(inner, 5*time.Millisecond)
	log := zap.NewNop()
	return inner, NewManager(rc, inventory.NewLedger(rc, log), nil, log)
}

// reservedUnits sums what u1's cart holds of p1.
func reservedUnits(st *memstore.Store) int {
	c, _ := st.CartOf("u1")
	n := 0
	for _, r := range c.Reservations {
		n += r.Qty
	}
	return n
}

func TestDecreaseItem_ConcurrentCannotReleaseMoreThanReserved(t *testing.T) {
	st, m := readCommittedSetup(t)
	ctx := context.Background()
	require.NoError(t, m.AddToCart(ctx, "u1", "p1", lines(domain.SizeM, 3)))
	require.NoError(t, m.AddToCart(ctx, "u1", "p1", lines(domain.SizeS, 1)))

	var (
		wg      sync.WaitGroup
		success atomic.Int32
		errs    = make(chan error, 2)
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.DecreaseItem(ctx, "u1", "p1", domain.Line{Size: domain.SizeM, Quantity: 2})
			if err == nil {
				success.Add(1)
				return
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), success.Load())
	for err := range errs {
		assert.Equal(t, "Only 1 items of size M in cart", apperr.PublicMessage(err))
	}
	p, _ := st.Product("p1")
	assert.Equal(t, 4, p.Sizes[domain.SizeM])
	assert.Equal(t, 8, p.Inventory)
	assert.Equal(t, 2, reservedUnits(st))
}

func TestRemoveItem_ConcurrentWithAddConservesStock(t *testing.T) {
	st, m := readCommittedSetup(t)
	ctx := context.Background()
	require.NoError(t, m.AddToCart(ctx, "u1", "p1", lines(domain.SizeM, 1)))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.AddToCart(ctx, "u1", "p1", lines(domain.SizeM, 1))
		}()
		go func() {
			defer wg.Done()
			_ = m.RemoveItem(ctx, "u1", "p1")
		}()
	}
	wg.Wait()

	p, _ := st.Product("p1")
	c, _ := st.CartOf("u1")
	assert.Equal(t, 10, p.Inventory+reservedUnits(st), "every unit is either in stock or reserved")
	inCart := 0
	for _, it := range c.Items {
		inCart += it.Quantity
	}
	assert.Equal(t, reservedUnits(st), inCart)
}
