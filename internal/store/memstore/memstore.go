// Package memstore is an in-memory store.Store. Transactions are fully
// serialized and roll back by restoring a snapshot, which gives the same
// guarantees the PostgreSQL row locks give the cart and inventory code.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/store"
)

type resKey struct {
	cartID, productID string
	size              domain.Size
}

type state struct {
	products       map[string]domain.Product
	customers      map[string]domain.Customer
	carts          map[string]domain.Cart
	cartByUser     map[string]string
	items          map[string]domain.CartItem
	reservations   map[resKey]int
	orders         map[string]domain.Order
	orderByGateway map[string]string
}

func newState() state {
	return state{
		products:       map[string]domain.Product{},
		customers:      map[string]domain.Customer{},
		carts:          map[string]domain.Cart{},
		cartByUser:     map[string]string{},
		items:          map[string]domain.CartItem{},
		reservations:   map[resKey]int{},
		orders:         map[string]domain.Order{},
		orderByGateway: map[string]string{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v.Clone()
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartByUser {
		c.cartByUser[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderByGateway {
		c.orderByGateway[k] = v
	}
	return c
}

type Store struct {
	mu       sync.Mutex
	st       state
	failures map[string]error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), failures: map[string]error{}}
}

// FailOn makes every later call to the named Tx method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.st.clone()
	if err := fn(ctx, &tx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// PutProduct seeds a product; Inventory and InStock are derived from Sizes.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = p.Clone()
	p.Recompute()
	s.st.products[p.ID] = p
}

func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.customers[c.ID] = c
}

func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return p.Clone(), ok
}

func (s *Store) Customer(id string) (domain.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.customers[id]
	return c, ok
}

func (s *Store) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.Before(out[j].OrderDate) })
	return out
}

// CartOf returns the user's cart with items, or false when none exists.
func (s *Store) CartOf(userID string) (domain.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.cartByUser[userID]
	if !ok {
		return domain.Cart{}, false
	}
	return (&tx{s: s}).loadCart(id), true
}

type tx struct{ s *Store }

func (t *tx) fail(method string) error { return t.s.failures[method] }

func (t *tx) GetProduct(_ context.Context, id string) (domain.Product, error) {
	if err := t.fail("GetProduct"); err != nil {
		return domain.Product{}, err
	}
	p, ok := t.s.st.products[id]
	if !ok {
		return domain.Product{}, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (t *tx) LockProduct(ctx context.Context, id string) (domain.Product, error) {
	if err := t.fail("LockProduct"); err != nil {
		return domain.Product{}, err
	}
	return t.GetProduct(ctx, id)
}

func (t *tx) SaveProductStock(_ context.Context, p domain.Product) error {
	if err := t.fail("SaveProductStock"); err != nil {
		return err
	}
	cur, ok := t.s.st.products[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Sizes = p.Clone().Sizes
	cur.Inventory = p.Inventory
	cur.InStock = p.InStock
	cur.UpdatedAt = time.Now()
	t.s.st.products[p.ID] = cur
	return nil
}

func (t *tx) GetCustomer(_ context.Context, id string) (domain.Customer, error) {
	if err := t.fail("GetCustomer"); err != nil {
		return domain.Customer{}, err
	}
	c, ok := t.s.st.customers[id]
	if !ok {
		return domain.Customer{}, store.ErrNotFound
	}
	return c, nil
}

func (t *tx) AddCartProductCount(_ context.Context, id string, delta int) error {
	if err := t.fail("AddCartProductCount"); err != nil {
		return err
	}
	c, ok := t.s.st.customers[id]
	if !ok {
		return store.ErrNotFound
	}
	c.CartProductCount = max(c.CartProductCount+delta, 0)
	t.s.st.customers[id] = c
	return nil
}

func (t *tx) ResetCartProductCount(_ context.Context, id string) error {
	if err := t.fail("ResetCartProductCount"); err != nil {
		return err
	}
	c, ok := t.s.st.customers[id]
	if !ok {
		return store.ErrNotFound
	}
	c.CartProductCount = 0
	t.s.st.customers[id] = c
	return nil
}

func (t *tx) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	if err := t.fail("GetOrCreateCart"); err != nil {
		return domain.Cart{}, err
	}
	if id, ok := t.s.st.cartByUser[userID]; ok {
		return t.s.st.carts[id], nil
	}
	now := time.Now()
	c := domain.Cart{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	t.s.st.carts[c.ID] = c
	t.s.st.cartByUser[userID] = c.ID
	return c, nil
}

func (t *tx) FindCartByUser(_ context.Context, userID string) (domain.Cart, error) {
	if err := t.fail("FindCartByUser"); err != nil {
		return domain.Cart{}, err
	}
	id, ok := t.s.st.cartByUser[userID]
	if !ok {
		return domain.Cart{}, store.ErrNotFound
	}
	return t.s.st.carts[id], nil
}

func (t *tx) GetCart(_ context.Context, cartID string) (domain.Cart, error) {
	if err := t.fail("GetCart"); err != nil {
		return domain.Cart{}, err
	}
	if _, ok := t.s.st.carts[cartID]; !ok {
		return domain.Cart{}, store.ErrNotFound
	}
	return t.loadCart(cartID), nil
}

func (t *tx) loadCart(cartID string) domain.Cart {
	c := t.s.st.carts[cartID]
	c.Items = nil
	c.Reservations = nil
	for _, it := range t.s.st.items {
		if it.CartID == cartID {
			c.Items = append(c.Items, it)
		}
	}
	sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ProductID < c.Items[j].ProductID })
	for k, q := range t.s.st.reservations {
		if k.cartID == cartID {
			c.Reservations = append(c.Reservations, domain.Reservation{CartID: k.cartID, ProductID: k.productID, Size: k.size, Qty: q})
		}
	}
	sortReservations(c.Reservations)
	return c
}

func sortReservations(rs []domain.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].ProductID != rs[j].ProductID {
			return rs[i].ProductID < rs[j].ProductID
		}
		return rs[i].Size < rs[j].Size
	})
}

func (t *tx) findItem(cartID, productID string) (domain.CartItem, bool) {
	for _, it := range t.s.st.items {
		if it.CartID == cartID && it.ProductID == productID {
			return it, true
		}
	}
	return domain.CartItem{}, false
}

func (t *tx) UpsertCartItem(_ context.Context, cartID, productID string, delta int) (domain.CartItem, bool, error) {
	if err := t.fail("UpsertCartItem"); err != nil {
		return domain.CartItem{}, false, err
	}
	if it, ok := t.findItem(cartID, productID); ok {
		it.Quantity += delta
		it.AddedAt = time.Now()
		t.s.st.items[it.ID] = it
		return it, false, nil
	}
	it := domain.CartItem{ID: uuid.NewString(), CartID: cartID, ProductID: productID, Quantity: delta, AddedAt: time.Now()}
	t.s.st.items[it.ID] = it
	return it, true, nil
}

func (t *tx) LockCartItem(_ context.Context, cartID, productID string) (domain.CartItem, error) {
	if err := t.fail("LockCartItem"); err != nil {
		return domain.CartItem{}, err
	}
	it, ok := t.findItem(cartID, productID)
	if !ok {
		return domain.CartItem{}, store.ErrNotFound
	}
	return it, nil
}

func (t *tx) SetCartItemQuantity(_ context.Context, itemID string, qty int) error {
	if err := t.fail("SetCartItemQuantity"); err != nil {
		return err
	}
	it, ok := t.s.st.items[itemID]
	if !ok {
		return store.ErrNotFound
	}
	it.Quantity = qty
	t.s.st.items[itemID] = it
	return nil
}

func (t *tx) DeleteCartItem(_ context.Context, cartID, productID string) (int64, error) {
	if err := t.fail("DeleteCartItem"); err != nil {
		return 0, err
	}
	var n int64
	for id, it := range t.s.st.items {
		if it.CartID == cartID && it.ProductID == productID {
			delete(t.s.st.items, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) DeleteCartItems(_ context.Context, cartID string) (int64, error) {
	if err := t.fail("DeleteCartItems"); err != nil {
		return 0, err
	}
	var n int64
	for id, it := range t.s.st.items {
		if it.CartID == cartID {
			delete(t.s.st.items, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) ListReservations(_ context.Context, cartID, productID string) ([]domain.Reservation, error) {
	if err := t.fail("ListReservations"); err != nil {
		return nil, err
	}
	var out []domain.Reservation
	for k, q := range t.s.st.reservations {
		if k.cartID == cartID && k.productID == productID {
			out = append(out, domain.Reservation{CartID: cartID, ProductID: productID, Size: k.size, Qty: q})
		}
	}
	sortReservations(out)
	return out, nil
}

func (t *tx) AddReservation(_ context.Context, r domain.Reservation) error {
	if err := t.fail("AddReservation"); err != nil {
		return err
	}
	k := resKey{r.CartID, r.ProductID, r.Size}
	q := t.s.st.reservations[k] + r.Qty
	if q < 0 {
		return store.ErrReservationUnderflow
	}
	if q == 0 {
		delete(t.s.st.reservations, k)
		return nil
	}
	t.s.st.reservations[k] = q
	return nil
}

func (t *tx) DeleteReservations(_ context.Context, cartID, productID string) error {
	if err := t.fail("DeleteReservations"); err != nil {
		return err
	}
	for k := range t.s.st.reservations {
		if k.cartID == cartID && k.productID == productID {
			delete(t.s.st.reservations, k)
		}
	}
	return nil
}

func (t *tx) DeleteCartReservations(_ context.Context, cartID string) error {
	if err := t.fail("DeleteCartReservations"); err != nil {
		return err
	}
	for k := range t.s.st.reservations {
		if k.cartID == cartID {
			delete(t.s.st.reservations, k)
		}
	}
	return nil
}

func (t *tx) InsertOrder(_ context.Context, o domain.Order) error {
	if err := t.fail("InsertOrder"); err != nil {
		return err
	}
	t.s.st.orders[o.ID] = o
	t.s.st.orderByGateway[o.GatewayOrderID] = o.ID
	return nil
}

func (t *tx) GetOrder(_ context.Context, id string) (domain.Order, error) {
	if err := t.fail("GetOrder"); err != nil {
		return domain.Order{}, err
	}
	o, ok := t.s.st.orders[id]
	if !ok {
		return domain.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (t *tx) LockOrderByGatewayID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	if err := t.fail("LockOrderByGatewayID"); err != nil {
		return domain.Order{}, err
	}
	id, ok := t.s.st.orderByGateway[gatewayOrderID]
	if !ok {
		return domain.Order{}, store.ErrNotFound
	}
	return t.GetOrder(ctx, id)
}

func (t *tx) MarkOrderPaid(_ context.Context, orderID, paymentID string, paidAt time.Time) error {
	if err := t.fail("MarkOrderPaid"); err != nil {
		return err
	}
	o, ok := t.s.st.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	pid := paymentID
	o.PaymentID = &pid
	o.PaymentStatus = domain.PaymentCompleted
	o.OrderStatus = domain.OrderProcessing
	o.PaidAt = &paidAt
	o.UpdatedAt = paidAt
	t.s.st.orders[orderID] = o
	return nil
}

func (s *Store) PutOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.orders[o.ID] = o
	s.st.orderByGateway[o.GatewayOrderID] = o.ID
}
