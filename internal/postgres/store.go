package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/store"
)

type Store struct{ DB *pgxpool.Pool }

var _ store.Store = (*Store)(nil)

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct{ tx pgx.Tx }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

func (t *pgTx) loadProduct(ctx context.Context, id string, lock bool) (domain.Product, error) {
	q := `SELECT id, name, price::text, inventory, in_stock, created_at, updated_at FROM products WHERE id=$1`
	if lock {
		q += ` FOR UPDATE`
	}
	var (
		p     domain.Product
		price string
	)
	err := t.tx.QueryRow(ctx, q, id).Scan(&p.ID, &p.Name, &price, &p.Inventory, &p.InStock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, notFound(err)
	}
	if p.Price, err = parseDecimal(price); err != nil {
		return p, err
	}

	sq := `SELECT size, stock FROM product_sizes WHERE product_id=$1`
	if lock {
		sq += ` FOR UPDATE`
	}
	rows, err := t.tx.Query(ctx, sq, id)
	if err != nil {
		return p, err
	}
	defer rows.Close()
	p.Sizes = map[domain.Size]int{}
	for rows.Next() {
		var (
			size  string
			stock int
		)
		if err := rows.Scan(&size, &stock); err != nil {
			return p, err
		}
		p.Sizes[domain.Size(size)] = stock
	}
	return p, rows.Err()
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return t.loadProduct(ctx, id, false)
}

func (t *pgTx) LockProduct(ctx context.Context, id string) (domain.Product, error) {
	return t.loadProduct(ctx, id, true)
}

func (t *pgTx) SaveProductStock(ctx context.Context, p domain.Product) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET inventory=$2, in_stock=$3, updated_at=now() WHERE id=$1`,
		p.ID, p.Inventory, p.InStock)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return store.ErrNotFound
	}
	for size, stock := range p.Sizes {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO product_sizes(product_id, size, stock) VALUES ($1,$2,$3)
			ON CONFLICT (product_id, size) DO UPDATE SET stock = EXCLUDED.stock`,
			p.ID, string(size), stock); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	var c domain.Customer
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, email, phone, cart_product_count FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CartProductCount)
	return c, notFound(err)
}

func (t *pgTx) AddCartProductCount(ctx context.Context, id string, delta int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE customers SET cart_product_count = GREATEST(cart_product_count + $2, 0) WHERE id=$1`, id, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) ResetCartProductCount(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `UPDATE customers SET cart_product_count = 0 WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	var c domain.Cart
	// DO UPDATE so RETURNING yields the existing row on conflict.
	err := t.tx.QueryRow(ctx, `
		INSERT INTO carts(id, user_id) VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = carts.updated_at
		RETURNING id, user_id, created_at, updated_at`, uuid.NewString(), userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (t *pgTx) FindCartByUser(ctx context.Context, userID string) (domain.Cart, error) {
	var c domain.Cart
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id=$1`, userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	return c, notFound(err)
}

func (t *pgTx) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	var c domain.Cart
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, created_at, updated_at FROM carts WHERE id=$1`, cartID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, notFound(err)
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, cart_id, product_id, quantity, added_at FROM cart_items
		WHERE cart_id=$1 ORDER BY product_id`, cartID)
	if err != nil {
		return c, err
	}
	c.Items, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.CartItem, error) {
		var it domain.CartItem
		err := r.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.AddedAt)
		return it, err
	})
	if err != nil {
		return c, err
	}

	c.Reservations, err = t.reservations(ctx, `
		SELECT cart_id, product_id, size, qty FROM reservations
		WHERE cart_id=$1 ORDER BY product_id, size`, cartID)
	return c, err
}

func (t *pgTx) reservations(ctx context.Context, q string, args ...any) ([]domain.Reservation, error) {
	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Reservation, error) {
		var (
			res  domain.Reservation
			size string
		)
		err := r.Scan(&res.CartID, &res.ProductID, &size, &res.Qty)
		res.Size = domain.Size(size)
		return res, err
	})
}

func (t *pgTx) UpsertCartItem(ctx context.Context, cartID, productID string, delta int) (domain.CartItem, bool, error) {
	var (
		it      domain.CartItem
		created bool
	)
	// xmax = 0 only for a freshly inserted row.
	err := t.tx.QueryRow(ctx, `
		INSERT INTO cart_items(id, cart_id, product_id, quantity) VALUES ($1,$2,$3,$4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, added_at = now()
		RETURNING id, cart_id, product_id, quantity, added_at, (xmax = 0)`,
		uuid.NewString(), cartID, productID, delta).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.AddedAt, &created)
	return it, created, err
}

func (t *pgTx) LockCartItem(ctx context.Context, cartID, productID string) (domain.CartItem, error) {
	var it domain.CartItem
	err := t.tx.QueryRow(ctx, `
		SELECT id, cart_id, product_id, quantity, added_at FROM cart_items
		WHERE cart_id=$1 AND product_id=$2 FOR UPDATE`, cartID, productID).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.AddedAt)
	return it, notFound(err)
}

func (t *pgTx) SetCartItemQuantity(ctx context.Context, itemID string, qty int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE cart_items SET quantity=$2 WHERE id=$1`, itemID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteCartItem(ctx context.Context, cartID, productID string) (int64, error) {
	ct, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1 AND product_id=$2`, cartID, productID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (t *pgTx) DeleteCartItems(ctx context.Context, cartID string) (int64, error) {
	ct, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (t *pgTx) ListReservations(ctx context.Context, cartID, productID string) ([]domain.Reservation, error) {
	return t.reservations(ctx, `
		SELECT cart_id, product_id, size, qty FROM reservations
		WHERE cart_id=$1 AND product_id=$2 ORDER BY size`, cartID, productID)
}

func (t *pgTx) AddReservation(ctx context.Context, r domain.Reservation) error {
	var qty int
	err := t.tx.QueryRow(ctx, `
		SELECT qty FROM reservations WHERE cart_id=$1 AND product_id=$2 AND size=$3 FOR UPDATE`,
		r.CartID, r.ProductID, string(r.Size)).Scan(&qty)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	qty += r.Qty
	if qty < 0 {
		return store.ErrReservationUnderflow
	}
	if qty == 0 {
		_, err := t.tx.Exec(ctx, `
			DELETE FROM reservations WHERE cart_id=$1 AND product_id=$2 AND size=$3`,
			r.CartID, r.ProductID, string(r.Size))
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO reservations(cart_id, product_id, size, qty) VALUES ($1,$2,$3,$4)
		ON CONFLICT (cart_id, product_id, size) DO UPDATE SET qty = EXCLUDED.qty`,
		r.CartID, r.ProductID, string(r.Size), qty)
	return err
}

func (t *pgTx) DeleteReservations(ctx context.Context, cartID, productID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM reservations WHERE cart_id=$1 AND product_id=$2`, cartID, productID)
	return err
}

func (t *pgTx) DeleteCartReservations(ctx context.Context, cartID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM reservations WHERE cart_id=$1`, cartID)
	return err
}

func (t *pgTx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, cart_id, customer_id, total_amount, currency, gateway_order_id,
		                   payment_status, order_status, order_date, updated_at)
		VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.CartID, o.CustomerID, o.TotalAmount.String(), o.Currency, o.GatewayOrderID,
		string(o.PaymentStatus), string(o.OrderStatus), o.OrderDate, o.UpdatedAt)
	return err
}

const orderColumns = `id, cart_id, customer_id, total_amount::text, currency, gateway_order_id,
	payment_id, payment_status, order_status, order_date, paid_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o              domain.Order
		total, ps, ost string
	)
	err := row.Scan(&o.ID, &o.CartID, &o.CustomerID, &total, &o.Currency, &o.GatewayOrderID,
		&o.PaymentID, &ps, &ost, &o.OrderDate, &o.PaidAt, &o.UpdatedAt)
	if err != nil {
		return o, notFound(err)
	}
	o.PaymentStatus = domain.PaymentStatus(ps)
	o.OrderStatus = domain.OrderStatus(ost)
	o.TotalAmount, err = parseDecimal(total)
	return o, err
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

func (t *pgTx) LockOrderByGatewayID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	return scanOrder(t.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE gateway_order_id=$1 FOR UPDATE`, gatewayOrderID))
}

func (t *pgTx) MarkOrderPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET payment_id=$2, payment_status=$3, order_status=$4, paid_at=$5, updated_at=$5
		WHERE id=$1`,
		orderID, paymentID, string(domain.PaymentCompleted), string(domain.OrderProcessing), paidAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return store.ErrNotFound
	}
	return nil
}

// SeedProduct inserts or replaces a product and its size stock. Used by
// checkoutctl and the integration tests.
func (s *Store) SeedProduct(ctx context.Context, p domain.Product) error {
	p = p.Clone()
	p.Recompute()
	return s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		pt := tx.(*pgTx)
		if _, err := pt.tx.Exec(ctx, `
			INSERT INTO products(id, name, price, inventory, in_stock) VALUES ($1,$2,$3::numeric,$4,$5)
			ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, price=EXCLUDED.price,
				inventory=EXCLUDED.inventory, in_stock=EXCLUDED.in_stock, updated_at=now()`,
			p.ID, p.Name, p.Price.String(), p.Inventory, p.InStock); err != nil {
			return err
		}
		return tx.SaveProductStock(ctx, p)
	})
}

func (s *Store) SeedCustomer(ctx context.Context, c domain.Customer) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO customers(id, name, email, phone) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, email=EXCLUDED.email, phone=EXCLUDED.phone`,
		c.ID, c.Name, c.Email, c.Phone)
	return err
}
