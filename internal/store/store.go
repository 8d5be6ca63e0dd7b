// Package store is the persistence port shared by the cart, inventory and
// order components. Every mutation runs inside Store.InTx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrReservationUnderflow is returned when a release exceeds the units a reservation holds.
	ErrReservationUnderflow = errors.New("store: reservation would go negative")
)

type Store interface {
	// InTx runs fn in one transaction. A non-nil error from fn, or a
	// cancelled ctx, rolls back every write made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	// LockProduct reads the product row and holds its lock until the transaction ends.
	LockProduct(ctx context.Context, productID string) (domain.Product, error)
	SaveProductStock(ctx context.Context, p domain.Product) error

	GetCustomer(ctx context.Context, customerID string) (domain.Customer, error)
	AddCartProductCount(ctx context.Context, customerID string, delta int) error
	ResetCartProductCount(ctx context.Context, customerID string) error

	GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error)
	FindCartByUser(ctx context.Context, userID string) (domain.Cart, error)
	// GetCart loads the cart with its items and reservations.
	GetCart(ctx context.Context, cartID string) (domain.Cart, error)

	// UpsertCartItem adds delta to the (cart, product) row, creating it when absent.
	UpsertCartItem(ctx context.Context, cartID, productID string, delta int) (item domain.CartItem, created bool, err error)
	LockCartItem(ctx context.Context, cartID, productID string) (domain.CartItem, error)
	SetCartItemQuantity(ctx context.Context, itemID string, qty int) error
	DeleteCartItem(ctx context.Context, cartID, productID string) (int64, error)
	DeleteCartItems(ctx context.Context, cartID string) (int64, error)

	ListReservations(ctx context.Context, cartID, productID string) ([]domain.Reservation, error)
	// AddReservation adds r.Qty (which may be negative) to the row; rows reaching
	// zero are removed and going below zero is ErrReservationUnderflow.
	AddReservation(ctx context.Context, r domain.Reservation) error
	DeleteReservations(ctx context.Context, cartID, productID string) error
	DeleteCartReservations(ctx context.Context, cartID string) error

	InsertOrder(ctx context.Context, o domain.Order) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	LockOrderByGatewayID(ctx context.Context, gatewayOrderID string) (domain.Order, error)
	MarkOrderPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) error
}
