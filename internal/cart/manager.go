// Package cart validates cart mutations and commits them, together with the
// matching inventory reservations, in one transaction.
package cart

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/apperr"
	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/inventory"
	"github.com/ariefcatur/go-realtime-checkout/internal/store"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-realtime-checkout/internal/cart")

var (
	errCartNotFound = apperr.NotFound("Cart not found")
	errItemNotFound = apperr.NotFound("Item not found in cart")
)

type Manager struct {
	store  store.Store
	ledger *inventory.Ledger
	stager Stager
	log    *zap.Logger
}

func NewManager(st store.Store, ledger *inventory.Ledger, stager Stager, log *zap.Logger) *Manager {
	if stager == nil {
		stager = NopStager{}
	}
	return &Manager{store: st, ledger: ledger, stager: stager, log: log}
}

func validateLines(lines []domain.Line) error {
	if len(lines) == 0 {
		return apperr.Validation("At least one size and quantity is required")
	}
	for _, ln := range lines {
		if ln.Quantity <= 0 {
			return apperr.Validation("Quantity must be greater than zero")
		}
		if !ln.Size.Valid() {
			return apperr.Validation("Invalid size %q", ln.Size)
		}
	}
	return nil
}

func validateIDs(userID, productID string) error {
	if userID == "" {
		return apperr.Validation("User is required")
	}
	if productID == "" {
		return apperr.Validation("Product is required")
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	return err
}

// AddToCart reserves stock for every line and adds their total to the
// user's cart item for productID, creating the cart and item as needed.
func (m *Manager) AddToCart(ctx context.Context, userID, productID string, lines []domain.Line) error {
	ctx, span := tracer.Start(ctx, "cart.add")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("product.id", productID), attribute.Int("cart.lines", len(lines)))

	if err := validateIDs(userID, productID); err != nil {
		return fail(span, err)
	}
	if err := validateLines(lines); err != nil {
		return fail(span, err)
	}

	if err := m.stager.Stage(ctx, userID, productID, lines); err != nil {
		m.log.Warn("staging order lines failed",
			zap.String("user_id", userID),
			zap.String("product_id", productID),
			zap.Error(err),
		)
	}

	created, err := m.addLines(ctx, userID, productID, lines)
	if err != nil {
		return fail(span, err)
	}
	if created {
		m.adjustCounter(ctx, userID, 1)
	}
	m.log.Info("added to cart",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("lines", len(lines)),
		zap.Bool("new_item", created),
	)
	return nil
}

// IncreaseItem adds one line to the cart item, creating it when absent.
func (m *Manager) IncreaseItem(ctx context.Context, userID, productID string, line domain.Line) error {
	ctx, span := tracer.Start(ctx, "cart.increase")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("product.id", productID))

	if err := validateIDs(userID, productID); err != nil {
		return fail(span, err)
	}
	lines := []domain.Line{line}
	if err := validateLines(lines); err != nil {
		return fail(span, err)
	}
	created, err := m.addLines(ctx, userID, productID, lines)
	if err != nil {
		return fail(span, err)
	}
	if created {
		m.adjustCounter(ctx, userID, 1)
	}
	return nil
}

func (m *Manager) addLines(ctx context.Context, userID, productID string, lines []domain.Line) (bool, error) {
	var created bool
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		total := 0
		for _, ln := range lines {
			if _, err := m.ledger.Reserve(ctx, tx, productID, ln.Size, ln.Quantity); err != nil {
				return err
			}
			total += ln.Quantity
		}

		cart, err := tx.GetOrCreateCart(ctx, userID)
		if err != nil {
			return apperr.Wrap(err, "get or create cart", nil)
		}
		if _, created, err = tx.UpsertCartItem(ctx, cart.ID, productID, total); err != nil {
			return apperr.Wrap(err, "upsert cart item", nil)
		}
		for _, ln := range lines {
			r := domain.Reservation{CartID: cart.ID, ProductID: productID, Size: ln.Size, Qty: ln.Quantity}
			if err := tx.AddReservation(ctx, r); err != nil {
				return apperr.Wrap(err, "add reservation", nil)
			}
		}
		return nil
	})
	if err != nil {
		return false, apperr.Wrap(err, "add to cart transaction", nil)
	}
	return created, nil
}

// RemoveItem deletes the user's item for productID and returns its reserved
// units to stock.
func (m *Manager) RemoveItem(ctx context.Context, userID, productID string) error {
	ctx, span := tracer.Start(ctx, "cart.remove")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("product.id", productID))

	if err := validateIDs(userID, productID); err != nil {
		return fail(span, err)
	}

	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		// Product row first, the same order AddToCart uses; the reservation
		// read below must not change until commit.
		if err := m.ledger.Lock(ctx, tx, productID); err != nil {
			return err
		}
		cart, err := tx.FindCartByUser(ctx, userID)
		if err != nil {
			return apperr.Wrap(err, "find cart", errCartNotFound)
		}
		held, err := tx.ListReservations(ctx, cart.ID, productID)
		if err != nil {
			return apperr.Wrap(err, "list reservations", nil)
		}
		for _, r := range held {
			if err := m.ledger.Release(ctx, tx, r.ProductID, r.Size, r.Qty); err != nil {
				return err
			}
		}
		n, err := tx.DeleteCartItem(ctx, cart.ID, productID)
		if err != nil {
			return apperr.Wrap(err, "delete cart item", nil)
		}
		if n == 0 {
			return errItemNotFound
		}
		return apperr.Wrap(tx.DeleteReservations(ctx, cart.ID, productID), "delete reservations", nil)
	})
	if err != nil {
		return fail(span, apperr.Wrap(err, "remove item transaction", nil))
	}
	m.adjustCounter(ctx, userID, -1)
	m.log.Info("removed from cart", zap.String("user_id", userID), zap.String("product_id", productID))
	return nil
}

// DecreaseItem gives back line.Quantity units of line.Size. An item left
// with no units is deleted rather than kept at zero.
func (m *Manager) DecreaseItem(ctx context.Context, userID, productID string, line domain.Line) error {
	ctx, span := tracer.Start(ctx, "cart.decrease")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("product.id", productID))

	if err := validateIDs(userID, productID); err != nil {
		return fail(span, err)
	}
	if err := validateLines([]domain.Line{line}); err != nil {
		return fail(span, err)
	}

	var removed bool
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := m.ledger.Lock(ctx, tx, productID); err != nil {
			return err
		}
		cart, err := tx.FindCartByUser(ctx, userID)
		if err != nil {
			return apperr.Wrap(err, "find cart", errCartNotFound)
		}
		res, err := tx.ListReservations(ctx, cart.ID, productID)
		if err != nil {
			return apperr.Wrap(err, "list reservations", nil)
		}
		if len(res) == 0 {
			return errItemNotFound
		}
		held := 0
		for _, r := range res {
			if r.Size == line.Size {
				held = r.Qty
			}
		}
		if held < line.Quantity {
			return apperr.Validation("Only %d items of size %s in cart", held, line.Size)
		}

		if err := m.ledger.Release(ctx, tx, productID, line.Size, line.Quantity); err != nil {
			return err
		}
		r := domain.Reservation{CartID: cart.ID, ProductID: productID, Size: line.Size, Qty: -line.Quantity}
		if err := tx.AddReservation(ctx, r); err != nil {
			return apperr.Wrap(err, "decrease reservation", nil)
		}

		item, err := tx.LockCartItem(ctx, cart.ID, productID)
		if err != nil {
			return apperr.Wrap(err, "lock cart item", errItemNotFound)
		}
		if left := item.Quantity - line.Quantity; left > 0 {
			return apperr.Wrap(tx.SetCartItemQuantity(ctx, item.ID, left), "set cart item quantity", nil)
		}
		removed = true
		_, err = tx.DeleteCartItem(ctx, cart.ID, productID)
		return apperr.Wrap(err, "delete cart item", nil)
	})
	if err != nil {
		return fail(span, apperr.Wrap(err, "decrease item transaction", nil))
	}
	if removed {
		m.adjustCounter(ctx, userID, -1)
	}
	return nil
}

// GetCart returns the user's cart; a user who never added anything gets an empty one.
func (m *Manager) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if userID == "" {
		return domain.Cart{}, apperr.Validation("User is required")
	}
	var out domain.Cart
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.FindCartByUser(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			out = domain.Cart{UserID: userID}
			return nil
		}
		if err != nil {
			return apperr.Wrap(err, "find cart", nil)
		}
		out, err = tx.GetCart(ctx, c.ID)
		return apperr.Wrap(err, "get cart", errCartNotFound)
	})
	if err != nil {
		return domain.Cart{}, apperr.Wrap(err, "get cart transaction", nil)
	}
	return out, nil
}

// ClearCart empties a paid cart. Reserved units are sold, so nothing is restocked.
func (m *Manager) ClearCart(ctx context.Context, cartID string) error {
	ctx, span := tracer.Start(ctx, "cart.clear")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", cartID))

	var owner string
	var cleared int64
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetCart(ctx, cartID)
		if err != nil {
			return apperr.Wrap(err, "get cart", errCartNotFound)
		}
		owner = c.UserID
		if cleared, err = tx.DeleteCartItems(ctx, cartID); err != nil {
			return apperr.Wrap(err, "delete cart items", nil)
		}
		return apperr.Wrap(tx.DeleteCartReservations(ctx, cartID), "delete cart reservations", nil)
	})
	if err != nil {
		return fail(span, apperr.Wrap(err, "clear cart transaction", nil))
	}

	err = m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.ResetCartProductCount(ctx, owner)
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		m.log.Warn("reset cart product count failed", zap.String("user_id", owner), zap.Error(err))
	}
	m.log.Info("cart cleared", zap.String("cart_id", cartID), zap.Int64("items", cleared))
	return nil
}

// adjustCounter updates the customer's cartProductCount hint outside the cart transaction.
func (m *Manager) adjustCounter(ctx context.Context, userID string, delta int) {
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AddCartProductCount(ctx, userID, delta)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		m.log.Debug("no customer row for cart counter", zap.String("user_id", userID))
	case err != nil:
		m.log.Warn("cart product count update failed",
			zap.String("user_id", userID),
			zap.Int("delta", delta),
			zap.Error(err),
		)
	}
}
