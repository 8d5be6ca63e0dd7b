// Package inventory owns every write to product stock. Stock is decremented
// only by Reserve and ReserveProduct, always under the product row lock.
package inventory

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/apperr"
	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/store"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-realtime-checkout/internal/inventory")

var errProductNotFound = apperr.NotFound("Product not found")

type Ledger struct {
	store store.Store
	log   *zap.Logger
}

func NewLedger(st store.Store, log *zap.Logger) *Ledger {
	return &Ledger{store: st, log: log}
}

func checkAvailable(p domain.Product, qty int) error {
	if !p.InStock || p.Inventory <= 0 {
		return apperr.Validation("Out of stock")
	}
	if p.Inventory < qty {
		return apperr.Validation("Only %d items available in stock", p.Inventory)
	}
	return nil
}

// Reserve takes qty units of one size of productID inside tx. The product
// row stays locked until tx ends.
func (l *Ledger) Reserve(ctx context.Context, tx store.Tx, productID string, size domain.Size, qty int) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, apperr.Validation("Quantity must be greater than zero")
	}
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, apperr.Wrap(err, "lock product", errProductNotFound)
	}
	if err := checkAvailable(p, qty); err != nil {
		return domain.Product{}, err
	}
	switch avail := p.Sizes[size]; {
	case avail == 0:
		return domain.Product{}, apperr.Validation("Size %s is out of stock", size)
	case avail < qty:
		return domain.Product{}, apperr.Validation("Only %d items available in size %s", avail, size)
	}

	p.Sizes[size] -= qty
	p.Inventory -= qty
	p.InStock = p.Inventory > 0
	if err := tx.SaveProductStock(ctx, p); err != nil {
		return domain.Product{}, apperr.Wrap(err, "save product stock", errProductNotFound)
	}
	return p, nil
}

// Lock takes productID's row lock inside tx. Callers that read cart
// reservations for the product must hold it first.
func (l *Ledger) Lock(ctx context.Context, tx store.Tx, productID string) error {
	_, err := tx.LockProduct(ctx, productID)
	return apperr.Wrap(err, "lock product", errProductNotFound)
}

// Release gives qty units of size back to productID inside tx.
func (l *Ledger) Release(ctx context.Context, tx store.Tx, productID string, size domain.Size, qty int) error {
	if qty <= 0 {
		return nil
	}
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return apperr.Wrap(err, "lock product", errProductNotFound)
	}
	if p.Sizes == nil {
		p.Sizes = map[domain.Size]int{}
	}
	p.Sizes[size] += qty
	p.Inventory += qty
	p.InStock = p.Inventory > 0
	return apperr.Wrap(tx.SaveProductStock(ctx, p), "save product stock", errProductNotFound)
}

// ReserveProduct reserves qty units of productID's aggregate stock in its own
// transaction, drawing from sizes in catalog order.
func (l *Ledger) ReserveProduct(ctx context.Context, productID string, qty int) (domain.Product, error) {
	ctx, span := tracer.Start(ctx, "inventory.reserve")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int("inventory.quantity", qty))

	if qty <= 0 {
		return domain.Product{}, apperr.Validation("Quantity must be greater than zero")
	}

	var out domain.Product
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return apperr.Wrap(err, "lock product", errProductNotFound)
		}
		if err := checkAvailable(p, qty); err != nil {
			return err
		}
		remaining := qty
		for _, s := range domain.Sizes {
			if remaining == 0 {
				break
			}
			take := min(p.Sizes[s], remaining)
			if take > 0 {
				p.Sizes[s] -= take
				remaining -= take
			}
		}
		p.Inventory -= qty
		p.InStock = p.Inventory > 0
		if err := tx.SaveProductStock(ctx, p); err != nil {
			return apperr.Wrap(err, "save product stock", errProductNotFound)
		}
		out = p
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve failed")
		return domain.Product{}, apperr.Wrap(err, "reserve transaction", nil)
	}
	span.SetAttributes(attribute.Int("inventory.remaining", out.Inventory), attribute.Bool("inventory.in_stock", out.InStock))
	l.log.Debug("stock reserved",
		zap.String("product_id", productID),
		zap.Int("quantity", qty),
		zap.Int("remaining", out.Inventory),
	)
	return out, nil
}

// SetStock overwrites the stock of one size and recomputes the aggregate.
func (l *Ledger) SetStock(ctx context.Context, productID string, size domain.Size, qty int) (domain.Product, error) {
	if qty < 0 {
		return domain.Product{}, apperr.Validation("Stock cannot be negative")
	}
	var out domain.Product
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return apperr.Wrap(err, "lock product", errProductNotFound)
		}
		if p.Sizes == nil {
			p.Sizes = map[domain.Size]int{}
		}
		p.Sizes[size] = qty
		p.Recompute()
		out = p
		return apperr.Wrap(tx.SaveProductStock(ctx, p), "save product stock", errProductNotFound)
	})
	if err != nil {
		return domain.Product{}, apperr.Wrap(err, "set stock transaction", nil)
	}
	l.log.Info("stock set",
		zap.String("product_id", productID),
		zap.String("size", string(size)),
		zap.Int("quantity", qty),
		zap.Int("inventory", out.Inventory),
	)
	return out, nil
}
