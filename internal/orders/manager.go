// Package orders turns carts into gateway-backed orders and marks them paid
// once the gateway's signature checks out.
package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/apperr"
	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/payment"
	"github.com/ariefcatur/go-realtime-checkout/internal/store"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-realtime-checkout/internal/orders")

var (
	errCartNotFound     = apperr.NotFound("Cart not found")
	errCustomerNotFound = apperr.NotFound("Customer not found")
	errOrderNotFound    = apperr.NotFound("Order not found")
)

// maxReceiptLen is the longest receipt the gateway accepts.
const maxReceiptLen = 40

type ManagerConfig struct {
	Currency     string
	GatewayKeyID string // public key id handed to the payment UI
	ServiceName  string
}

type Manager struct {
	store   store.Store
	gateway payment.Gateway
	events  Publisher
	cfg     ManagerConfig
	log     *zap.Logger
}

func NewManager(st store.Store, gw payment.Gateway, events Publisher, cfg ManagerConfig, log *zap.Logger) *Manager {
	return &Manager{store: st, gateway: gw, events: events, cfg: cfg, log: log}
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Checkout is what the payment UI needs to collect a payment for Order.
type Checkout struct {
	Order        domain.Order
	Customer     Contact
	GatewayKeyID string
}

func receiptFor(cartID string) string {
	r := "receipt_" + cartID
	if len(r) > maxReceiptLen {
		r = r[:maxReceiptLen]
	}
	return r
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	return err
}

// CreateOrder validates the cart and the client's total, creates the gateway
// order and then persists the local PENDING order. No local row is written
// unless the gateway created its order.
func (m *Manager) CreateOrder(ctx context.Context, cartID, customerID string, totalAmount decimal.Decimal) (Checkout, error) {
	ctx, span := tracer.Start(ctx, "orders.create")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", cartID), attribute.String("customer.id", customerID))

	if cartID == "" || customerID == "" {
		return Checkout{}, fail(span, apperr.Validation("Cart and customer are required"))
	}

	var (
		customer domain.Customer
		total    decimal.Decimal
	)
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cart, err := tx.GetCart(ctx, cartID)
		if err != nil {
			return apperr.Wrap(err, "get cart", errCartNotFound)
		}
		if cart.UserID != customerID {
			return errCartNotFound
		}
		if len(cart.Items) == 0 {
			return apperr.Validation("Cart is empty")
		}

		customer, err = tx.GetCustomer(ctx, customerID)
		if err != nil {
			return apperr.Wrap(err, "get customer", errCustomerNotFound)
		}
		if missing := customer.MissingProfileFields(); len(missing) > 0 {
			return apperr.Validation("Please complete your profile: missing %s", strings.Join(missing, ", "))
		}

		total = decimal.Zero
		for _, it := range cart.Items {
			p, err := tx.GetProduct(ctx, it.ProductID)
			if err != nil {
				return apperr.Wrap(err, "get product", apperr.NotFound("Product %s not found", it.ProductID))
			}
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		return nil
	})
	if err != nil {
		return Checkout{}, fail(span, apperr.Wrap(err, "load checkout", nil))
	}

	if !totalAmount.IsPositive() {
		return Checkout{}, fail(span, apperr.Validation("Total amount must be greater than zero"))
	}
	if !totalAmount.Equal(total) {
		m.log.Warn("client total does not match cart",
			zap.String("cart_id", cartID),
			zap.String("client_total", totalAmount.String()),
			zap.String("server_total", total.String()),
		)
		return Checkout{}, fail(span, apperr.Validation("Total amount mismatch"))
	}

	gwOrder, err := m.gateway.CreateOrder(ctx, payment.CreateOrderRequest{
		Amount:         payment.MinorUnits(total),
		Currency:       m.cfg.Currency,
		Receipt:        receiptFor(cartID),
		PaymentCapture: true,
	})
	if err != nil {
		m.log.Error("gateway order creation failed", zap.String("cart_id", cartID), zap.Error(err))
		return Checkout{}, fail(span, apperr.Gateway("Payment gateway is unavailable, please try again", err))
	}
	span.SetAttributes(attribute.String("gateway.order_id", gwOrder.ID))

	now := time.Now().UTC()
	order := domain.Order{
		ID:             uuid.NewString(),
		CartID:         cartID,
		CustomerID:     customerID,
		TotalAmount:    total,
		Currency:       m.cfg.Currency,
		GatewayOrderID: gwOrder.ID,
		PaymentStatus:  domain.PaymentPending,
		OrderStatus:    domain.OrderPending,
		OrderDate:      now,
		UpdatedAt:      now,
	}
	err = m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		// The gateway order now has no local row; it expires unpaid.
		m.log.Error("persisting order failed after gateway order was created",
			zap.String("cart_id", cartID),
			zap.String("gateway_order_id", gwOrder.ID),
			zap.Error(err),
		)
		return Checkout{}, fail(span, apperr.Wrap(err, "insert order", nil))
	}

	publish(ctx, m.events, m.cfg.ServiceName, EventOrderCreated, order.ID, OrderCreatedPayload{
		OrderID:        order.ID,
		CartID:         order.CartID,
		CustomerID:     order.CustomerID,
		GatewayOrderID: order.GatewayOrderID,
		TotalAmount:    order.TotalAmount.StringFixed(2),
		Currency:       order.Currency,
	})

	m.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("cart_id", cartID),
		zap.String("gateway_order_id", order.GatewayOrderID),
		zap.String("total", total.StringFixed(2)),
	)
	return Checkout{
		Order:        order,
		Customer:     Contact{Name: customer.Name, Email: customer.Email, Phone: customer.Phone},
		GatewayKeyID: m.cfg.GatewayKeyID,
	}, nil
}

func (m *Manager) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, apperr.Validation("Order id is required")
	}
	var out domain.Order
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		out = o
		return apperr.Wrap(err, "get order", errOrderNotFound)
	})
	if err != nil {
		return domain.Order{}, apperr.Wrap(err, "get order transaction", nil)
	}
	return out, nil
}
