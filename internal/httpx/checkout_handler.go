package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/apperr"
	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/payment"
	"github.com/ariefcatur/go-realtime-checkout/internal/redisx"
)

type OrderService interface {
	CreateOrder(ctx context.Context, cartID, customerID string, totalAmount decimal.Decimal) (orders.Checkout, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, gatewayOrderID, paymentID, signature string) (orders.Verification, error)
}

type StatusCache interface {
	Put(ctx context.Context, s redisx.OrderStatus) error
	Get(ctx context.Context, orderID string) (redisx.OrderStatus, bool, error)
}

type CheckoutHandler struct {
	Orders   OrderService
	Verifier PaymentVerifier
	Status   StatusCache
	Log      *zap.Logger
}

type createOrderReq struct {
	CartID      string          `json:"cart_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type checkoutView struct {
	OrderID        string         `json:"order_id"`
	GatewayOrderID string         `json:"gateway_order_id"`
	Amount         int64          `json:"amount"` // minor units, as the payment UI expects
	Currency       string         `json:"currency"`
	KeyID          string         `json:"key_id"`
	Customer       orders.Contact `json:"customer"`
}

type verifyReq struct {
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id"`
	Signature      string `json:"signature"`
	CartID         string `json:"cart_id"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/checkout/orders", h.createOrder)
		r.Post("/checkout/verify", h.verifyPayment)
		r.Get("/orders/{id}", h.getOrder)
	})
}

func (h *CheckoutHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	co, err := h.Orders.CreateOrder(ctx, req.CartID, userFrom(ctx), req.TotalAmount)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cache(ctx, co.Order)
	ok(w, http.StatusCreated, "Order created", checkoutView{
		OrderID:        co.Order.ID,
		GatewayOrderID: co.Order.GatewayOrderID,
		Amount:         payment.MinorUnits(co.Order.TotalAmount),
		Currency:       co.Order.Currency,
		KeyID:          co.GatewayKeyID,
		Customer:       co.Customer,
	})
}

func (h *CheckoutHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if req.CartID == "" {
		writeError(w, h.Log, apperr.Validation("Missing payment verification fields"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Verifier.VerifyPayment(ctx, req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if res.Order.CartID != req.CartID {
		h.Log.Warn("payment callback cart does not match order",
			zap.String("order_id", res.Order.ID),
			zap.String("order_cart_id", res.Order.CartID),
			zap.String("callback_cart_id", req.CartID),
		)
	}
	h.cache(ctx, res.Order)

	msg := "Payment verified"
	if res.AlreadyVerified {
		msg = "Payment already verified"
	}
	ok(w, http.StatusOK, msg, redisx.StatusOf(res.Order))
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	user := userFrom(ctx)

	// 1) cache
	if s, hit, err := h.Status.Get(ctx, orderID); err != nil {
		h.Log.Warn("order status cache read failed", zap.String("order_id", orderID), zap.Error(err))
	} else if hit {
		if s.CustomerID != user {
			writeError(w, h.Log, apperr.NotFound("Order not found"))
			return
		}
		ok(w, http.StatusOK, "Order fetched", s)
		return
	}

	// 2) fallback DB
	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if o.CustomerID != user {
		writeError(w, h.Log, apperr.NotFound("Order not found"))
		return
	}
	h.cache(ctx, o)
	ok(w, http.StatusOK, "Order fetched", redisx.StatusOf(o))
}

func (h *CheckoutHandler) cache(ctx context.Context, o domain.Order) {
	if err := h.Status.Put(ctx, redisx.StatusOf(o)); err != nil {
		h.Log.Warn("order status cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}
