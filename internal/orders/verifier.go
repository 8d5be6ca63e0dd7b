package orders

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/apperr"
	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/payment"
	"github.com/ariefcatur/go-realtime-checkout/internal/store"
)

type Verifier struct {
	store   store.Store
	secret  string
	events  Publisher
	service string
	log     *zap.Logger
}

func NewVerifier(st store.Store, secret string, events Publisher, serviceName string, log *zap.Logger) *Verifier {
	return &Verifier{store: st, secret: secret, events: events, service: serviceName, log: log}
}

type Verification struct {
	Order domain.Order
	// AlreadyVerified is set when the order was paid by an earlier identical callback.
	AlreadyVerified bool
}

// VerifyPayment authenticates a payment callback and moves the order to
// COMPLETED/PROCESSING. Repeating a successful callback changes nothing and
// publishes nothing.
func (v *Verifier) VerifyPayment(ctx context.Context, gatewayOrderID, paymentID, signature string) (Verification, error) {
	ctx, span := tracer.Start(ctx, "orders.verify_payment")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.order_id", gatewayOrderID), attribute.String("gateway.payment_id", paymentID))

	if gatewayOrderID == "" || paymentID == "" || signature == "" {
		return Verification{}, fail(span, apperr.Validation("Missing payment verification fields"))
	}

	var res Verification
	err := v.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrderByGatewayID(ctx, gatewayOrderID)
		if err != nil {
			return apperr.Wrap(err, "lock order", errOrderNotFound)
		}
		if !payment.VerifySignature(v.secret, gatewayOrderID, paymentID, signature) {
			return apperr.Validation("Invalid payment signature")
		}

		if o.PaymentStatus == domain.PaymentCompleted {
			if o.PaymentID != nil && *o.PaymentID == paymentID {
				res = Verification{Order: o, AlreadyVerified: true}
				return nil
			}
			return apperr.Validation("Order already paid")
		}
		if !domain.CanTransitionPayment(o.PaymentStatus, domain.PaymentCompleted) {
			return apperr.Validation("Order cannot be paid in status %s", o.PaymentStatus)
		}

		now := time.Now().UTC()
		if err := tx.MarkOrderPaid(ctx, o.ID, paymentID, now); err != nil {
			return apperr.Wrap(err, "mark order paid", errOrderNotFound)
		}
		pid := paymentID
		o.PaymentID = &pid
		o.PaymentStatus = domain.PaymentCompleted
		o.OrderStatus = domain.OrderProcessing
		o.PaidAt = &now
		o.UpdatedAt = now
		res = Verification{Order: o}
		return nil
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindValidation) {
			v.log.Warn("payment verification rejected",
				zap.String("gateway_order_id", gatewayOrderID),
				zap.String("payment_id", paymentID),
				zap.Error(err),
			)
		}
		return Verification{}, fail(span, apperr.Wrap(err, "verify payment transaction", nil))
	}

	if res.AlreadyVerified {
		v.log.Info("payment already verified", zap.String("order_id", res.Order.ID), zap.String("payment_id", paymentID))
		return res, nil
	}

	o := res.Order
	publish(ctx, v.events, v.service, EventPaymentVerified, o.ID, PaymentVerifiedPayload{
		OrderID:        o.ID,
		CartID:         o.CartID,
		CustomerID:     o.CustomerID,
		GatewayOrderID: o.GatewayOrderID,
		PaymentID:      paymentID,
		TotalAmount:    o.TotalAmount.StringFixed(2),
	})
	v.log.Info("payment verified",
		zap.String("order_id", o.ID),
		zap.String("gateway_order_id", gatewayOrderID),
		zap.String("payment_id", paymentID),
	)
	return res, nil
}
