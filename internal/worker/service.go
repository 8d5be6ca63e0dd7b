// Package worker reacts to payment events: once an order is paid the
// customer's cart is emptied.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/apperr"
	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
)

type CartClearer interface {
	ClearCart(ctx context.Context, cartID string) error
}

type Claimer interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Service struct {
	Carts CartClearer
	Dedup Claimer
	Log   *zap.Logger
}

// HandlePaymentVerified is installed as the consumer handler.
func (s *Service) HandlePaymentVerified(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message: retrying cannot fix it
		s.Log.Error("drop undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventPaymentVerified {
		return nil
	}
	log := s.Log.With(zap.String("event_id", env.EventID), zap.String("order_id", env.CorrelationID))

	p, err := kafkax.UnwrapPayload[orders.PaymentVerifiedPayload](env.Payload)
	if err != nil {
		log.Error("drop event with bad payload", zap.Error(err))
		return nil
	}

	fresh, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("claim event %s: %w", env.EventID, err)
	}
	if !fresh {
		log.Debug("duplicate event skipped")
		return nil
	}

	if p.CartID == "" {
		log.Warn("payment event without cart id")
		return nil
	}

	err = s.Carts.ClearCart(ctx, p.CartID)
	switch {
	case err == nil:
		log.Info("cart cleared after payment", zap.String("cart_id", p.CartID))
		return nil
	case apperr.IsKind(err, apperr.KindNotFound):
		log.Info("cart already gone", zap.String("cart_id", p.CartID))
		return nil
	default:
		if ferr := s.Dedup.Forget(ctx, env.EventID); ferr != nil {
			log.Warn("release dedup claim", zap.Error(ferr))
		}
		return fmt.Errorf("clear cart %s: %w", p.CartID, err)
	}
}
