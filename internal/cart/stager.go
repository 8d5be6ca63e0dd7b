package cart

import (
	"context"

	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
)

// Stager records the raw add-to-cart request before the relational write.
// It is never read back; a failure must not affect the cart.
type Stager interface {
	Stage(ctx context.Context, userID, productID string, lines []domain.Line) error
}

type NopStager struct{}

func (NopStager) Stage(context.Context, string, string, []domain.Line) error { return nil }
