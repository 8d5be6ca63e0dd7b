package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/go-realtime-checkout/internal/store"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("Only %d items available in stock", 5)))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrapped: %w", NotFound("Cart not found"))))
	assert.Equal(t, KindGateway, KindOf(Gateway("create order", errors.New("timeout"))))
	assert.Equal(t, KindDatabase, KindOf(errors.New("boom")))
}

func TestPublicMessage_HidesDatabaseDetails(t *testing.T) {
	err := Database("insert order", errors.New(`duplicate key value violates unique constraint "orders_pkey"`))
	assert.Equal(t, GenericMessage, PublicMessage(err))
	assert.Equal(t, GenericMessage, PublicMessage(errors.New("raw")))
	assert.Equal(t, "Invalid payment signature", PublicMessage(Validation("Invalid payment signature")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Gateway("create gateway order", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsKind(err, KindGateway))
	assert.False(t, IsKind(err, KindValidation))
}

func TestWrap(t *testing.T) {
	notFound := NotFound("Product not found")
	assert.Nil(t, Wrap(nil, "op", notFound))
	assert.Same(t, notFound, Wrap(fmt.Errorf("scan: %w", store.ErrNotFound), "op", notFound))

	v := Validation("Out of stock")
	assert.Same(t, v, Wrap(v, "op", notFound))

	err := Wrap(errors.New("conn reset"), "lock product", notFound)
	assert.True(t, IsKind(err, KindDatabase))
	assert.Contains(t, err.Error(), "lock product")
}
