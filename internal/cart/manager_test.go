package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-checkout/internal/apperr"
	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/inventory"
	"github.com/ariefcatur/go-realtime-checkout/internal/store/memstore"
)

type recordingStager struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *recordingStager) Stage(context.Context, string, string, []domain.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func setup(t *testing.T) (*memstore.Store, *Manager, *recordingStager) {
	t.Helper()
	st := memstore.New()
	st.PutProduct(domain.Product{
		ID:    "p1",
		Name:  "Linen shirt",
		Price: decimal.NewFromInt(25),
		Sizes: map[domain.Size]int{domain.SizeS: 5, domain.SizeM: 5},
	})
	st.PutCustomer(domain.Customer{ID: "u1", Name: "Ana", Email: "ana@example.com", Phone: "+100"})
	stager := &recordingStager{}
	log := zap.NewNop()
	return st, NewManager(st, inventory.NewLedger(st, log), stager, log), stager
}

func lines(size domain.Size, qty int) []domain.Line {
	return []domain.Line{{Size: size, Quantity: qty}}
}

func TestAddToCart_Validation(t *testing.T) {
	_, m, stager := setup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		lines []domain.Line
	}{
		{"empty", nil},
		{"zero quantity", lines(domain.SizeM, 0)},
		{"negative quantity", lines(domain.SizeM, -2)},
		{"unknown size", lines(domain.Size("HUGE"), 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.AddToCart(ctx, "u1", "p1", tt.lines)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
		})
	}
	assert.Zero(t, stager.calls)
}

func TestAddToCart_SameLineTwiceSumsIntoOneItem(t *testing.T) {
	st, m, stager := setup(t)
	ctx := context.Background()

	require.NoError(t, m.AddToCart(ctx, "u1", "p1", lines(domain.SizeM, 2)))
	require.NoError(t, m.AddToCart(ctx, "u1", "p1", lines(domain.SizeM, 2)))

	cart, ok := st.CartOf("u1")
	require.True(t, ok)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 4, cart.Items[0].Quantity)
	require.Len(t, cart.Reservations, 1)
	assert.Equal(t, 4, cart.Reservations[0].Qty)
	assert.Equal(t, 2, stager.calls)

	p, _ := st.Product("p1")
	assert.Equal(t, 6, p.Inventory)
	assert.Equal(t, 1, p.Sizes[domain.SizeM])

	c, _ := st.Customer("u1")
	assert.Equal(t, 1, c.CartProductCount)
}

func TestAddToCart_MultipleSizes(t *testing.T) {
	st, m, _ := setup(t)

	err := m.AddToCart(context.Background(), "u1", "p1", []domain.Line{
		{Size: domain.SizeS, Quantity: 1},
		{Size: domain.SizeM, Quantity: 3},
	})
	require.NoError(t, err)

	cart, _ := st.CartOf("u1")
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 4, cart.Items[0].Quantity)
	assert.Len(t, cart.Reservations, 2)
}

func TestAddToCart_ProductNotFound(t *testing.T) {
	st, m, _ := setup(t)

	err := m.AddToCart(context.Background(), "u1", "nope", lines(domain.SizeM, 1))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, ok := st.CartOf("u1")
	assert.False(t, ok, "no cart is created for a failed add")
}

func TestAddToCart_InsufficientStockRollsBackAllLines(t *testing.T) {
	st, m, _ := setup(t)

	err := m.AddToCart(context.Background(), "u1", "p1", []domain.Line{
		{Size: domain.SizeS, Quantity: 2},
		{Size: domain.SizeM, Quantity: 6},
	})
	require.Error(t, err)
	assert.Equal(t, "Only 5 items available in size M", apperr.PublicMessage(err))

	p, _ := st.Product("p1")
	assert.Equal(t, 10, p.Inventory)
	_, ok := st.CartOf("u1")
	assert.False(t, ok)
}

func TestAddToCart_StagingFailureIsNotFatal(t *testing.T) {
	st, m, stager := setup(t)
	stager.err = errors.New("redis: connection refused")

	require.NoError(t, m.AddToCart(context.Background(), "u1", "p1", lines(domain.SizeS, 1)))
	cart, _ := st.CartOf("u1")
	assert.Len(t, cart.Items, 1)
}

func TestAddToCart_CounterFailureIsNotFatal(t *testing.T) {
	st, m, _ := setup(t)
	st.FailOn("AddCartProductCount", errors.New("deadlock detected"))

	require.NoError(t, m.AddToCart(context.Background(), "u1", "p1", lines(domain.SizeS, 1)))
	c, _ := st.Customer("u1")
	assert.Zero(t, c.CartProductCount)
}

func TestAddToCart_DatabaseFailureIsReported(t *testing.T) {
	st, m, stager := setup(t)
	st.FailOn("UpsertCartItem", errors.New("connection reset"))

	err := m.AddToCart(context.Background(), "u1", "p1", lines(domain.SizeS, 1))
	assert.True(t, apperr.IsKind(err, apperr.KindDatabase))
	assert.Equal(t, apperr.GenericMessage, apperr.PublicMessage(err))
	assert.Equal(t, 1, stager.calls)

	p, _ := st.Product("p1")
	assert.Equal(t, 10, p.Inventory)
}

func TestAddToCart_ConcurrentSameProduct(t *testing.T) {
	st, m, _ := setup(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.AddToCart(context.Background(), "u1", "p1", lines(domain.SizeS, 1))
		}()
	}
	wg.Wait()

	cart, _ := st.CartOf("u1")
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)

	p, _ := st.Product("p1")
	assert.Equal(t, 0, p.Sizes[domain.SizeS])
	assert.Equal(t, 5, p.Inventory)
}

func TestRemoveItem_RestoresStock(t *testing.T) {
	st, m, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, m.AddToCart(ctx, "u1", "p1", lines(domain.SizeM, 3)))

	require.NoError(t, m.RemoveItem(ctx, "u1", "p1"))

	cart, _ := st.CartOf("u1")
	assert.Empty(t, cart.Items)
	assert.Empty(t, cart.Reservations)
	p, _ := st.Product("p1")
	assert.Equal(t, 10, p.Inventory)
	c, _ := st.Customer("u1")
	assert.Zero(t, c.CartProductCount)
}

func TestRemoveItem_NothingToRemove(t *testing.T) {
	st, m, _ := setup(t)
	ctx := context.Background()

	err := m.RemoveItem(ctx, "u1", "p1")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "no cart yet")

	st.PutProduct(domain.Product{ID: "p2", Price: decimal.NewFromInt(5), Sizes: map[domain.Size]int{domain.SizeL: 1}})
	require.NoError(t, m.AddToCart(ctx, "u1", "p2", lines(domain.SizeL, 1)))
	before, _ := st.CartOf("u1")

	err = m.RemoveItem(ctx, "u1", "p1")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Equal(t, "Item not found in cart", apperr.PublicMessage(err))

	after, _ := st.CartOf("u1")
	assert.Equal(t, before, after)
}

func TestIncreaseItem(t *testing.T) {
	st, m, stager := setup(t)
	ctx := context.Background()

	require.NoError(t, m.IncreaseItem(ctx, "u1", "p1", domain.Line{Size: domain.SizeS, Quantity: 1}))
	require.NoError(t, m.IncreaseItem(ctx, "u1", "p1", domain.Line{Size: domain.SizeS, Quantity: 1}))

	cart, _ := st.CartOf("u1")
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Zero(t, stager.calls)

	err := m.IncreaseItem(ctx, "u1", "p1", domain.Line{Size: domain.SizeS, Quantity: 0})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestDecreaseItem(t *testing.T) {
	st, m, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, m.AddToCart(ctx, "u1", "p1", []domain.Line{
		{Size: domain.SizeS, Quantity: 1},
		{Size: domain.SizeM, Quantity: 2},
	}))

	require.NoError(t, m.DecreaseItem(ctx, "u1", "p1", domain.Line{Size: domain.SizeM, Quantity: 1}))
	cart, _ := st.CartOf("u1")
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	err := m.DecreaseItem(ctx, "u1", "p1", domain.Line{Size: domain.SizeS, Quantity: 2})
	assert.Equal(t, "Only 1 items of size S in cart", apperr.PublicMessage(err))

	require.NoError(t, m.DecreaseItem(ctx, "u1", "p1", domain.Line{Size: domain.SizeS, Quantity: 1}))
	require.NoError(t, m.DecreaseItem(ctx, "u1", "p1", domain.Line{Size: domain.SizeM, Quantity: 1}))

	cart, _ = st.CartOf("u1")
	assert.Empty(t, cart.Items, "an item reaching zero is deleted")
	p, _ := st.Product("p1")
	assert.Equal(t, 10, p.Inventory)

	err = m.DecreaseItem(ctx, "u1", "p1", domain.Line{Size: domain.SizeM, Quantity: 1})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestGetCart(t *testing.T) {
	_, m, _ := setup(t)
	ctx := context.Background()

	empty, err := m.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", empty.UserID)
	assert.Empty(t, empty.Items)

	require.NoError(t, m.AddToCart(ctx, "u1", "p1", lines(domain.SizeM, 1)))
	cart, err := m.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, cart.ID)
	assert.Len(t, cart.Items, 1)
}

func TestClearCart_DoesNotRestock(t *testing.T) {
	st, m, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, m.AddToCart(ctx, "u1", "p1", lines(domain.SizeM, 2)))
	cart, _ := st.CartOf("u1")

	require.NoError(t, m.ClearCart(ctx, cart.ID))
	require.NoError(t, m.ClearCart(ctx, cart.ID))

	cleared, _ := st.CartOf("u1")
	assert.Empty(t, cleared.Items)
	assert.Empty(t, cleared.Reservations)
	p, _ := st.Product("p1")
	assert.Equal(t, 8, p.Inventory)
	c, _ := st.Customer("u1")
	assert.Zero(t, c.CartProductCount)

	err := m.ClearCart(ctx, "missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
