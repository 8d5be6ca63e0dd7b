package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-realtime-checkout/internal/domain"
	"github.com/ariefcatur/go-realtime-checkout/internal/store"
)

func TestAddReservation_RemovesZeroAndRejectsUnderflow(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := domain.Reservation{CartID: "c1", ProductID: "p1", Size: domain.SizeM}

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r.Qty = 2
		require.NoError(t, tx.AddReservation(ctx, r))
		r.Qty = -3
		return tx.AddReservation(ctx, r)
	})
	require.ErrorIs(t, err, store.ErrReservationUnderflow)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rs, err := tx.ListReservations(ctx, "c1", "p1")
		require.NoError(t, err)
		assert.Empty(t, rs, "failed transaction is rolled back")

		r.Qty = 2
		require.NoError(t, tx.AddReservation(ctx, r))
		r.Qty = -2
		require.NoError(t, tx.AddReservation(ctx, r))
		rs, err = tx.ListReservations(ctx, "c1", "p1")
		require.NoError(t, err)
		assert.Empty(t, rs)
		return nil
	})
	require.NoError(t, err)
}
