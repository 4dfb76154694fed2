package listings_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/petani/agrimarket/internal/listings"
	"github.com/petani/agrimarket/internal/market"
	"github.com/petani/agrimarket/internal/memstore"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc := &listings.Service{Store: memstore.New()}

	l, err := svc.Create(ctx, "farmer-1", "tomatoes", dec("20"), dec("50"), "")
	require.NoError(t, err)
	require.Equal(t, "farmer-1", l.OwnerID)
	require.Equal(t, "kg", l.Unit, "unit defaults to kg")
	require.True(t, l.Active)
	require.Equal(t, int64(1), l.Version)

	_, err = svc.Create(ctx, "farmer-1", "tomatoes", dec("0"), dec("50"), "kg")
	require.ErrorIs(t, err, market.ErrInvalidPrice)

	_, err = svc.Create(ctx, "farmer-1", "tomatoes", dec("20"), dec("-1"), "kg")
	require.ErrorIs(t, err, market.ErrInvalidQuantity)
}

func TestUpdatePrice(t *testing.T) {
	ctx := context.Background()
	svc := &listings.Service{Store: memstore.New()}

	l, err := svc.Create(ctx, "farmer-1", "tomatoes", dec("20"), dec("50"), "kg")
	require.NoError(t, err)

	got, err := svc.UpdatePrice(ctx, l.ID, "farmer-1", dec("25"))
	require.NoError(t, err)
	require.True(t, got.UnitPrice.Equal(dec("25")))
	require.True(t, got.Available.Equal(dec("50")), "price edit must not touch stock")

	_, err = svc.UpdatePrice(ctx, l.ID, "farmer-2", dec("30"))
	require.ErrorIs(t, err, market.ErrForbidden)

	_, err = svc.UpdatePrice(ctx, "nope", "farmer-1", dec("30"))
	require.ErrorIs(t, err, market.ErrNotFound)

	_, err = svc.UpdatePrice(ctx, l.ID, "farmer-1", dec("-1"))
	require.ErrorIs(t, err, market.ErrInvalidPrice)
}

func TestTopUp(t *testing.T) {
	ctx := context.Background()
	svc := &listings.Service{Store: memstore.New()}

	l, err := svc.Create(ctx, "farmer-1", "tomatoes", dec("20"), dec("50"), "kg")
	require.NoError(t, err)

	got, err := svc.TopUp(ctx, l.ID, "farmer-1", dec("25.5"))
	require.NoError(t, err)
	require.True(t, got.Available.Equal(dec("75.5")))

	_, err = svc.TopUp(ctx, l.ID, "farmer-2", dec("10"))
	require.ErrorIs(t, err, market.ErrForbidden)

	_, err = svc.TopUp(ctx, l.ID, "farmer-1", dec("0"))
	require.ErrorIs(t, err, market.ErrInvalidQuantity)
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	svc := &listings.Service{Store: memstore.New()}

	l, err := svc.Create(ctx, "farmer-1", "tomatoes", dec("20"), dec("50"), "kg")
	require.NoError(t, err)

	visible, err := svc.Browse(ctx)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	got, err := svc.Deactivate(ctx, l.ID, "farmer-1")
	require.NoError(t, err)
	require.False(t, got.Active)

	visible, err = svc.Browse(ctx)
	require.NoError(t, err)
	require.Empty(t, visible, "deactivated listings are hidden, not deleted")

	// still readable by id: orders may reference it
	_, err = svc.Get(ctx, l.ID)
	require.NoError(t, err)
}
