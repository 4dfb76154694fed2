package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/petani/agrimarket/internal/market"
	"github.com/petani/agrimarket/internal/memstore"
)

func seedListing(t *testing.T, st *memstore.Store, available string) market.Listing {
	t.Helper()

	now := time.Now().UTC()
	l := market.Listing{
		ID:        uuid.NewString(),
		OwnerID:   "farmer-1",
		Crop:      "tomatoes",
		UnitPrice: decimal.RequireFromString("20"),
		Available: decimal.RequireFromString(available),
		Unit:      "kg",
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.InsertListing(context.Background(), l))
	return l
}

func TestGetListing_NotFound(t *testing.T) {
	st := memstore.New()

	_, err := st.GetListing(context.Background(), "nope")
	require.ErrorIs(t, err, market.ErrNotFound)
}

func TestApplyQuantityDelta(t *testing.T) {
	st := memstore.New()
	l := seedListing(t, st, "50")

	got, err := st.ApplyQuantityDelta(context.Background(), l.ID, decimal.RequireFromString("-30"), 1)
	require.NoError(t, err)
	require.True(t, got.Available.Equal(decimal.RequireFromString("20")))
	require.Equal(t, int64(2), got.Version)

	// stale version must conflict, not mutate
	_, err = st.ApplyQuantityDelta(context.Background(), l.ID, decimal.RequireFromString("-10"), 1)
	require.ErrorIs(t, err, market.ErrVersionConflict)

	cur, err := st.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	require.True(t, cur.Available.Equal(decimal.RequireFromString("20")))
	require.Equal(t, int64(2), cur.Version)
}

func TestApplyQuantityDelta_NeverNegative(t *testing.T) {
	st := memstore.New()
	l := seedListing(t, st, "5")

	_, err := st.ApplyQuantityDelta(context.Background(), l.ID, decimal.RequireFromString("-5.01"), 1)
	require.ErrorIs(t, err, market.ErrInsufficientStock)

	cur, err := st.GetListing(context.Background(), l.ID)
	require.NoError(t, err)
	require.True(t, cur.Available.Equal(decimal.RequireFromString("5")))
	require.Equal(t, int64(1), cur.Version, "failed delta must not bump the version")

	// draining to exactly zero is fine
	got, err := st.ApplyQuantityDelta(context.Background(), l.ID, decimal.RequireFromString("-5"), 1)
	require.NoError(t, err)
	require.True(t, got.Available.IsZero())
}

func TestUpdateListing_KeepsQuantity(t *testing.T) {
	st := memstore.New()
	l := seedListing(t, st, "50")

	edit := l
	edit.UnitPrice = decimal.RequireFromString("25")
	edit.Available = decimal.RequireFromString("9999") // must be ignored

	got, err := st.UpdateListing(context.Background(), edit, 1)
	require.NoError(t, err)
	require.True(t, got.UnitPrice.Equal(decimal.RequireFromString("25")))
	require.True(t, got.Available.Equal(decimal.RequireFromString("50")))
	require.Equal(t, int64(2), got.Version)

	_, err = st.UpdateListing(context.Background(), edit, 1)
	require.ErrorIs(t, err, market.ErrVersionConflict)
}

func TestOrders(t *testing.T) {
	st := memstore.New()

	o := market.Order{
		ID:         uuid.NewString(),
		ExternalID: "ext-1",
		ListingID:  uuid.NewString(),
		BuyerID:    "buyer-1",
		SellerID:   "farmer-1",
		Quantity:   decimal.RequireFromString("10"),
		UnitPrice:  decimal.RequireFromString("20"),
		Amount:     decimal.RequireFromString("200"),
		Status:     market.StatusPending,
		Version:    1,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.InsertOrder(context.Background(), o))

	got, err := st.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, o.ID, got.ID)

	byExt, err := st.GetOrderByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	require.Equal(t, o.ID, byExt.ID)

	_, err = st.GetOrderByExternalID(context.Background(), "ext-2")
	require.ErrorIs(t, err, market.ErrNotFound)

	got.Status = market.StatusAccepted
	updated, err := st.UpdateOrder(context.Background(), got, 1)
	require.NoError(t, err)
	require.Equal(t, market.StatusAccepted, updated.Status)
	require.Equal(t, int64(2), updated.Version)

	_, err = st.UpdateOrder(context.Background(), got, 1)
	require.ErrorIs(t, err, market.ErrVersionConflict)

	mine, err := st.ListByBuyer(context.Background(), "buyer-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	incoming, err := st.ListBySeller(context.Background(), "farmer-1")
	require.NoError(t, err)
	require.Len(t, incoming, 1)

	none, err := st.ListBySeller(context.Background(), "farmer-2")
	require.NoError(t, err)
	require.Empty(t, none)
}
