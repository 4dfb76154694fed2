package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/petani/agrimarket/internal/inventory"
	"github.com/petani/agrimarket/internal/market"
	"github.com/petani/agrimarket/internal/memstore"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seed(t *testing.T, st *memstore.Store, available, price string) market.Listing {
	t.Helper()

	now := time.Now().UTC()
	l := market.Listing{
		ID:        uuid.NewString(),
		OwnerID:   "farmer-1",
		Crop:      "tomatoes",
		UnitPrice: dec(price),
		Available: dec(available),
		Unit:      "kg",
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.InsertListing(context.Background(), l))
	return l
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	l := seed(t, st, "50", "20")
	c := &inventory.Coordinator{Listings: st, Orders: st}

	o, err := c.Reserve(ctx, l.ID, "buyer-1", "", dec("30"))
	require.NoError(t, err)
	require.Equal(t, market.StatusPending, o.Status)
	require.Equal(t, l.ID, o.ListingID)
	require.Equal(t, "buyer-1", o.BuyerID)
	require.Equal(t, "farmer-1", o.SellerID)
	require.True(t, o.UnitPrice.Equal(dec("20")))
	require.True(t, o.Amount.Equal(dec("600")))

	cur, err := st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, cur.Available.Equal(dec("20")))

	stored, err := st.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, o.ID, stored.ID)
}

func TestReserve_InvalidQuantity(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	l := seed(t, st, "50", "20")
	c := &inventory.Coordinator{Listings: st, Orders: st}

	_, err := c.Reserve(ctx, l.ID, "buyer-1", "", dec("0"))
	require.ErrorIs(t, err, market.ErrInvalidQuantity)

	_, err = c.Reserve(ctx, l.ID, "buyer-1", "", dec("-3"))
	require.ErrorIs(t, err, market.ErrInvalidQuantity)

	cur, err := st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, cur.Available.Equal(dec("50")))
}

func TestReserve_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	l := seed(t, st, "50", "20")
	c := &inventory.Coordinator{Listings: st, Orders: st}

	_, err := c.Reserve(ctx, l.ID, "buyer-1", "", dec("50.5"))
	require.ErrorIs(t, err, market.ErrInsufficientStock)

	cur, err := st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, cur.Available.Equal(dec("50")), "failed reservation must not touch stock")
}

func TestReserve_UnknownListing(t *testing.T) {
	st := memstore.New()
	c := &inventory.Coordinator{Listings: st, Orders: st}

	_, err := c.Reserve(context.Background(), "nope", "buyer-1", "", dec("1"))
	require.ErrorIs(t, err, market.ErrNotFound)
}

func TestReserve_InactiveListing(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	l := seed(t, st, "50", "20")
	c := &inventory.Coordinator{Listings: st, Orders: st}

	l.Active = false
	_, err := st.UpdateListing(ctx, l, 1)
	require.NoError(t, err)

	_, err = c.Reserve(ctx, l.ID, "buyer-1", "", dec("1"))
	require.ErrorIs(t, err, market.ErrNotFound)
}

// Two buyers race for 30 of 50 kg: exactly one wins, the loser observes
// insufficient stock from the re-read, final availability is 20.
func TestReserve_TwoBuyersRace(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	l := seed(t, st, "50", "20")
	c := &inventory.Coordinator{Listings: st, Orders: st}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Reserve(ctx, l.ID, "buyer", "", dec("30"))
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, market.ErrInsufficientStock):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)

	cur, err := st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, cur.Available.Equal(dec("20")), "available = %s", cur.Available)
}

// Many buyers hammer one listing: the sum of reserved quantities never
// exceeds the initial stock and availability never goes negative.
func TestReserve_NoOverselling(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	l := seed(t, st, "50", "20")
	c := &inventory.Coordinator{Listings: st, Orders: st}

	const buyers = 20
	results := make([]error, buyers)

	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		i := i
		g.Go(func() error {
			_, results[i] = c.Reserve(ctx, l.ID, "buyer", "", dec("10"))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, market.ErrInsufficientStock):
		case errors.Is(err, market.ErrConcurrentModification):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.LessOrEqual(t, wins, 5)

	cur, err := st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	require.False(t, cur.Available.IsNegative())
	want := dec("50").Sub(dec("10").Mul(decimal.NewFromInt(int64(wins))))
	require.True(t, cur.Available.Equal(want), "available=%s wins=%d", cur.Available, wins)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	l := seed(t, st, "50", "20")
	c := &inventory.Coordinator{Listings: st, Orders: st}

	o, err := c.Reserve(ctx, l.ID, "buyer-1", "", dec("30"))
	require.NoError(t, err)

	require.NoError(t, c.Restore(ctx, o))

	cur, err := st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, cur.Available.Equal(dec("50")), "restore must return exactly the reserved quantity")
}

type failingOrders struct {
	*memstore.Store
}

func (f *failingOrders) InsertOrder(context.Context, market.Order) error {
	return errors.New("boom")
}

// If order creation fails after the decrement succeeded, the decrement is
// compensated before the error returns.
func TestReserve_CompensatesFailedInsert(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	l := seed(t, st, "50", "20")
	c := &inventory.Coordinator{Listings: st, Orders: &failingOrders{st}}

	_, err := c.Reserve(ctx, l.ID, "buyer-1", "", dec("30"))
	require.Error(t, err)

	cur, err := st.GetListing(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, cur.Available.Equal(dec("50")))
}

type conflictingListings struct {
	*memstore.Store
}

func (c *conflictingListings) ApplyQuantityDelta(context.Context, string, decimal.Decimal, int64) (market.Listing, error) {
	return market.Listing{}, market.ErrVersionConflict
}

// Exhausting the retry budget surfaces the retryable error, not a hang or a
// permanent failure.
func TestReserve_RetryBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	l := seed(t, st, "50", "20")
	c := &inventory.Coordinator{Listings: &conflictingListings{st}, Orders: st}

	_, err := c.Reserve(ctx, l.ID, "buyer-1", "", dec("10"))
	require.ErrorIs(t, err, market.ErrConcurrentModification)
	require.True(t, market.Retryable(err))
}
