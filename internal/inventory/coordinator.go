// Package inventory owns the only path by which a listing's available
// quantity changes. Contention between buyers of the same listing is
// resolved by bounded optimistic retry, never by holding a lock across I/O.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/petani/agrimarket/internal/market"
)

// MaxAttempts bounds the version-conflict retry loop. Exhaustion surfaces
// as market.ErrConcurrentModification, which callers may safely resubmit.
const MaxAttempts = 5

type Coordinator struct {
	Listings market.ListingStore
	Orders   market.OrderStore
}

// Reserve atomically validates and decrements the listing's quantity, then
// creates the PENDING order with the unit price locked from the same listing
// snapshot the successful decrement was applied against.
func (c *Coordinator) Reserve(ctx context.Context, listingID, buyerID, externalID string, qty decimal.Decimal) (market.Order, error) {
	var zero market.Order

	if qty.Sign() <= 0 {
		return zero, market.ErrInvalidQuantity
	}

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		l, err := c.Listings.GetListing(ctx, listingID)
		if err != nil {
			return zero, fmt.Errorf("get listing: %w", err)
		}
		if !l.Active {
			return zero, market.ErrNotFound
		}
		if qty.GreaterThan(l.Available) {
			return zero, market.ErrInsufficientStock
		}

		_, err = c.Listings.ApplyQuantityDelta(ctx, listingID, qty.Neg(), l.Version)
		if errors.Is(err, market.ErrVersionConflict) {
			continue // re-read and retry
		}
		if err != nil {
			return zero, fmt.Errorf("apply delta: %w", err)
		}

		now := time.Now().UTC()
		o := market.Order{
			ID:         uuid.NewString(),
			ExternalID: externalID,
			ListingID:  l.ID,
			BuyerID:    buyerID,
			SellerID:   l.OwnerID,
			Quantity:   qty,
			UnitPrice:  l.UnitPrice,
			Amount:     qty.Mul(l.UnitPrice),
			Status:     market.StatusPending,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := c.Orders.InsertOrder(ctx, o); err != nil {
			// reservation without an order must not survive: compensate
			if rbErr := c.applyDelta(ctx, listingID, qty); rbErr != nil {
				return zero, fmt.Errorf("insert order: %w (compensating restore also failed: %v)", err, rbErr)
			}
			return zero, fmt.Errorf("insert order: %w", err)
		}
		return o, nil
	}

	return zero, market.ErrConcurrentModification
}

// Restore puts the order's quantity back on its listing. Called exactly once
// per order, from the REJECT transition.
func (c *Coordinator) Restore(ctx context.Context, o market.Order) error {
	return c.applyDelta(ctx, o.ListingID, o.Quantity)
}

func (c *Coordinator) applyDelta(ctx context.Context, listingID string, delta decimal.Decimal) error {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		l, err := c.Listings.GetListing(ctx, listingID)
		if err != nil {
			return fmt.Errorf("get listing: %w", err)
		}

		_, err = c.Listings.ApplyQuantityDelta(ctx, listingID, delta, l.Version)
		if errors.Is(err, market.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("apply delta: %w", err)
		}
		return nil
	}
	return market.ErrConcurrentModification
}
