// Package listings covers the farmer-facing listing lifecycle: create,
// browse, price edits, stock top-ups and soft deactivation. Quantity
// mutations go through the same versioned delta primitive the reservation
// coordinator uses, so top-ups contend (and retry) like reservations do.
package listings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/petani/agrimarket/internal/market"
)

const maxAttempts = 5

type Service struct {
	Store market.ListingStore
}

func (s *Service) Create(ctx context.Context, ownerID, crop string, unitPrice, qty decimal.Decimal, unit string) (market.Listing, error) {
	var zero market.Listing

	if crop == "" || ownerID == "" {
		return zero, fmt.Errorf("missing crop or owner: %w", market.ErrNotFound)
	}
	if unitPrice.Sign() <= 0 {
		return zero, market.ErrInvalidPrice
	}
	if qty.IsNegative() {
		return zero, market.ErrInvalidQuantity
	}
	if unit == "" {
		unit = "kg"
	}

	now := time.Now().UTC()
	l := market.Listing{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Crop:      crop,
		UnitPrice: unitPrice,
		Available: qty,
		Unit:      unit,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.InsertListing(ctx, l); err != nil {
		return zero, fmt.Errorf("insert listing: %w", err)
	}
	return l, nil
}

func (s *Service) Get(ctx context.Context, id string) (market.Listing, error) {
	return s.Store.GetListing(ctx, id)
}

func (s *Service) Browse(ctx context.Context) ([]market.Listing, error) {
	return s.Store.ListActive(ctx)
}

// UpdatePrice changes the unit price of the owner's listing. Orders already
// placed keep their locked price.
func (s *Service) UpdatePrice(ctx context.Context, listingID, ownerID string, newPrice decimal.Decimal) (market.Listing, error) {
	if newPrice.Sign() <= 0 {
		return market.Listing{}, market.ErrInvalidPrice
	}
	return s.edit(ctx, listingID, ownerID, func(l *market.Listing) {
		l.UnitPrice = newPrice
	})
}

// TopUp adds stock to the owner's listing through the versioned delta path.
func (s *Service) TopUp(ctx context.Context, listingID, ownerID string, qty decimal.Decimal) (market.Listing, error) {
	var zero market.Listing

	if qty.Sign() <= 0 {
		return zero, market.ErrInvalidQuantity
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		l, err := s.Store.GetListing(ctx, listingID)
		if err != nil {
			return zero, err
		}
		if l.OwnerID != ownerID {
			return zero, market.ErrForbidden
		}

		updated, err := s.Store.ApplyQuantityDelta(ctx, listingID, qty, l.Version)
		if errors.Is(err, market.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return zero, fmt.Errorf("apply delta: %w", err)
		}
		return updated, nil
	}
	return zero, market.ErrConcurrentModification
}

// Deactivate hides the listing from browse. Listings are never physically
// deleted while orders reference them.
func (s *Service) Deactivate(ctx context.Context, listingID, ownerID string) (market.Listing, error) {
	return s.edit(ctx, listingID, ownerID, func(l *market.Listing) {
		l.Active = false
	})
}

func (s *Service) edit(ctx context.Context, listingID, ownerID string, apply func(*market.Listing)) (market.Listing, error) {
	var zero market.Listing

	for attempt := 0; attempt < maxAttempts; attempt++ {
		l, err := s.Store.GetListing(ctx, listingID)
		if err != nil {
			return zero, err
		}
		if l.OwnerID != ownerID {
			return zero, market.ErrForbidden
		}

		apply(&l)
		l.UpdatedAt = time.Now().UTC()

		updated, err := s.Store.UpdateListing(ctx, l, l.Version)
		if errors.Is(err, market.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return zero, fmt.Errorf("update listing: %w", err)
		}
		return updated, nil
	}
	return zero, market.ErrConcurrentModification
}
