package market

import (
	"context"

	"github.com/shopspring/decimal"
)

// ListingStore is the minimum contract the core imposes on persistence:
// per-record reads plus conditional writes with an atomic version bump.
// Every mutation must fail with ErrVersionConflict when expectedVersion is
// stale and must never let Available go negative.
type ListingStore interface {
	GetListing(ctx context.Context, id string) (Listing, error)
	InsertListing(ctx context.Context, l Listing) error
	ListActive(ctx context.Context) ([]Listing, error)

	// UpdateListing persists price/active edits of l if the stored version
	// equals expectedVersion, bumping the version on success.
	UpdateListing(ctx context.Context, l Listing, expectedVersion int64) (Listing, error)

	// ApplyQuantityDelta adds delta to Available (negative = reserve,
	// positive = restore) under the same conditional-write discipline.
	// Fails with ErrInsufficientStock if the result would be negative.
	ApplyQuantityDelta(ctx context.Context, id string, delta decimal.Decimal, expectedVersion int64) (Listing, error)
}

type OrderStore interface {
	GetOrder(ctx context.Context, id string) (Order, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (Order, error)
	InsertOrder(ctx context.Context, o Order) error

	// UpdateOrder persists status/paid changes with the same version-checked
	// semantics as UpdateListing.
	UpdateOrder(ctx context.Context, o Order, expectedVersion int64) (Order, error)

	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Order, error)
}
