package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is one farmer's offer of a crop. Available and Version form the
// only shared mutable pair in the system; Available changes exclusively
// through ApplyQuantityDelta.
type Listing struct {
	ID        string
	OwnerID   string
	Crop      string
	UnitPrice decimal.Decimal
	Available decimal.Decimal
	Unit      string
	Active    bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order is one buyer's claim against a listing. UnitPrice is copied from the
// listing at reservation time and never recomputed, so later price edits do
// not touch Amount.
type Order struct {
	ID         string
	ExternalID string // client-supplied idempotency key, optional
	ListingID  string
	BuyerID    string
	SellerID   string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	Amount     decimal.Decimal
	Status     Status
	Paid       bool
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
