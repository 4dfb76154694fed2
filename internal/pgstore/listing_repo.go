package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/petani/agrimarket/internal/market"
)

type ListingRepo struct{ DB *pgxpool.Pool }

const listingCols = `id, owner_id, crop, unit_price::text, available::text, unit, active, version, created_at, updated_at`

func (r *ListingRepo) GetListing(ctx context.Context, id string) (market.Listing, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+listingCols+` FROM listings WHERE id=$1`, id)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Listing{}, market.ErrNotFound
	}
	return l, err
}

func (r *ListingRepo) InsertListing(ctx context.Context, l market.Listing) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO listings(id, owner_id, crop, unit_price, available, unit, active, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6,$7,$8,$9,$10)`,
		l.ID, l.OwnerID, l.Crop, l.UnitPrice.String(), l.Available.String(), l.Unit, l.Active, l.Version, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (r *ListingRepo) ListActive(ctx context.Context) ([]market.Listing, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+listingCols+` FROM listings WHERE active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []market.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *ListingRepo) UpdateListing(ctx context.Context, l market.Listing, expectedVersion int64) (market.Listing, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE listings
		SET unit_price=$2::numeric, unit=$3, active=$4, version=version+1, updated_at=now()
		WHERE id=$1 AND version=$5
		RETURNING `+listingCols,
		l.ID, l.UnitPrice.String(), l.Unit, l.Active, expectedVersion,
	)
	updated, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Listing{}, r.classifyMiss(ctx, l.ID, expectedVersion, decimal.Zero)
	}
	return updated, err
}

// ApplyQuantityDelta is the single conditional-write primitive: the WHERE
// clause checks both the version and that available never goes negative.
func (r *ListingRepo) ApplyQuantityDelta(ctx context.Context, id string, delta decimal.Decimal, expectedVersion int64) (market.Listing, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE listings
		SET available = available + $2::numeric, version = version + 1, updated_at = now()
		WHERE id=$1 AND version=$3 AND available + $2::numeric >= 0
		RETURNING `+listingCols,
		id, delta.String(), expectedVersion,
	)
	updated, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Listing{}, r.classifyMiss(ctx, id, expectedVersion, delta)
	}
	return updated, err
}

// classifyMiss turns a zero-row conditional write into the precise failure:
// missing row, stale version, or a delta that would go negative.
func (r *ListingRepo) classifyMiss(ctx context.Context, id string, expectedVersion int64, delta decimal.Decimal) error {
	var version int64
	var available string
	err := r.DB.QueryRow(ctx, `SELECT version, available::text FROM listings WHERE id=$1`, id).Scan(&version, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("classify miss: %w", err)
	}
	if version != expectedVersion {
		return market.ErrVersionConflict
	}
	if delta.IsNegative() {
		return market.ErrInsufficientStock
	}
	return market.ErrVersionConflict
}

func scanListing(row pgx.Row) (market.Listing, error) {
	var l market.Listing
	var price, avail string

	err := row.Scan(&l.ID, &l.OwnerID, &l.Crop, &price, &avail, &l.Unit, &l.Active, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return l, err
	}

	if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return l, fmt.Errorf("parse unit_price[%s]: %w", price, err)
	}
	if l.Available, err = decimal.NewFromString(avail); err != nil {
		return l, fmt.Errorf("parse available[%s]: %w", avail, err)
	}
	return l, nil
}
