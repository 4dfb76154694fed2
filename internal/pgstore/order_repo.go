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

type OrderRepo struct{ DB *pgxpool.Pool }

const orderCols = `id, COALESCE(external_id, ''), listing_id, buyer_id, seller_id, quantity::text, unit_price::text, amount::text, status, paid, version, created_at, updated_at`

func (r *OrderRepo) GetOrder(ctx context.Context, id string) (market.Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Order{}, market.ErrNotFound
	}
	return o, err
}

func (r *OrderRepo) GetOrderByExternalID(ctx context.Context, externalID string) (market.Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE external_id=$1`, externalID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Order{}, market.ErrNotFound
	}
	return o, err
}

func (r *OrderRepo) InsertOrder(ctx context.Context, o market.Order) error {
	var extID *string
	if o.ExternalID != "" {
		extID = &o.ExternalID
	}

	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders(id, external_id, listing_id, buyer_id, seller_id, quantity, unit_price, amount, status, paid, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9,$10,$11,$12,$13)`,
		o.ID, extID, o.ListingID, o.BuyerID, o.SellerID,
		o.Quantity.String(), o.UnitPrice.String(), o.Amount.String(),
		string(o.Status), o.Paid, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepo) UpdateOrder(ctx context.Context, o market.Order, expectedVersion int64) (market.Order, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE orders
		SET status=$2, paid=$3, version=version+1, updated_at=now()
		WHERE id=$1 AND version=$4
		RETURNING `+orderCols,
		o.ID, string(o.Status), o.Paid, expectedVersion,
	)
	updated, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// cek existing: missing row vs stale version
		var n int
		if qerr := r.DB.QueryRow(ctx, `SELECT 1 FROM orders WHERE id=$1`, o.ID).Scan(&n); errors.Is(qerr, pgx.ErrNoRows) {
			return market.Order{}, market.ErrNotFound
		}
		return market.Order{}, market.ErrVersionConflict
	}
	return updated, err
}

func (r *OrderRepo) ListByBuyer(ctx context.Context, buyerID string) ([]market.Order, error) {
	return r.list(ctx, `SELECT `+orderCols+` FROM orders WHERE buyer_id=$1 ORDER BY created_at DESC`, buyerID)
}

func (r *OrderRepo) ListBySeller(ctx context.Context, sellerID string) ([]market.Order, error) {
	return r.list(ctx, `SELECT `+orderCols+` FROM orders WHERE seller_id=$1 ORDER BY created_at DESC`, sellerID)
}

func (r *OrderRepo) list(ctx context.Context, query, arg string) ([]market.Order, error) {
	rows, err := r.DB.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []market.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (market.Order, error) {
	var o market.Order
	var qty, price, amount, status string

	err := row.Scan(&o.ID, &o.ExternalID, &o.ListingID, &o.BuyerID, &o.SellerID,
		&qty, &price, &amount, &status, &o.Paid, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}

	if o.Quantity, err = decimal.NewFromString(qty); err != nil {
		return o, fmt.Errorf("parse quantity[%s]: %w", qty, err)
	}
	if o.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return o, fmt.Errorf("parse unit_price[%s]: %w", price, err)
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return o, fmt.Errorf("parse amount[%s]: %w", amount, err)
	}
	o.Status = market.Status(status)
	return o, nil
}
