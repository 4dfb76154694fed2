// Package stats is a read-only projection over the order ledger. It is not
// on the correctness-critical path and tolerates eventually-consistent
// reads; cached values age out rather than being kept transactionally fresh.
package stats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/petani/agrimarket/internal/market"
	"github.com/petani/agrimarket/internal/redisx"
)

type FarmerTotals struct {
	OrderCount   int             `json:"order_count"`
	PendingCount int             `json:"pending_count"`
	TotalSales   decimal.Decimal `json:"total_sales"`
}

type Aggregator struct {
	Orders market.OrderStore
	Redis  *redis.Client // nil disables caching
}

// FarmerTotals sums Amount over the seller's ACCEPTED and DELIVERED orders.
func (a *Aggregator) FarmerTotals(ctx context.Context, sellerID string) (FarmerTotals, error) {
	key := fmt.Sprintf(redisx.KeyFarmerTotals, sellerID)

	if a.Redis != nil {
		if s, err := a.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			var t FarmerTotals
			if json.Unmarshal([]byte(s), &t) == nil {
				return t, nil
			}
		}
	}

	list, err := a.Orders.ListBySeller(ctx, sellerID)
	if err != nil {
		return FarmerTotals{}, fmt.Errorf("list by seller: %w", err)
	}

	t := FarmerTotals{TotalSales: decimal.Zero}
	for _, o := range list {
		switch o.Status {
		case market.StatusAccepted, market.StatusDelivered:
			t.OrderCount++
			t.TotalSales = t.TotalSales.Add(o.Amount)
		case market.StatusPending:
			t.PendingCount++
		}
	}

	if a.Redis != nil {
		if b, err := json.Marshal(t); err == nil {
			_ = a.Redis.Set(ctx, key, b, redisx.TTLStatsCache).Err()
		}
	}
	return t, nil
}

// Invalidate drops the cached totals after an order transition.
func (a *Aggregator) Invalidate(ctx context.Context, sellerID string) {
	if a.Redis == nil {
		return
	}
	_ = a.Redis.Del(ctx, fmt.Sprintf(redisx.KeyFarmerTotals, sellerID)).Err()
}
