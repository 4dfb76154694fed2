// Package memstore is an embedded implementation of the market storage
// contract, used by tests and as the dev backend (STORE_BACKEND=memory).
// It gives the same guarantees as the pg store: conditional writes with an
// atomic version bump, and Available never below zero.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/petani/agrimarket/internal/market"
)

type Store struct {
	mu       sync.Mutex
	listings map[string]market.Listing
	orders   map[string]market.Order
	byExtID  map[string]string // external_id -> order_id
}

func New() *Store {
	return &Store{
		listings: make(map[string]market.Listing),
		orders:   make(map[string]market.Order),
		byExtID:  make(map[string]string),
	}
}

func (s *Store) GetListing(_ context.Context, id string) (market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return market.Listing{}, market.ErrNotFound
	}
	return l, nil
}

func (s *Store) InsertListing(_ context.Context, l market.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listings[l.ID] = l
	return nil
}

func (s *Store) ListActive(_ context.Context) ([]market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []market.Listing
	for _, l := range s.listings {
		if l.Active {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateListing(_ context.Context, l market.Listing, expectedVersion int64) (market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.listings[l.ID]
	if !ok {
		return market.Listing{}, market.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return market.Listing{}, market.ErrVersionConflict
	}

	// quantity is owned by ApplyQuantityDelta, keep the stored value
	l.Available = cur.Available
	l.Version = cur.Version + 1
	s.listings[l.ID] = l
	return l, nil
}

func (s *Store) ApplyQuantityDelta(_ context.Context, id string, delta decimal.Decimal, expectedVersion int64) (market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.listings[id]
	if !ok {
		return market.Listing{}, market.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return market.Listing{}, market.ErrVersionConflict
	}

	next := cur.Available.Add(delta)
	if next.IsNegative() {
		return market.Listing{}, market.ErrInsufficientStock
	}

	cur.Available = next
	cur.Version++
	s.listings[id] = cur
	return cur, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (market.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return market.Order{}, market.ErrNotFound
	}
	return o, nil
}

func (s *Store) GetOrderByExternalID(_ context.Context, externalID string) (market.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byExtID[externalID]
	if !ok {
		return market.Order{}, market.ErrNotFound
	}
	return s.orders[id], nil
}

func (s *Store) InsertOrder(_ context.Context, o market.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.ID] = o
	if o.ExternalID != "" {
		s.byExtID[o.ExternalID] = o.ID
	}
	return nil
}

func (s *Store) UpdateOrder(_ context.Context, o market.Order, expectedVersion int64) (market.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[o.ID]
	if !ok {
		return market.Order{}, market.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return market.Order{}, market.ErrVersionConflict
	}

	o.Version = cur.Version + 1
	s.orders[o.ID] = o
	return o, nil
}

func (s *Store) ListByBuyer(_ context.Context, buyerID string) ([]market.Order, error) {
	return s.listOrders(func(o market.Order) bool { return o.BuyerID == buyerID })
}

func (s *Store) ListBySeller(_ context.Context, sellerID string) ([]market.Order, error) {
	return s.listOrders(func(o market.Order) bool { return o.SellerID == sellerID })
}

func (s *Store) listOrders(keep func(market.Order) bool) ([]market.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []market.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
