// Package orders is the order ledger: it owns every status transition and
// is the only caller of the reservation coordinator. Stock is reserved at
// placement, never at accept time, so two PENDING orders can never claim
// the same stock.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/petani/agrimarket/internal/inventory"
	kafkax "github.com/petani/agrimarket/internal/kafka"
	"github.com/petani/agrimarket/internal/market"
)

type Service struct {
	Store       market.OrderStore
	Listings    market.ListingStore
	Coordinator *inventory.Coordinator
	Producer    *kafkax.Producer // nil disables event publishing
	ServiceName string
	TraceID     func(ctx context.Context) string
}

// Place reserves stock and creates the PENDING order. A repeated call with
// the same externalID returns the existing order instead of reserving twice.
func (s *Service) Place(ctx context.Context, listingID, buyerID, externalID string, qty decimal.Decimal) (market.Order, error) {
	var zero market.Order

	if externalID != "" {
		existing, err := s.Store.GetOrderByExternalID(ctx, externalID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, market.ErrNotFound) {
			return zero, fmt.Errorf("get by external id: %w", err)
		}
	}

	o, err := s.Coordinator.Reserve(ctx, listingID, buyerID, externalID, qty)
	if err != nil {
		return zero, err
	}

	s.publish(ctx, market.EventOrderPlaced, o)
	return o, nil
}

// Decide applies the farmer's accept/reject. Decisions are idempotent under
// client retries: a second call hits the transition table and changes nothing.
func (s *Service) Decide(ctx context.Context, orderID, actorID string, decision market.Decision) (market.Order, error) {
	var zero market.Order

	next := market.StatusAccepted
	event := market.EventOrderAccepted
	if decision == market.DecisionReject {
		next = market.StatusRejected
		event = market.EventOrderRejected
	}

	o, err := s.transition(ctx, orderID, actorID, next, func(o market.Order) string { return o.SellerID })
	if err != nil {
		return zero, err
	}

	if next == market.StatusRejected {
		// status write + restore commit as one unit: a failed restore
		// reverts the status so the reject leaves no trace
		if err := s.Coordinator.Restore(ctx, o); err != nil {
			prev := o
			prev.Status = market.StatusPending
			prev.UpdatedAt = time.Now().UTC()
			if _, rbErr := s.Store.UpdateOrder(ctx, prev, o.Version); rbErr != nil {
				return zero, fmt.Errorf("restore stock: %w (status compensation also failed: %v)", err, rbErr)
			}
			return zero, fmt.Errorf("restore stock: %w", err)
		}
	}

	s.publish(ctx, event, o)
	return o, nil
}

// MarkDelivered is terminal bookkeeping; no stock effect.
func (s *Service) MarkDelivered(ctx context.Context, orderID, actorID string) (market.Order, error) {
	o, err := s.transition(ctx, orderID, actorID, market.StatusDelivered, func(o market.Order) string { return o.SellerID })
	if err != nil {
		return market.Order{}, err
	}

	s.publish(ctx, market.EventOrderDelivered, o)
	return o, nil
}

// MarkPaid flips the payment flag on an accepted order. No gateway, no money
// movement; the flag is all the system models.
func (s *Service) MarkPaid(ctx context.Context, orderID, actorID string) (market.Order, error) {
	var zero market.Order

	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return zero, err
	}
	if o.BuyerID != actorID {
		return zero, market.ErrForbidden
	}
	if o.Paid {
		return o, nil
	}
	if o.Status != market.StatusAccepted && o.Status != market.StatusDelivered {
		return zero, market.ErrInvalidTransition
	}

	o.Paid = true
	o.UpdatedAt = time.Now().UTC()
	updated, err := s.Store.UpdateOrder(ctx, o, o.Version)
	if errors.Is(err, market.ErrVersionConflict) {
		return zero, market.ErrConcurrentModification
	}
	if err != nil {
		return zero, fmt.Errorf("update order: %w", err)
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (market.Order, error) {
	return s.Store.GetOrder(ctx, orderID)
}

func (s *Service) ListByBuyer(ctx context.Context, buyerID string) ([]market.Order, error) {
	return s.Store.ListByBuyer(ctx, buyerID)
}

func (s *Service) ListBySeller(ctx context.Context, sellerID string) ([]market.Order, error) {
	return s.Store.ListBySeller(ctx, sellerID)
}

func (s *Service) transition(ctx context.Context, orderID, actorID string, next market.Status, owner func(market.Order) string) (market.Order, error) {
	var zero market.Order

	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return zero, err
	}
	if owner(o) != actorID {
		return zero, market.ErrForbidden
	}
	if !market.CanTransition(o.Status, next) {
		return zero, market.ErrInvalidTransition
	}

	o.Status = next
	o.UpdatedAt = time.Now().UTC()

	updated, err := s.Store.UpdateOrder(ctx, o, o.Version)
	if errors.Is(err, market.ErrVersionConflict) {
		// lost a race for the same transition; re-read decides the verdict
		cur, gerr := s.Store.GetOrder(ctx, orderID)
		if gerr == nil && !market.CanTransition(cur.Status, next) {
			return zero, market.ErrInvalidTransition
		}
		return zero, market.ErrConcurrentModification
	}
	if err != nil {
		return zero, fmt.Errorf("update order: %w", err)
	}
	return updated, nil
}

func (s *Service) publish(ctx context.Context, eventType string, o market.Order) {
	if s.Producer == nil {
		return
	}

	var crop, unit string
	if l, err := s.Listings.GetListing(ctx, o.ListingID); err == nil {
		crop, unit = l.Crop, l.Unit
	}

	var trace string
	if s.TraceID != nil {
		trace = s.TraceID(ctx)
	}

	ev := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(market.OrderEventPayload{
			OrderID:   o.ID,
			ListingID: o.ListingID,
			Crop:      crop,
			BuyerID:   o.BuyerID,
			SellerID:  o.SellerID,
			Quantity:  o.Quantity,
			Unit:      unit,
			Amount:    o.Amount,
			Status:    o.Status,
		}),
	}
	s.Producer.Publish(market.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
