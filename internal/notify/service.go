// Package notify builds per-user notification feeds from order lifecycle
// events. It is a downstream consumer: losing a notification never affects
// order or stock correctness.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/petani/agrimarket/internal/kafka"
	"github.com/petani/agrimarket/internal/market"
	"github.com/petani/agrimarket/internal/redisx"
)

const feedLimit = 100

type Notification struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id,omitempty"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	Redis       *redis.Client
	ServiceName string
}

// HandleOrderEvent is the kafka consumer handler. Events are deduplicated
// by event id so redelivery does not double-notify.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env market.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	switch env.EventType {
	case market.EventOrderPlaced, market.EventOrderAccepted, market.EventOrderRejected, market.EventOrderDelivered:
	default:
		return nil // ignore
	}

	svc := s.ServiceName
	if svc == "" {
		svc = "notify"
	}
	dkey := fmt.Sprintf(redisx.KeyDedup, svc, env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[market.OrderEventPayload](env.Payload)
	if err != nil {
		return err
	}

	recipient, message := render(env.EventType, p)
	if recipient == "" {
		return nil
	}

	return s.push(ctx, recipient, Notification{
		ID:        uuid.NewString(),
		OrderID:   p.OrderID,
		Message:   message,
		CreatedAt: env.OccurredAt,
	})
}

func render(eventType string, p market.OrderEventPayload) (recipient, message string) {
	qty := p.Quantity.String()
	what := qty + " " + p.Unit
	if p.Crop != "" {
		what += " of " + p.Crop
	}

	switch eventType {
	case market.EventOrderPlaced:
		return p.SellerID, "New order for " + what
	case market.EventOrderAccepted:
		return p.BuyerID, "Your order for " + what + " was accepted"
	case market.EventOrderRejected:
		return p.BuyerID, "Your order for " + what + " was rejected"
	case market.EventOrderDelivered:
		return p.BuyerID, "Your order for " + what + " was delivered"
	}
	return "", ""
}

func (s *Service) push(ctx context.Context, userID string, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	key := fmt.Sprintf(redisx.KeyNotifications, userID)
	pipe := s.Redis.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, feedLimit-1)
	pipe.Expire(ctx, key, redisx.TTLNotifications)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

// Feed returns the user's notifications, newest first.
func (s *Service) Feed(ctx context.Context, userID string) ([]Notification, error) {
	key := fmt.Sprintf(redisx.KeyNotifications, userID)
	raw, err := s.Redis.LRange(ctx, key, 0, feedLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange: %w", err)
	}

	out := make([]Notification, 0, len(raw))
	for _, r := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(r), &n); err != nil {
			continue // skip malformed entries
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkAllRead rewrites the feed with every entry flagged read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	list, err := s.Feed(ctx, userID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}

	key := fmt.Sprintf(redisx.KeyNotifications, userID)
	pipe := s.Redis.TxPipeline()
	pipe.Del(ctx, key)
	for _, n := range list {
		n.Read = true
		b, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		pipe.RPush(ctx, key, b)
	}
	pipe.Expire(ctx, key, redisx.TTLNotifications)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rewrite feed: %w", err)
	}
	return nil
}
