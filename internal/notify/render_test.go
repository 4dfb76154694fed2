package notify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/petani/agrimarket/internal/market"
)

func TestRender(t *testing.T) {
	p := market.OrderEventPayload{
		OrderID:  "o-1",
		BuyerID:  "buyer-1",
		SellerID: "farmer-1",
		Quantity: decimal.RequireFromString("2.5"),
		Unit:     "kg",
		Crop:     "mangoes",
	}

	recipient, msg := render(market.EventOrderPlaced, p)
	require.Equal(t, "farmer-1", recipient, "placement notifies the seller")
	require.Equal(t, "New order for 2.5 kg of mangoes", msg)

	recipient, msg = render(market.EventOrderAccepted, p)
	require.Equal(t, "buyer-1", recipient)
	require.Contains(t, msg, "accepted")

	recipient, msg = render(market.EventOrderRejected, p)
	require.Equal(t, "buyer-1", recipient)
	require.Contains(t, msg, "rejected")

	recipient, msg = render(market.EventOrderDelivered, p)
	require.Equal(t, "buyer-1", recipient)
	require.Contains(t, msg, "delivered")

	recipient, _ = render("SomethingElse", p)
	require.Empty(t, recipient)
}
