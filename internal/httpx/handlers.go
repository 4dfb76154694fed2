package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/petani/agrimarket/internal/listings"
	"github.com/petani/agrimarket/internal/market"
	"github.com/petani/agrimarket/internal/notify"
	"github.com/petani/agrimarket/internal/orders"
	"github.com/petani/agrimarket/internal/redisx"
	"github.com/petani/agrimarket/internal/stats"
)

// Handler wires the core services to the HTTP surface. Auth is external:
// the gateway in front of this service places the authenticated user id in
// X-User-Id.
type Handler struct {
	Listings *listings.Service
	Orders   *orders.Service
	Stats    *stats.Aggregator
	Notify   *notify.Service
	Redis    *redis.Client
}

func (h *Handler) Register(r *chi.Mux) {
	r.Get("/listings", h.browseListings)
	r.Post("/listings", h.createListing)
	r.Get("/listings/{id}", h.getListing)
	r.Put("/listings/{id}/price", h.updatePrice)
	r.Post("/listings/{id}/topup", h.topUp)
	r.Delete("/listings/{id}", h.deactivateListing)

	r.Post("/orders", h.placeOrder)
	r.Get("/orders/mine", h.buyerOrders)
	r.Get("/orders/incoming", h.sellerOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/decision", h.decideOrder)
	r.Post("/orders/{id}/delivered", h.markDelivered)
	r.Post("/orders/{id}/pay", h.markPaid)

	r.Get("/stats/farmer", h.farmerTotals)

	r.Get("/notifications", h.notifications)
	r.Post("/notifications/read-all", h.markNotificationsRead)
}

// ---- requests / responses ----

type createListingReq struct {
	Crop      string          `json:"crop"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
}

type updatePriceReq struct {
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type topUpReq struct {
	Quantity decimal.Decimal `json:"quantity"`
}

type placeOrderReq struct {
	ListingID  string          `json:"listing_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExternalID string          `json:"external_id,omitempty"`
}

type decisionReq struct {
	Decision string `json:"decision"` // accept | reject
}

type listingResp struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Crop      string          `json:"crop"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Available decimal.Decimal `json:"available"`
	Unit      string          `json:"unit"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type orderResp struct {
	ID        string          `json:"id"`
	ListingID string          `json:"listing_id"`
	BuyerID   string          `json:"buyer_id"`
	SellerID  string          `json:"seller_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
	Status    market.Status   `json:"status"`
	Paid      bool            `json:"paid"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toListingResp(l market.Listing) listingResp {
	return listingResp{
		ID: l.ID, OwnerID: l.OwnerID, Crop: l.Crop, UnitPrice: l.UnitPrice,
		Available: l.Available, Unit: l.Unit, Active: l.Active,
		CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt,
	}
}

func toOrderResp(o market.Order) orderResp {
	return orderResp{
		ID: o.ID, ListingID: o.ListingID, BuyerID: o.BuyerID, SellerID: o.SellerID,
		Quantity: o.Quantity, UnitPrice: o.UnitPrice, Amount: o.Amount,
		Status: o.Status, Paid: o.Paid, CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}
}

func toOrderResps(list []market.Order) []orderResp {
	out := make([]orderResp, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResp(o))
	}
	return out
}

// ---- helpers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to HTTP. The retryable kind gets 503
// plus Retry-After so clients know resubmission is safe.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, market.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, market.ErrInvalidQuantity), errors.Is(err, market.ErrInvalidPrice):
		code = http.StatusBadRequest
	case errors.Is(err, market.ErrInsufficientStock), errors.Is(err, market.ErrInvalidTransition):
		code = http.StatusConflict
	case market.Retryable(err):
		code = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func actorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user identity"})
		return "", false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

// ---- listings ----

func (h *Handler) browseListings(w http.ResponseWriter, r *http.Request) {
	list, err := h.Listings.Browse(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]listingResp, 0, len(list))
	for _, l := range list {
		out = append(out, toListingResp(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req createListingReq
	if !decode(w, r, &req) {
		return
	}

	l, err := h.Listings.Create(r.Context(), actor, req.Crop, req.UnitPrice, req.Quantity, req.Unit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingResp(l))
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request) {
	l, err := h.Listings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResp(l))
}

func (h *Handler) updatePrice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req updatePriceReq
	if !decode(w, r, &req) {
		return
	}

	l, err := h.Listings.UpdatePrice(r.Context(), chi.URLParam(r, "id"), actor, req.UnitPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResp(l))
}

func (h *Handler) topUp(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req topUpReq
	if !decode(w, r, &req) {
		return
	}

	l, err := h.Listings.TopUp(r.Context(), chi.URLParam(r, "id"), actor, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResp(l))
}

func (h *Handler) deactivateListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	l, err := h.Listings.Deactivate(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResp(l))
}

// ---- orders ----

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req placeOrderReq
	if !decode(w, r, &req) {
		return
	}
	if req.ListingID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing listing_id"})
		return
	}

	ctx := r.Context()

	// fast-path idempotency; the store check in Place stays authoritative
	if req.ExternalID != "" && h.Redis != nil {
		idemKey := fmt.Sprintf(redisx.KeyIdemPlaceOrder, req.ExternalID)
		if orderID, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && orderID != "" {
			if o, err := h.Orders.Get(ctx, orderID); err == nil {
				writeJSON(w, http.StatusOK, toOrderResp(o))
				return
			}
		}
	}

	o, err := h.Orders.Place(ctx, req.ListingID, actor, req.ExternalID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.ExternalID != "" && h.Redis != nil {
		_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyIdemPlaceOrder, req.ExternalID), o.ID, redisx.TTLIdempotency).Err()
	}
	h.invalidateStats(ctx, o.SellerID)

	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if o.BuyerID != actor && o.SellerID != actor {
		writeError(w, market.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *Handler) buyerOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	list, err := h.Orders.ListByBuyer(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResps(list))
}

func (h *Handler) sellerOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	list, err := h.Orders.ListBySeller(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResps(list))
}

func (h *Handler) decideOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	var req decisionReq
	if !decode(w, r, &req) {
		return
	}
	decision, ok := market.ToDecision(req.Decision)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid decision"})
		return
	}

	o, err := h.Orders.Decide(r.Context(), chi.URLParam(r, "id"), actor, decision)
	if err != nil {
		writeError(w, err)
		return
	}
	h.invalidateStats(r.Context(), o.SellerID)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *Handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	o, err := h.Orders.MarkDelivered(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	h.invalidateStats(r.Context(), o.SellerID)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	o, err := h.Orders.MarkPaid(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "order": toOrderResp(o), "payment": "simulated"})
}

// ---- stats & notifications ----

func (h *Handler) farmerTotals(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	t, err := h.Stats.FarmerTotals(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	if h.Notify == nil {
		writeJSON(w, http.StatusOK, []notify.Notification{})
		return
	}

	list, err := h.Notify.Feed(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(w, r)
	if !ok {
		return
	}
	if h.Notify == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if err := h.Notify.MarkAllRead(r.Context(), actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) invalidateStats(ctx context.Context, sellerID string) {
	if h.Stats != nil {
		h.Stats.Invalidate(ctx, sellerID)
	}
}
