package httpinterface

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/xswap-network/xswapd/internal/core/application/gateway"
	"github.com/xswap-network/xswapd/internal/core/application/pubsub"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

// GatewayService is the order and auction surface of the daemon.
type GatewayService interface {
	SubmitOrder(ctx context.Context, order domain.Order) (*domain.OrderInfo, error)
	GetOrder(ctx context.Context, orderID string) (*domain.OrderInfo, error)
	ListOrders(ctx context.Context) ([]domain.OrderInfo, error)
	ListBids(ctx context.Context, orderID string) ([]domain.ResolverBid, error)
	GetQuote(ctx context.Context, orderID string) (*gateway.Quote, error)
	SubmitBid(
		ctx context.Context, orderID, resolverID string, price decimal.Decimal,
	) (*domain.ResolverBid, error)
	AcceptBid(
		ctx context.Context, orderID, resolverID string,
	) (*domain.SwapCommitment, error)
	RequestCancel(ctx context.Context, orderID string) error
}

// SettlementService gives read access to the swaps.
type SettlementService interface {
	GetSwap(ctx context.Context, swapID string) (*domain.Swap, error)
	ListSwaps(ctx context.Context) ([]*domain.Swap, error)
}

// WebhookService manages the operator webhooks.
type WebhookService interface {
	AddWebhook(ctx context.Context, event, endpoint, secret string) (string, error)
	RemoveWebhook(ctx context.Context, id string) error
	ListWebhooks(ctx context.Context, event string) ([]pubsub.WebhookInfo, error)
}

type handler struct {
	gatewaySvc    GatewayService
	settlementSvc SettlementService
	webhookSvc    WebhookService
}

func (h *handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decode(w, r, &req) {
		return
	}
	order, err := req.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := h.gatewaySvc.SubmitOrder(r.Context(), order)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(*info))
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.gatewaySvc.ListOrders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, info := range orders {
		resp = append(resp, newOrderResponse(info))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": resp})
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	info, err := h.gatewaySvc.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(*info))
}

func (h *handler) getQuote(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	quote, err := h.gatewaySvc.GetQuote(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteResponse(orderID, *quote))
}

func (h *handler) listBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.gatewaySvc.ListBids(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]bidResponse, 0, len(bids))
	for _, bid := range bids {
		resp = append(resp, newBidResponse(bid))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bids": resp})
}

func (h *handler) submitBid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if !decode(w, r, &req) {
		return
	}
	price, err := parseDecimal("price", req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	bid, err := h.gatewaySvc.SubmitBid(
		r.Context(), chi.URLParam(r, "orderID"), req.ResolverID, price,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBidResponse(*bid))
}

func (h *handler) acceptBid(w http.ResponseWriter, r *http.Request) {
	// The body is optional: without a resolver the best bid is accepted.
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid json body"})
		return
	}
	commitment, err := h.gatewaySvc.AcceptBid(
		r.Context(), chi.URLParam(r, "orderID"), req.ResolverID,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCommitmentResponse(*commitment))
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.gatewaySvc.RequestCancel(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) listSwaps(w http.ResponseWriter, r *http.Request) {
	swaps, err := h.settlementSvc.ListSwaps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]swapResponse, 0, len(swaps))
	for _, s := range swaps {
		resp = append(resp, newSwapResponse(*s))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"swaps": resp})
}

func (h *handler) getSwap(w http.ResponseWriter, r *http.Request) {
	swap, err := h.settlementSvc.GetSwap(r.Context(), chi.URLParam(r, "swapID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSwapResponse(*swap))
}

func (h *handler) addWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.webhookSvc.AddWebhook(r.Context(), req.Event, req.Endpoint, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.webhookSvc.ListWebhooks(r.Context(), r.URL.Query().Get("event"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"webhooks": hooks})
}

func (h *handler) removeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.webhookSvc.RemoveWebhook(r.Context(), chi.URLParam(r, "webhookID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid json body"})
		return false
	}
	return true
}
