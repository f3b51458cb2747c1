package httpinterface

import (
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xswap-network/xswapd/internal/core/application/gateway"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

type orderRequest struct {
	Maker        string `json:"maker"`
	MakerPubkey  string `json:"makerPubkey"`
	Receiver     string `json:"receiver"`
	SrcChain     string `json:"srcChain"`
	DstChain     string `json:"dstChain"`
	SrcAsset     string `json:"srcAsset"`
	DstAsset     string `json:"dstAsset"`
	SrcAmount    string `json:"srcAmount"`
	MinDstAmount string `json:"minDstAmount"`
	StartPrice   string `json:"startPrice"`
	EndPrice     string `json:"endPrice"`
	AuctionStart int64  `json:"auctionStart"`
	AuctionEnd   int64  `json:"auctionEnd"`
	Nonce        uint64 `json:"nonce"`
	Signature    string `json:"signature"`
}

func (r orderRequest) toDomain() (domain.Order, error) {
	amounts := map[string]string{
		"srcAmount":    r.SrcAmount,
		"minDstAmount": r.MinDstAmount,
		"startPrice":   r.StartPrice,
		"endPrice":     r.EndPrice,
	}
	parsed := make(map[string]decimal.Decimal, len(amounts))
	for field, value := range amounts {
		d, err := parseDecimal(field, value)
		if err != nil {
			return domain.Order{}, err
		}
		parsed[field] = d
	}
	pubkey, err := parseHex("makerPubkey", r.MakerPubkey)
	if err != nil {
		return domain.Order{}, err
	}
	sig, err := parseHex("signature", r.Signature)
	if err != nil {
		return domain.Order{}, err
	}

	return domain.Order{
		Maker:        r.Maker,
		MakerPubkey:  pubkey,
		Receiver:     r.Receiver,
		SrcChain:     domain.ChainKind(r.SrcChain),
		DstChain:     domain.ChainKind(r.DstChain),
		SrcAsset:     r.SrcAsset,
		DstAsset:     r.DstAsset,
		SrcAmount:    parsed["srcAmount"],
		MinDstAmount: parsed["minDstAmount"],
		StartPrice:   parsed["startPrice"],
		EndPrice:     parsed["endPrice"],
		AuctionStart: r.AuctionStart,
		AuctionEnd:   r.AuctionEnd,
		Nonce:        r.Nonce,
		Signature:    sig,
	}, nil
}

type bidRequest struct {
	ResolverID string `json:"resolverId"`
	Price      string `json:"price"`
}

type acceptRequest struct {
	ResolverID string `json:"resolverId"`
}

type webhookRequest struct {
	Event    string `json:"event"`
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret"`
}

type orderResponse struct {
	ID           string `json:"id"`
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver"`
	SrcChain     string `json:"srcChain"`
	DstChain     string `json:"dstChain"`
	SrcAsset     string `json:"srcAsset"`
	DstAsset     string `json:"dstAsset"`
	SrcAmount    string `json:"srcAmount"`
	MinDstAmount string `json:"minDstAmount"`
	StartPrice   string `json:"startPrice"`
	EndPrice     string `json:"endPrice"`
	AuctionStart int64  `json:"auctionStart"`
	AuctionEnd   int64  `json:"auctionEnd"`
	State        string `json:"state"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

func newOrderResponse(info domain.OrderInfo) orderResponse {
	o := info.Order
	return orderResponse{
		ID:           o.ID,
		Maker:        o.Maker,
		Receiver:     o.Receiver,
		SrcChain:     string(o.SrcChain),
		DstChain:     string(o.DstChain),
		SrcAsset:     o.SrcAsset,
		DstAsset:     o.DstAsset,
		SrcAmount:    o.SrcAmount.String(),
		MinDstAmount: o.MinDstAmount.String(),
		StartPrice:   o.StartPrice.String(),
		EndPrice:     o.EndPrice.String(),
		AuctionStart: o.AuctionStart,
		AuctionEnd:   o.AuctionEnd,
		State:        info.State.String(),
		CreatedAt:    info.CreatedAt,
		UpdatedAt:    info.UpdatedAt,
	}
}

type bidResponse struct {
	OrderID    string `json:"orderId"`
	ResolverID string `json:"resolverId"`
	Price      string `json:"price"`
	Timestamp  int64  `json:"timestamp"`
}

func newBidResponse(bid domain.ResolverBid) bidResponse {
	return bidResponse{
		OrderID:    bid.OrderID,
		ResolverID: bid.ResolverID,
		Price:      bid.Price.String(),
		Timestamp:  bid.Timestamp.UnixMilli(),
	}
}

type commitmentResponse struct {
	OrderID    string `json:"orderId"`
	ResolverID string `json:"resolverId"`
	FillPrice  string `json:"fillPrice"`
	SrcAmount  string `json:"srcAmount"`
	DstAmount  string `json:"dstAmount"`
	SecretHash string `json:"secretHash"`
	AcceptedAt int64  `json:"acceptedAt"`
}

// newCommitmentResponse never carries the secret.
func newCommitmentResponse(c domain.SwapCommitment) commitmentResponse {
	return commitmentResponse{
		OrderID:    c.OrderID,
		ResolverID: c.ResolverID,
		FillPrice:  c.FillPrice.String(),
		SrcAmount:  c.SrcAmount.String(),
		DstAmount:  c.DstAmount.String(),
		SecretHash: c.SecretHashString(),
		AcceptedAt: c.AcceptedAt.UnixMilli(),
	}
}

type quoteResponse struct {
	OrderID         string `json:"orderId"`
	Status          string `json:"status"`
	CurrentPrice    string `json:"currentPrice"`
	DisplayPrice    string `json:"displayPrice"`
	MarketPrice     string `json:"marketPrice,omitempty"`
	Progress        string `json:"progress"`
	TimeRemainingMs int64  `json:"timeRemaining"`
	Profitability   struct {
		IsProfitable         bool   `json:"isProfitable"`
		ExpectedReturn       string `json:"expectedReturn"`
		NetProfit            string `json:"netProfit"`
		OptimalExecutionTime int64  `json:"optimalExecutionTime"`
	} `json:"profitability"`
}

func newQuoteResponse(orderID string, q gateway.Quote) quoteResponse {
	resp := quoteResponse{
		OrderID:         orderID,
		Status:          q.Status.String(),
		CurrentPrice:    q.CurrentPrice.String(),
		DisplayPrice:    q.DisplayPrice.String(),
		Progress:        q.Progress.String(),
		TimeRemainingMs: q.TimeRemaining.Milliseconds(),
	}
	if q.MarketPrice.IsPositive() {
		resp.MarketPrice = q.MarketPrice.String()
	}
	resp.Profitability.IsProfitable = q.Profitability.IsProfitable
	resp.Profitability.ExpectedReturn = q.Profitability.ExpectedReturn.String()
	resp.Profitability.NetProfit = q.Profitability.NetProfit.String()
	if !q.Profitability.OptimalExecutionTime.IsZero() {
		resp.Profitability.OptimalExecutionTime = q.Profitability.OptimalExecutionTime.UnixMilli()
	}
	return resp
}

type escrowResponse struct {
	Side       string `json:"side"`
	Address    string `json:"address"`
	Maker      string `json:"maker"`
	Taker      string `json:"taker"`
	Amount     string `json:"amount"`
	Status     string `json:"status"`
	DeployedAt int64  `json:"deployedAt,omitempty"`
}

func newEscrowResponse(e *domain.EscrowRecord) *escrowResponse {
	if e == nil {
		return nil
	}
	return &escrowResponse{
		Side:       e.Side.String(),
		Address:    e.Address,
		Maker:      e.Maker,
		Taker:      e.Taker,
		Amount:     e.Amount.String(),
		Status:     e.Status.String(),
		DeployedAt: e.DeployedAt,
	}
}

type swapResponse struct {
	ID             string             `json:"id"`
	Status         string             `json:"status"`
	Commitment     commitmentResponse `json:"commitment"`
	Timelocks      domain.Timelocks   `json:"timelocks"`
	Source         *escrowResponse    `json:"source,omitempty"`
	Destination    *escrowResponse    `json:"destination,omitempty"`
	SecretReleased bool               `json:"secretReleased"`
	CancelReason   string             `json:"cancelReason,omitempty"`
	Alerts         []string           `json:"alerts,omitempty"`
	CreatedAt      int64              `json:"createdAt"`
	UpdatedAt      int64              `json:"updatedAt"`
}

func newSwapResponse(s domain.Swap) swapResponse {
	return swapResponse{
		ID:             s.ID,
		Status:         s.Status.String(),
		Commitment:     newCommitmentResponse(s.Commitment),
		Timelocks:      s.Timelocks,
		Source:         newEscrowResponse(s.Source),
		Destination:    newEscrowResponse(s.Destination),
		SecretReleased: s.SecretReleased,
		CancelReason:   s.CancelReason,
		Alerts:         s.Alerts,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &domain.ValidationError{
			Field: field, Reason: fmt.Sprintf("invalid number %q", value),
		}
	}
	return d, nil
}

func parseHex(field, value string) ([]byte, error) {
	buf, err := hex.DecodeString(value)
	if err != nil {
		return nil, &domain.ValidationError{Field: field, Reason: "must be hex encoded"}
	}
	return buf, nil
}
