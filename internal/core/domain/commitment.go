package domain

import (
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xswap-network/xswapd/pkg/hashlock"
)

// SwapCommitment binds an order to its winning bid and to a fresh secret.
// The secret stays with the coordinator until it's released to the winning
// resolver or revealed on-chain, and it's never serialized to JSON.
type SwapCommitment struct {
	OrderID    string
	ResolverID string
	FillPrice  decimal.Decimal
	SrcAmount  decimal.Decimal
	DstAmount  decimal.Decimal
	Secret     []byte `json:"-"`
	SecretHash []byte
	AcceptedAt time.Time
}

// NewSwapCommitment creates the commitment for the accepted bid.
func NewSwapCommitment(
	order Order, bid ResolverBid, oracle SecretOracle, acceptedAt time.Time,
) (*SwapCommitment, error) {
	if bid.OrderID != order.ID {
		return nil, newValidationError("order_id", "bid does not target order %s", order.ID)
	}
	dstAmount := order.DstAmountAt(bid.Price)
	if dstAmount.LessThan(order.MinDstAmount) {
		return nil, newValidationError("price", "fill below min destination amount")
	}

	secret, err := hashlock.NewSecret()
	if err != nil {
		return nil, err
	}

	return &SwapCommitment{
		OrderID:    order.ID,
		ResolverID: bid.ResolverID,
		FillPrice:  bid.Price,
		SrcAmount:  order.SrcAmount,
		DstAmount:  dstAmount,
		Secret:     secret,
		SecretHash: oracle.Hash(secret),
		AcceptedAt: acceptedAt,
	}, nil
}

// SecretHashString returns the hex encoded secret hash.
func (c SwapCommitment) SecretHashString() string {
	return hex.EncodeToString(c.SecretHash)
}

// Public returns a copy of the commitment without the secret.
func (c SwapCommitment) Public() SwapCommitment {
	c.Secret = nil
	return c
}
