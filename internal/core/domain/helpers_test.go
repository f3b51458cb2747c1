package domain_test

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/pkg/hashlock"
)

const (
	makerAddress    = "0x52908400098527886E0F7030069857D2E4169EE7"
	receiverAddress = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
	resolverID      = "resolver-1"
)

var oracle, _ = hashlock.NewOracle(hashlock.Sha256)

func newTestOrder(t *testing.T, start time.Time, duration time.Duration) domain.Order {
	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	order := domain.Order{
		Maker:        makerAddress,
		Receiver:     receiverAddress,
		SrcChain:     domain.ChainAccount,
		DstChain:     domain.ChainUTXO,
		SrcAsset:     "ETH",
		DstAsset:     "BTC",
		SrcAmount:    decimal.NewFromInt(2),
		MinDstAmount: decimal.NewFromInt(100),
		StartPrice:   decimal.NewFromInt(100),
		EndPrice:     decimal.NewFromInt(50),
		AuctionStart: start.Unix(),
		AuctionEnd:   start.Add(duration).Unix(),
		Nonce:        1,
	}
	order.Sign(key)
	return order
}

func newTestCommitment(
	t *testing.T, order domain.Order, price int64,
) domain.SwapCommitment {
	t.Helper()

	bid := domain.ResolverBid{
		OrderID:    order.ID,
		ResolverID: resolverID,
		Price:      decimal.NewFromInt(price),
		Timestamp:  time.Unix(order.AuctionStart, 0),
	}
	commitment, err := domain.NewSwapCommitment(order, bid, oracle, time.Now())
	require.NoError(t, err)
	return *commitment
}

func testTimelocks(anchor int64) domain.Timelocks {
	return domain.Timelocks{
		SrcWithdrawal:         anchor + 10,
		SrcPublicWithdrawal:   anchor + 300,
		SrcCancellation:       anchor + 600,
		SrcPublicCancellation: anchor + 900,
		DstWithdrawal:         anchor + 10,
		DstPublicWithdrawal:   anchor + 200,
		DstCancellation:       anchor + 400,
	}
}
