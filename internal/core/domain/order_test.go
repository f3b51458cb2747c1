package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

func TestOrderValidate(t *testing.T) {
	order := newTestOrder(t, time.Now(), 10*time.Minute)
	require.NoError(t, order.Validate())
	require.Equal(t, order.HashString(), order.ID)
	require.Len(t, order.Hash(), 32)
}

func TestFailingOrderValidate(t *testing.T) {
	otherKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	tests := []struct {
		name        string
		mutate      func(o *domain.Order)
		expectedErr error
	}{
		{
			name:        "missing_src_asset",
			mutate:      func(o *domain.Order) { o.SrcAsset = " " },
			expectedErr: domain.ErrValidation,
		},
		{
			name:        "invalid_maker_address",
			mutate:      func(o *domain.Order) { o.Maker = "0x1234" },
			expectedErr: domain.ErrValidation,
		},
		{
			name:        "invalid_receiver_address",
			mutate:      func(o *domain.Order) { o.Receiver = makerAddress },
			expectedErr: domain.ErrValidation,
		},
		{
			name:        "zero_amount",
			mutate:      func(o *domain.Order) { o.SrcAmount = decimal.Zero },
			expectedErr: domain.ErrValidation,
		},
		{
			name:        "start_price_not_above_end_price",
			mutate:      func(o *domain.Order) { o.StartPrice = o.EndPrice },
			expectedErr: domain.ErrValidation,
		},
		{
			name:        "auction_end_before_start",
			mutate:      func(o *domain.Order) { o.AuctionEnd = o.AuctionStart },
			expectedErr: domain.ErrValidation,
		},
		{
			name: "floor_below_min_dst_amount",
			mutate: func(o *domain.Order) {
				o.MinDstAmount = decimal.NewFromInt(101)
			},
			expectedErr: domain.ErrValidation,
		},
		{
			name:        "tampered_order",
			mutate:      func(o *domain.Order) { o.Nonce++ },
			expectedErr: domain.ErrInvalidSignature,
		},
		{
			name: "signed_by_other_key",
			mutate: func(o *domain.Order) {
				o.MakerPubkey = otherKey.PubKey().SerializeCompressed()
			},
			expectedErr: domain.ErrInvalidSignature,
		},
	}

	for i := range tests {
		tt := tests[i]

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			order := newTestOrder(t, time.Now(), 10*time.Minute)
			tt.mutate(&order)

			err := order.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.expectedErr), err.Error())
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestOrderStateTransitions(t *testing.T) {
	require.NoError(t, domain.OrderStatePending.ValidateTransition(domain.OrderStateActive))
	require.NoError(t, domain.OrderStateActive.ValidateTransition(domain.OrderStateMatched))
	require.NoError(t, domain.OrderStateActive.ValidateTransition(domain.OrderStateExpired))

	for _, s := range []domain.OrderState{
		domain.OrderStateExpired, domain.OrderStateCancelled,
	} {
		require.True(t, s.IsTerminal())
		require.False(t, s.IsBiddable())
		require.ErrorIs(t, s.ValidateTransition(domain.OrderStateActive), domain.ErrInvalidTransition)
	}

	require.False(t, domain.OrderStateMatched.IsBiddable())
	require.NoError(t, domain.OrderStateMatched.ValidateTransition(domain.OrderStateCancelled))
	require.ErrorIs(
		t, domain.OrderStateMatched.ValidateTransition(domain.OrderStateActive),
		domain.ErrInvalidTransition,
	)
	require.ErrorIs(
		t, domain.OrderStateMatched.ValidateTransition(domain.OrderStateMatched),
		domain.ErrInvalidTransition,
	)
	require.True(t, domain.OrderStateActive.IsBiddable())
}
