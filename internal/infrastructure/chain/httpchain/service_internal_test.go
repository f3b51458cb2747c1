package httpchain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
	"github.com/xswap-network/xswapd/internal/infrastructure/chain/simulated"
	"github.com/xswap-network/xswapd/pkg/hashlock"
)

var ctx = context.Background()

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// newTestRelay serves the relay API on top of a simulated ledger.
func newTestRelay(t *testing.T, ledger *simulated.Ledger, failing *int32) *httptest.Server {
	writeError := func(w http.ResponseWriter, err error) {
		code, status := "", http.StatusBadRequest
		for c, kind := range errorsByCode {
			if errors.Is(err, kind) {
				code = c
			}
		}
		if code == "escrow_not_found" {
			status = http.StatusNotFound
		}
		if errors.Is(err, domain.ErrChainUnavailable) {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		//nolint
		json.NewEncoder(w).Encode(errorResponse{code, err.Error()})
	}
	writeResult := func(w http.ResponseWriter, v interface{}) {
		//nolint
		json.NewEncoder(w).Encode(v)
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if atomic.LoadInt32(failing) > 0 {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/time", func(w http.ResponseWriter, req *http.Request) {
		now, _ := ledger.GetCurrentTime(req.Context())
		writeResult(w, timeResponse{now})
	})
	r.Post("/escrows", func(w http.ResponseWriter, req *http.Request) {
		var body escrow
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, domain.ErrValidation)
			return
		}
		body.Status = domain.EscrowStatusDeployed.String()
		params, err := body.toDomain()
		if err != nil {
			writeError(w, domain.ErrValidation)
			return
		}
		res, err := ledger.DeployEscrow(req.Context(), *params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResult(w, txResult{res.TxID, res.EscrowAddress})
	})
	r.Post("/escrows/address", func(w http.ResponseWriter, req *http.Request) {
		var body escrow
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, domain.ErrValidation)
			return
		}
		body.Status = domain.EscrowStatusDeployed.String()
		params, err := body.toDomain()
		if err != nil {
			writeError(w, domain.ErrValidation)
			return
		}
		address, err := ledger.EscrowAddress(req.Context(), *params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResult(w, addressResponse{address})
	})
	r.Get("/escrows/{address}", func(w http.ResponseWriter, req *http.Request) {
		e, err := ledger.GetConfirmedEscrow(req.Context(), chi.URLParam(req, "address"))
		if err != nil {
			writeError(w, err)
			return
		}
		body := newEscrow(*e)
		body.Status = e.Status.String()
		body.RevealedSecret = hex.EncodeToString(e.RevealedSecret)
		body.DeployedAt = e.DeployedAt
		writeResult(w, body)
	})
	r.Post("/escrows/{address}/withdraw", func(w http.ResponseWriter, req *http.Request) {
		var body withdrawRequest
		//nolint
		json.NewDecoder(req.Body).Decode(&body)
		secret, _ := hex.DecodeString(body.Secret)
		res, err := ledger.Withdraw(req.Context(), chi.URLParam(req, "address"), secret)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResult(w, txResult{TxID: res.TxID})
	})
	r.Post("/escrows/{address}/cancel", func(w http.ResponseWriter, req *http.Request) {
		res, err := ledger.Cancel(req.Context(), chi.URLParam(req, "address"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeResult(w, txResult{TxID: res.TxID})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestParams(t *testing.T, oracle domain.SecretOracle, anchor int64) (domain.EscrowRecord, []byte) {
	secret, err := hashlock.NewSecret()
	require.NoError(t, err)
	return domain.EscrowRecord{
		Side:       domain.SideSource,
		OrderHash:  "order",
		SecretHash: oracle.Hash(secret),
		Maker:      "maker",
		Taker:      "taker",
		Amount:     decimal.NewFromInt(2),
		Timelocks: domain.Timelocks{
			SrcWithdrawal:         anchor + 10,
			SrcPublicWithdrawal:   anchor + 300,
			SrcCancellation:       anchor + 600,
			SrcPublicCancellation: anchor + 900,
			DstWithdrawal:         anchor + 10,
			DstPublicWithdrawal:   anchor + 200,
			DstCancellation:       anchor + 400,
		},
	}, secret
}

func TestRelayClient(t *testing.T) {
	oracle, err := hashlock.NewOracle(hashlock.Sha256)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	ledger := simulated.NewLedger("src", fixedClock{now.Add(time.Minute)}, oracle, 0)
	var failing int32
	relay := newTestRelay(t, ledger, &failing)

	chain, err := NewService("src", relay.URL, time.Second)
	require.NoError(t, err)

	chainTime, err := chain.GetCurrentTime(ctx)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Minute).Unix(), chainTime)

	params, secret := newTestParams(t, oracle, now.Unix())
	address, err := chain.EscrowAddress(ctx, params)
	require.NoError(t, err)
	_, err = chain.GetConfirmedEscrow(ctx, address)
	require.ErrorIs(t, err, domain.ErrEscrowNotFound)

	res, err := chain.DeployEscrow(ctx, params)
	require.NoError(t, err)
	require.NotEmpty(t, res.TxID)
	require.Equal(t, address, res.EscrowAddress)

	again, err := chain.DeployEscrow(ctx, params)
	require.NoError(t, err)
	require.Equal(t, res.EscrowAddress, again.EscrowAddress)

	confirmed, err := chain.GetConfirmedEscrow(ctx, res.EscrowAddress)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusDeployed, confirmed.Status)
	require.Equal(t, params.SecretHash, confirmed.SecretHash)
	require.True(t, params.Amount.Equal(confirmed.Amount))
	require.Equal(t, params.Timelocks, confirmed.Timelocks)

	_, err = chain.GetConfirmedEscrow(ctx, "unknown")
	require.ErrorIs(t, err, domain.ErrEscrowNotFound)

	_, err = chain.Withdraw(ctx, res.EscrowAddress, []byte("wrong"))
	require.ErrorIs(t, err, domain.ErrInvalidSecret)

	_, err = chain.Withdraw(ctx, res.EscrowAddress, secret)
	require.NoError(t, err)

	withdrawn, err := chain.GetConfirmedEscrow(ctx, res.EscrowAddress)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowStatusWithdrawn, withdrawn.Status)
	require.Equal(t, secret, withdrawn.RevealedSecret)

	_, err = chain.Cancel(ctx, res.EscrowAddress)
	require.ErrorIs(t, err, domain.ErrEscrowFinalized)

	atomic.StoreInt32(&failing, 1)
	_, err = chain.GetCurrentTime(ctx)
	require.ErrorIs(t, err, domain.ErrChainUnavailable)
}

func TestRelayClientCircuitBreaker(t *testing.T) {
	oracle, err := hashlock.NewOracle(hashlock.Sha256)
	require.NoError(t, err)
	ledger := simulated.NewLedger("dst", fixedClock{time.Unix(1700000000, 0)}, oracle, 0)
	var failing int32 = 1
	relay := newTestRelay(t, ledger, &failing)

	var chain ports.Chain
	chain, err = NewService("dst", relay.URL, time.Second)
	require.NoError(t, err)

	// Domain rejections never trip the breaker.
	for i := 0; i < 20; i++ {
		atomic.StoreInt32(&failing, 0)
		_, err := chain.GetConfirmedEscrow(ctx, "unknown")
		require.ErrorIs(t, err, domain.ErrEscrowNotFound)
	}

	atomic.StoreInt32(&failing, 1)
	for i := 0; i < 40; i++ {
		_, err := chain.GetCurrentTime(ctx)
		require.ErrorIs(t, err, domain.ErrChainUnavailable)
	}

	// The breaker is open: requests fail even if the relay is back.
	atomic.StoreInt32(&failing, 0)
	_, err = chain.GetCurrentTime(ctx)
	require.ErrorIs(t, err, domain.ErrChainUnavailable)
}

func TestNewServiceInvalid(t *testing.T) {
	_, err := NewService("", "http://localhost", 0)
	require.Error(t, err)
	_, err = NewService("src", "not a url", 0)
	require.Error(t, err)
}
