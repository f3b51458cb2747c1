package ports

import (
	"context"

	"github.com/xswap-network/xswapd/internal/core/domain"
)

// TxResult is the outcome of a chain write as reported by the chain relay.
type TxResult struct {
	TxID          string
	EscrowAddress string
}

// ChainReader gives read access to one ledger.
type ChainReader interface {
	// GetConfirmedEscrow returns the escrow confirmed at the given address, or
	// domain.ErrEscrowNotFound.
	GetConfirmedEscrow(ctx context.Context, address string) (*domain.EscrowRecord, error)
	// EscrowAddress returns the deterministic address at which the escrow
	// with the given params is deployed, whether or not it exists yet.
	EscrowAddress(ctx context.Context, params domain.EscrowRecord) (string, error)
	// GetCurrentTime returns the time used to evaluate timelocks on this
	// ledger, in unix seconds.
	GetCurrentTime(ctx context.Context) (int64, error)
}

// ChainWriter executes escrow operations on one ledger with the taker
// authority of the resolver. Calls must be idempotent: retrying a call whose
// outcome is unknown never results in a double spend. A deployment that would
// confirm at or after the escrow deploy deadline is rejected by the ledger.
type ChainWriter interface {
	DeployEscrow(ctx context.Context, params domain.EscrowRecord) (*TxResult, error)
	Withdraw(ctx context.Context, address string, secret []byte) (*TxResult, error)
	Cancel(ctx context.Context, address string) (*TxResult, error)
}

// Chain groups read and write access to one side of a swap.
type Chain interface {
	ChainReader
	ChainWriter
}
