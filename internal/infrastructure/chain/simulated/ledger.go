// Package simulated implements an in-memory ledger enforcing the escrow
// timelock rules. It backs dev deployments and end-to-end tests.
package simulated

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/xswap-network/xswapd/internal/core/domain"
	"github.com/xswap-network/xswapd/internal/core/ports"
)

// Ledger is a ports.Chain whose writes are executed with the taker role.
// Escrows become visible to readers only after the confirmation delay.
type Ledger struct {
	name              string
	clock             ports.Clock
	oracle            domain.SecretOracle
	confirmationDelay time.Duration

	lock        sync.Mutex
	escrows     map[string]*domain.EscrowRecord
	confirmedAt map[string]time.Time
	faults      map[string]int
	lostReplies map[string]int
	tamper      func(e *domain.EscrowRecord)
}

// NewLedger returns an empty ledger with the given name.
func NewLedger(
	name string, clock ports.Clock, oracle domain.SecretOracle,
	confirmationDelay time.Duration,
) *Ledger {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Ledger{
		name:              name,
		clock:             clock,
		oracle:            oracle,
		confirmationDelay: confirmationDelay,
		escrows:           make(map[string]*domain.EscrowRecord),
		confirmedAt:       make(map[string]time.Time),
		faults:            make(map[string]int),
		lostReplies:       make(map[string]int),
	}
}

// FailNext makes the next n calls of the given operation fail with
// domain.ErrChainUnavailable. Operations are "deploy", "withdraw", "cancel",
// "get_escrow", "get_address" and "get_time".
func (l *Ledger) FailNext(op string, n int) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.faults[op] = n
}

// LoseReplies makes the next n calls of the given operation take effect but
// fail with domain.ErrChainUnavailable, as if the reply got lost.
func (l *Ledger) LoseReplies(op string, n int) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.lostReplies[op] = n
}

// Tamper sets a function altering every escrow deployed from now on.
func (l *Ledger) Tamper(fn func(e *domain.EscrowRecord)) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.tamper = fn
}

func (l *Ledger) DeployEscrow(
	_ context.Context, params domain.EscrowRecord,
) (*ports.TxResult, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if err := l.fault("deploy"); err != nil {
		return nil, err
	}

	deadline := params.Timelocks.DeployDeadline(params.Side)
	if l.now() >= deadline {
		return nil, fmt.Errorf(
			"%w: %s escrow deploy deadline passed", domain.ErrTimelockViolation,
			params.Side,
		)
	}

	address := l.escrowAddress(params)
	confirmAt := l.clock.Now().Add(l.confirmationDelay)
	// A deployment confirming past the deadline is reverted.
	if _, ok := l.escrows[address]; !ok && confirmAt.Unix() < deadline {
		record := params
		record.Address = address
		record.Status = domain.EscrowStatusDeployed
		record.DeployedAt = l.clock.Now().Unix()
		if l.tamper != nil {
			l.tamper(&record)
		}
		l.escrows[address] = &record
		l.confirmedAt[address] = confirmAt
	}
	if err := l.lostReply("deploy"); err != nil {
		return nil, err
	}
	return &ports.TxResult{
		TxID:          txid("deploy", address),
		EscrowAddress: address,
	}, nil
}

func (l *Ledger) Withdraw(
	_ context.Context, address string, secret []byte,
) (*ports.TxResult, error) {
	return l.WithdrawAs(address, secret, domain.RoleTaker)
}

func (l *Ledger) Cancel(
	_ context.Context, address string,
) (*ports.TxResult, error) {
	return l.CancelAs(address, domain.RoleTaker)
}

// WithdrawAs withdraws the escrow with the given role. Withdrawing an escrow
// already withdrawn with the same secret is a no-op.
func (l *Ledger) WithdrawAs(
	address string, secret []byte, role domain.Role,
) (*ports.TxResult, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if err := l.fault("withdraw"); err != nil {
		return nil, err
	}
	record, err := l.confirmed(address)
	if err != nil {
		return nil, err
	}
	if record.Status == domain.EscrowStatusWithdrawn &&
		string(record.RevealedSecret) == string(secret) {
		return &ports.TxResult{TxID: txid("withdraw", address)}, nil
	}
	if _, err := record.Withdraw(secret, role, l.now(), l.oracle); err != nil {
		return nil, err
	}
	return &ports.TxResult{TxID: txid("withdraw", address)}, nil
}

// CancelAs cancels the escrow with the given role. Cancelling an escrow
// already cancelled is a no-op.
func (l *Ledger) CancelAs(
	address string, role domain.Role,
) (*ports.TxResult, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if err := l.fault("cancel"); err != nil {
		return nil, err
	}
	record, err := l.confirmed(address)
	if err != nil {
		return nil, err
	}
	if record.Status == domain.EscrowStatusCancelled {
		return &ports.TxResult{TxID: txid("cancel", address)}, nil
	}
	if _, err := record.Cancel(role, l.now()); err != nil {
		return nil, err
	}
	return &ports.TxResult{TxID: txid("cancel", address)}, nil
}

func (l *Ledger) GetConfirmedEscrow(
	_ context.Context, address string,
) (*domain.EscrowRecord, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if err := l.fault("get_escrow"); err != nil {
		return nil, err
	}
	record, err := l.confirmed(address)
	if err != nil {
		return nil, err
	}
	r := *record
	return &r, nil
}

func (l *Ledger) EscrowAddress(
	_ context.Context, params domain.EscrowRecord,
) (string, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if err := l.fault("get_address"); err != nil {
		return "", err
	}
	return l.escrowAddress(params), nil
}

func (l *Ledger) GetCurrentTime(_ context.Context) (int64, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if err := l.fault("get_time"); err != nil {
		return 0, err
	}
	return l.now(), nil
}

// Escrows returns a copy of every escrow deployed on the ledger, confirmed
// or not.
func (l *Ledger) Escrows() []domain.EscrowRecord {
	l.lock.Lock()
	defer l.lock.Unlock()

	records := make([]domain.EscrowRecord, 0, len(l.escrows))
	for _, r := range l.escrows {
		records = append(records, *r)
	}
	return records
}

func (l *Ledger) confirmed(address string) (*domain.EscrowRecord, error) {
	record, ok := l.escrows[address]
	if !ok || l.clock.Now().Before(l.confirmedAt[address]) {
		return nil, domain.ErrEscrowNotFound
	}
	return record, nil
}

func (l *Ledger) fault(op string) error {
	if l.faults[op] <= 0 {
		return nil
	}
	l.faults[op]--
	return fmt.Errorf("%w: %s %s", domain.ErrChainUnavailable, l.name, op)
}

func (l *Ledger) lostReply(op string) error {
	if l.lostReplies[op] <= 0 {
		return nil
	}
	l.lostReplies[op]--
	return fmt.Errorf("%w: %s %s reply lost", domain.ErrChainUnavailable, l.name, op)
}

func (l *Ledger) now() int64 {
	return l.clock.Now().Unix()
}

// escrowAddress derives the address from the escrow immutables, so that
// retried deployments of the same escrow are idempotent.
func (l *Ledger) escrowAddress(params domain.EscrowRecord) string {
	buf := fmt.Sprintf(
		"%s:%s:%s:%x:%s", l.name, params.Side, params.OrderHash,
		params.SecretHash, params.Taker,
	)
	return fmt.Sprintf("%s1%s", l.name, chainhash.HashH([]byte(buf)).String()[:40])
}

func txid(op, address string) string {
	return chainhash.HashH([]byte(op + address)).String()
}
