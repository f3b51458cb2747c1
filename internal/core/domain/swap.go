package domain

import (
	"fmt"
	"time"
)

// SwapStatus is the lifecycle state of a cross-chain swap.
type SwapStatus int

const (
	SwapStatusMatched SwapStatus = iota
	SwapStatusSourceEscrowPending
	SwapStatusSourceEscrowFunded
	SwapStatusDestEscrowPending
	SwapStatusDestEscrowFunded
	SwapStatusRevealed
	SwapStatusSettled
	SwapStatusCancelling
	SwapStatusCancelled
)

var swapStatusNames = map[SwapStatus]string{
	SwapStatusMatched:             "matched",
	SwapStatusSourceEscrowPending: "source_escrow_pending",
	SwapStatusSourceEscrowFunded:  "source_escrow_funded",
	SwapStatusDestEscrowPending:   "dest_escrow_pending",
	SwapStatusDestEscrowFunded:    "dest_escrow_funded",
	SwapStatusRevealed:            "revealed",
	SwapStatusSettled:             "settled",
	SwapStatusCancelling:          "cancelling",
	SwapStatusCancelled:           "cancelled",
}

func (s SwapStatus) String() string {
	if name, ok := swapStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal returns whether the swap reached finality.
func (s SwapStatus) IsTerminal() bool {
	return s == SwapStatusSettled || s == SwapStatusCancelled
}

// Swap is the aggregate tracking one swap from bid acceptance to finality.
// Every state change goes through its methods, that reject illegal
// transitions and keep the pair of escrows consistent.
type Swap struct {
	ID                string
	Order             Order
	Commitment        SwapCommitment
	Timelocks         Timelocks
	Status            SwapStatus
	Source            *EscrowRecord
	Destination       *EscrowRecord
	SrcDeployTxID     string
	DstDeployTxID     string
	SecretReleased    bool
	SecretReleasedAt  int64
	CancelReason      string
	Alerts            []string
	StatusChangedAt   int64
	CreatedAt         int64
	UpdatedAt         int64
}

// NewSwap returns a Matched swap for the commitment. Timelocks are validated
// here, before any escrow exists.
func NewSwap(
	order Order, commitment SwapCommitment, timelocks Timelocks,
) (*Swap, error) {
	if commitment.OrderID != order.ID {
		return nil, fmt.Errorf("%w: commitment order mismatch", ErrInconsistentEscrowPair)
	}
	if err := timelocks.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	return &Swap{
		ID:              order.ID,
		Order:           order,
		Commitment:      commitment,
		Timelocks:       timelocks,
		Status:          SwapStatusMatched,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// SourceEscrowParams returns the escrow that must be deployed on the source
// chain: maker funds locked for the winning resolver.
func (s *Swap) SourceEscrowParams() EscrowRecord {
	return EscrowRecord{
		Side:       SideSource,
		OrderHash:  s.Order.ID,
		SecretHash: s.Commitment.SecretHash,
		Maker:      s.Order.Maker,
		Taker:      s.Commitment.ResolverID,
		Amount:     s.Commitment.SrcAmount,
		Timelocks:  s.Timelocks,
	}
}

// DestinationEscrowParams returns the escrow that must be deployed on the
// destination chain: resolver funds locked for the maker receiver.
func (s *Swap) DestinationEscrowParams() EscrowRecord {
	return EscrowRecord{
		Side:                SideDestination,
		OrderHash:           s.Order.ID,
		SecretHash:          s.Commitment.SecretHash,
		Maker:               s.Order.Receiver,
		Taker:               s.Commitment.ResolverID,
		Amount:              s.Commitment.DstAmount,
		Timelocks:           s.Timelocks,
		SrcCancellationTime: s.Timelocks.SrcCancellation,
	}
}

// Escrow returns the known record for the given side, if any.
func (s *Swap) Escrow(side EscrowSide) *EscrowRecord {
	if side == SideDestination {
		return s.Destination
	}
	return s.Source
}

// PrepareEscrow records the address at which the escrow of the given side is
// about to be deployed, before the deployment is submitted. From now on the
// escrow must be resolved on-chain before the swap can be cancelled.
func (s *Swap) PrepareEscrow(side EscrowSide, address string) error {
	expected := SwapStatusMatched
	if side == SideDestination {
		expected = SwapStatusSourceEscrowFunded
	}
	if err := s.expect(expected); err != nil {
		return err
	}
	if address == "" {
		return fmt.Errorf("%w: missing %s escrow address", ErrInvalidTransition, side)
	}

	params := s.SourceEscrowParams()
	if side == SideDestination {
		params = s.DestinationEscrowParams()
	}
	params.Address = address
	if side == SideDestination {
		s.Destination = &params
	} else {
		s.Source = &params
	}
	s.touch()
	return nil
}

// DiscardEscrow forgets an escrow whose deployment never confirmed once it
// can no longer confirm. Only possible while cancelling.
func (s *Swap) DiscardEscrow(side EscrowSide) error {
	if err := s.expect(SwapStatusCancelling); err != nil {
		return err
	}
	escrow := s.Escrow(side)
	if escrow == nil {
		return nil
	}
	if escrow.Status != EscrowStatusUndefined {
		return fmt.Errorf(
			"%w: %s escrow is %s", ErrInvalidTransition, side, escrow.Status,
		)
	}
	if side == SideDestination {
		s.Destination = nil
	} else {
		s.Source = nil
	}
	s.touch()
	return nil
}

// RequestSourceEscrow records the deployment request of the source escrow.
func (s *Swap) RequestSourceEscrow(address, txid string) error {
	if err := s.expect(SwapStatusMatched); err != nil {
		return err
	}
	params := s.SourceEscrowParams()
	params.Address = address
	s.Source = &params
	s.SrcDeployTxID = txid
	s.setStatus(SwapStatusSourceEscrowPending)
	return nil
}

// ConfirmSourceEscrow moves the swap to SourceEscrowFunded once the chain
// confirms an escrow matching the commitment.
func (s *Swap) ConfirmSourceEscrow(confirmed EscrowRecord) error {
	if err := s.expect(SwapStatusSourceEscrowPending); err != nil {
		return err
	}
	if err := s.checkConfirmed(confirmed, s.SourceEscrowParams()); err != nil {
		return err
	}
	s.Source = &confirmed
	s.setStatus(SwapStatusSourceEscrowFunded)
	return nil
}

// RequestDestinationEscrow records the deployment request of the destination
// escrow. It's only possible once the source one is funded.
func (s *Swap) RequestDestinationEscrow(address, txid string) error {
	if err := s.expect(SwapStatusSourceEscrowFunded); err != nil {
		return err
	}
	params := s.DestinationEscrowParams()
	params.Address = address
	s.Destination = &params
	s.DstDeployTxID = txid
	s.setStatus(SwapStatusDestEscrowPending)
	return nil
}

// ConfirmDestinationEscrow moves the swap to DestEscrowFunded if the
// confirmed destination escrow is consistent with the source one and with the
// accepted bid. On mismatch the swap is left untouched and the caller is
// expected to start cancelling.
func (s *Swap) ConfirmDestinationEscrow(confirmed EscrowRecord) error {
	if err := s.expect(SwapStatusDestEscrowPending); err != nil {
		return err
	}
	if err := s.checkConfirmed(confirmed, s.DestinationEscrowParams()); err != nil {
		return err
	}
	if err := CheckEscrowPair(*s.Source, confirmed, s.Commitment); err != nil {
		return err
	}
	s.Destination = &confirmed
	s.setStatus(SwapStatusDestEscrowFunded)
	return nil
}

// ReleaseSecret marks the secret as shared with the winning resolver. From
// now on the swap can only move forward to settlement.
func (s *Swap) ReleaseSecret(now int64) error {
	if err := s.expect(SwapStatusDestEscrowFunded); err != nil {
		return err
	}
	if !s.SecretReleased {
		s.SecretReleased = true
		s.SecretReleasedAt = now
		s.touch()
	}
	return nil
}

// Reveal moves the swap to Revealed once a withdrawal published the secret
// on-chain.
func (s *Swap) Reveal(secret []byte, oracle SecretOracle) error {
	if s.Status != SwapStatusDestEscrowFunded && s.Status != SwapStatusCancelling {
		return s.invalidTransition(SwapStatusRevealed)
	}
	if !oracle.Verify(secret, s.Commitment.SecretHash) {
		return ErrInvalidSecret
	}
	if !s.isFunded() {
		return fmt.Errorf("%w: escrow pair not funded", ErrInvalidTransition)
	}
	s.setStatus(SwapStatusRevealed)
	return nil
}

// UpdateEscrowStatus records the status of one escrow as observed on-chain.
// It returns ErrMixedTerminalState if the observation leaves one escrow
// withdrawn and the other cancelled: the status is recorded anyway since it
// reflects the chain, but the swap can then never reach finality.
func (s *Swap) UpdateEscrowStatus(
	side EscrowSide, status EscrowStatus, revealedSecret []byte,
) error {
	escrow := s.Escrow(side)
	if escrow == nil {
		return fmt.Errorf("%w: %s escrow not deployed", ErrInvalidTransition, side)
	}
	if escrow.Status.IsTerminal() && escrow.Status != status {
		return fmt.Errorf(
			"%w: %s escrow already %s", ErrEscrowFinalized, side, escrow.Status,
		)
	}
	escrow.Status = status
	if len(revealedSecret) > 0 {
		escrow.RevealedSecret = revealedSecret
	}
	s.touch()

	if s.hasMixedTerminalState() {
		return ErrMixedTerminalState
	}
	return nil
}

// Settle moves a Revealed swap to Settled. Both escrows must be withdrawn.
func (s *Swap) Settle() error {
	if err := s.expect(SwapStatusRevealed); err != nil {
		return err
	}
	if s.Source.Status != EscrowStatusWithdrawn ||
		s.Destination.Status != EscrowStatusWithdrawn {
		return fmt.Errorf(
			"%w: both escrows must be withdrawn, got (%s, %s)",
			ErrInvalidTransition, s.Source.Status, s.Destination.Status,
		)
	}
	s.setStatus(SwapStatusSettled)
	return nil
}

// StartCancelling moves the swap to Cancelling. This is possible from any
// state preceding Revealed as long as the secret wasn't released.
func (s *Swap) StartCancelling(reason string) error {
	if s.Status == SwapStatusCancelling {
		return nil
	}
	if s.Status.IsTerminal() || s.Status == SwapStatusRevealed {
		return s.invalidTransition(SwapStatusCancelling)
	}
	if s.SecretReleased {
		return fmt.Errorf(
			"%w: secret already released, swap can't be cancelled",
			ErrInvalidTransition,
		)
	}
	s.CancelReason = reason
	s.setStatus(SwapStatusCancelling)
	return nil
}

// Cancel moves a Cancelling swap to Cancelled. Every known escrow must be
// cancelled, including those requested but not yet confirmed: they must be
// discarded first.
func (s *Swap) Cancel() error {
	if err := s.expect(SwapStatusCancelling); err != nil {
		return err
	}
	for _, escrow := range []*EscrowRecord{s.Source, s.Destination} {
		if escrow == nil {
			continue
		}
		if escrow.Status != EscrowStatusCancelled {
			return fmt.Errorf(
				"%w: %s escrow is %s", ErrInvalidTransition, escrow.Side, escrow.Status,
			)
		}
	}
	s.setStatus(SwapStatusCancelled)
	return nil
}

// AddAlert records a liveness issue that requires operator attention.
func (s *Swap) AddAlert(msg string) {
	s.Alerts = append(s.Alerts, msg)
	s.touch()
}

// Clone returns a deep copy of the swap.
func (s *Swap) Clone() *Swap {
	c := *s
	if s.Source != nil {
		src := *s.Source
		c.Source = &src
	}
	if s.Destination != nil {
		dst := *s.Destination
		c.Destination = &dst
	}
	c.Alerts = append([]string(nil), s.Alerts...)
	return &c
}

// IsTerminal ...
func (s *Swap) IsTerminal() bool {
	return s.Status.IsTerminal()
}

func (s *Swap) isFunded() bool {
	return s.Source != nil && s.Source.Status != EscrowStatusUndefined &&
		s.Destination != nil && s.Destination.Status != EscrowStatusUndefined
}

func (s *Swap) hasMixedTerminalState() bool {
	if s.Source == nil || s.Destination == nil {
		return false
	}
	src, dst := s.Source.Status, s.Destination.Status
	return (src == EscrowStatusWithdrawn && dst == EscrowStatusCancelled) ||
		(src == EscrowStatusCancelled && dst == EscrowStatusWithdrawn)
}

func (s *Swap) checkConfirmed(confirmed, expected EscrowRecord) error {
	if confirmed.Side != expected.Side {
		return fmt.Errorf("%w: wrong escrow side", ErrInconsistentEscrowPair)
	}
	if confirmed.Status != EscrowStatusDeployed {
		return fmt.Errorf(
			"%w: %s escrow is %s", ErrInconsistentEscrowPair, expected.Side,
			confirmed.Status,
		)
	}
	if confirmed.OrderHash != expected.OrderHash ||
		string(confirmed.SecretHash) != string(expected.SecretHash) {
		return fmt.Errorf(
			"%w: %s escrow committed to a different swap",
			ErrInconsistentEscrowPair, expected.Side,
		)
	}
	if confirmed.Amount.LessThan(expected.Amount) {
		return fmt.Errorf(
			"%w: %s escrow amount %s below %s", ErrInconsistentEscrowPair,
			expected.Side, confirmed.Amount, expected.Amount,
		)
	}
	return nil
}

func (s *Swap) expect(status SwapStatus) error {
	if s.Status != status {
		return fmt.Errorf(
			"%w: swap is %s, expected %s", ErrInvalidTransition, s.Status, status,
		)
	}
	return nil
}

func (s *Swap) invalidTransition(next SwapStatus) error {
	return fmt.Errorf("%w: swap %s -> %s", ErrInvalidTransition, s.Status, next)
}

func (s *Swap) setStatus(status SwapStatus) {
	s.Status = status
	s.StatusChangedAt = time.Now().Unix()
	s.touch()
}

func (s *Swap) touch() {
	s.UpdatedAt = time.Now().Unix()
}
