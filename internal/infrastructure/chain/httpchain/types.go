package httpchain

import (
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xswap-network/xswapd/internal/core/domain"
)

var (
	sides = map[string]domain.EscrowSide{
		domain.SideSource.String():      domain.SideSource,
		domain.SideDestination.String(): domain.SideDestination,
	}
	statuses = map[string]domain.EscrowStatus{
		domain.EscrowStatusDeployed.String():  domain.EscrowStatusDeployed,
		domain.EscrowStatusWithdrawn.String(): domain.EscrowStatusWithdrawn,
		domain.EscrowStatusCancelled.String(): domain.EscrowStatusCancelled,
	}

	// errorsByCode maps the error codes of the relay to the domain errors
	// they stand for.
	errorsByCode = map[string]error{
		"escrow_not_found":   domain.ErrEscrowNotFound,
		"escrow_finalized":   domain.ErrEscrowFinalized,
		"invalid_secret":     domain.ErrInvalidSecret,
		"timelock_violation": domain.ErrTimelockViolation,
		"unauthorized":       domain.ErrUnauthorizedCaller,
		"invalid_params":     domain.ErrValidation,
	}
)

type timelocks struct {
	SrcWithdrawal         int64 `json:"srcWithdrawal"`
	SrcPublicWithdrawal   int64 `json:"srcPublicWithdrawal"`
	SrcCancellation       int64 `json:"srcCancellation"`
	SrcPublicCancellation int64 `json:"srcPublicCancellation"`
	DstWithdrawal         int64 `json:"dstWithdrawal"`
	DstPublicWithdrawal   int64 `json:"dstPublicWithdrawal"`
	DstCancellation       int64 `json:"dstCancellation"`
}

type escrow struct {
	Side                string          `json:"side"`
	Address             string          `json:"address,omitempty"`
	OrderHash           string          `json:"orderHash"`
	SecretHash          string          `json:"secretHash"`
	Maker               string          `json:"maker"`
	Taker               string          `json:"taker"`
	Amount              decimal.Decimal `json:"amount"`
	SafetyDeposit       decimal.Decimal `json:"safetyDeposit"`
	Timelocks           timelocks       `json:"timelocks"`
	SrcCancellationTime int64           `json:"srcCancellationTime,omitempty"`
	Status              string          `json:"status,omitempty"`
	RevealedSecret      string          `json:"revealedSecret,omitempty"`
	DeployedAt          int64           `json:"deployedAt,omitempty"`
}

func newEscrow(e domain.EscrowRecord) escrow {
	t := e.Timelocks
	return escrow{
		Side:          e.Side.String(),
		Address:       e.Address,
		OrderHash:     e.OrderHash,
		SecretHash:    hex.EncodeToString(e.SecretHash),
		Maker:         e.Maker,
		Taker:         e.Taker,
		Amount:        e.Amount,
		SafetyDeposit: e.SafetyDeposit,
		Timelocks: timelocks{
			t.SrcWithdrawal, t.SrcPublicWithdrawal, t.SrcCancellation,
			t.SrcPublicCancellation, t.DstWithdrawal, t.DstPublicWithdrawal,
			t.DstCancellation,
		},
		SrcCancellationTime: e.SrcCancellationTime,
	}
}

func (e escrow) toDomain() (*domain.EscrowRecord, error) {
	side, ok := sides[e.Side]
	if !ok {
		return nil, fmt.Errorf("unknown escrow side %q", e.Side)
	}
	status, ok := statuses[e.Status]
	if !ok {
		return nil, fmt.Errorf("unknown escrow status %q", e.Status)
	}
	secretHash, err := hex.DecodeString(e.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("invalid secret hash: %w", err)
	}
	var secret []byte
	if e.RevealedSecret != "" {
		if secret, err = hex.DecodeString(e.RevealedSecret); err != nil {
			return nil, fmt.Errorf("invalid revealed secret: %w", err)
		}
	}

	t := e.Timelocks
	return &domain.EscrowRecord{
		Side:          side,
		Address:       e.Address,
		OrderHash:     e.OrderHash,
		SecretHash:    secretHash,
		Maker:         e.Maker,
		Taker:         e.Taker,
		Amount:        e.Amount,
		SafetyDeposit: e.SafetyDeposit,
		Timelocks: domain.Timelocks{
			SrcWithdrawal:         t.SrcWithdrawal,
			SrcPublicWithdrawal:   t.SrcPublicWithdrawal,
			SrcCancellation:       t.SrcCancellation,
			SrcPublicCancellation: t.SrcPublicCancellation,
			DstWithdrawal:         t.DstWithdrawal,
			DstPublicWithdrawal:   t.DstPublicWithdrawal,
			DstCancellation:       t.DstCancellation,
		},
		SrcCancellationTime: e.SrcCancellationTime,
		Status:              status,
		RevealedSecret:      secret,
		DeployedAt:          e.DeployedAt,
	}, nil
}

type txResult struct {
	TxID    string `json:"txid"`
	Address string `json:"address,omitempty"`
}

type addressResponse struct {
	Address string `json:"address"`
}

type withdrawRequest struct {
	Secret string `json:"secret"`
}

type timeResponse struct {
	Time int64 `json:"time"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
