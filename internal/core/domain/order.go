package domain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shopspring/decimal"
	"github.com/xswap-network/xswapd/pkg/addrutil"
)

// ChainKind tells how addresses of one side of the swap must be interpreted.
type ChainKind string

const (
	ChainAccount ChainKind = "account"
	ChainUTXO    ChainKind = "utxo"
)

func (k ChainKind) validateAddress(addr string) error {
	switch k {
	case ChainAccount:
		return addrutil.ValidateAccountAddress(addr)
	case ChainUTXO:
		return addrutil.ValidateUTXOAddress(addr)
	default:
		return fmt.Errorf("unknown chain kind %q", k)
	}
}

// Order is the immutable signed intent of a maker to swap SrcAmount of
// SrcAsset for at least MinDstAmount of DstAsset through a Dutch auction.
// Prices are expressed in units of DstAsset per unit of SrcAsset.
type Order struct {
	ID           string
	Maker        string
	MakerPubkey  []byte
	Receiver     string
	SrcChain     ChainKind
	DstChain     ChainKind
	SrcAsset     string
	DstAsset     string
	SrcAmount    decimal.Decimal
	MinDstAmount decimal.Decimal
	StartPrice   decimal.Decimal
	EndPrice     decimal.Decimal
	AuctionStart int64
	AuctionEnd   int64
	Nonce        uint64
	Signature    []byte
}

// Hash returns the double-sha256 of the canonical encoding of the order,
// signature excluded.
func (o Order) Hash() []byte {
	return chainhash.DoubleHashB(o.serialize())
}

// HashString returns the hex encoded order hash, used as order id.
func (o Order) HashString() string {
	return hex.EncodeToString(o.Hash())
}

// Sign signs the order hash with the given maker key and sets the maker
// pubkey, the signature and the id of the order.
func (o *Order) Sign(key *btcec.PrivateKey) {
	o.MakerPubkey = key.PubKey().SerializeCompressed()
	o.Signature = ecdsa.Sign(key, o.Hash()).Serialize()
	o.ID = o.HashString()
}

// VerifySignature checks the DER maker signature against the order hash.
func (o Order) VerifySignature() error {
	pubkey, err := btcec.ParsePubKey(o.MakerPubkey)
	if err != nil {
		return newValidationError("maker_pubkey", "%s", err)
	}
	sig, err := ecdsa.ParseDERSignature(o.Signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !sig.Verify(o.Hash(), pubkey) {
		return ErrInvalidSignature
	}
	return nil
}

// Validate checks that the order is well formed and correctly signed. Every
// returned error matches ErrValidation.
func (o Order) Validate() error {
	if strings.TrimSpace(o.SrcAsset) == "" {
		return newValidationError("src_asset", "missing")
	}
	if strings.TrimSpace(o.DstAsset) == "" {
		return newValidationError("dst_asset", "missing")
	}
	if err := o.SrcChain.validateAddress(o.Maker); err != nil {
		return newValidationError("maker", "%s", err)
	}
	if err := o.DstChain.validateAddress(o.Receiver); err != nil {
		return newValidationError("receiver", "%s", err)
	}
	if !o.SrcAmount.IsPositive() {
		return newValidationError("src_amount", "must be positive")
	}
	if !o.MinDstAmount.IsPositive() {
		return newValidationError("min_dst_amount", "must be positive")
	}
	if !o.EndPrice.IsPositive() {
		return newValidationError("end_price", "must be positive")
	}
	if o.StartPrice.LessThanOrEqual(o.EndPrice) {
		return newValidationError(
			"start_price", "must be greater than end price %s", o.EndPrice,
		)
	}
	if o.AuctionEnd <= o.AuctionStart {
		return newValidationError(
			"auction_end", "must be after auction start %d", o.AuctionStart,
		)
	}
	if o.SrcAmount.Mul(o.EndPrice).LessThan(o.MinDstAmount) {
		return newValidationError(
			"end_price", "auction floor is below the min destination amount",
		)
	}
	if err := o.VerifySignature(); err != nil {
		return err
	}
	if o.ID != "" && o.ID != o.HashString() {
		return newValidationError("id", "does not match order hash")
	}
	return nil
}

// DstAmountAt returns the amount of destination asset owed to the maker for
// a fill at the given price.
func (o Order) DstAmountAt(price decimal.Decimal) decimal.Decimal {
	return o.SrcAmount.Mul(price)
}

func (o Order) serialize() []byte {
	buf := &bytes.Buffer{}
	fields := []string{
		o.Maker,
		hex.EncodeToString(o.MakerPubkey),
		o.Receiver,
		string(o.SrcChain),
		string(o.DstChain),
		o.SrcAsset,
		o.DstAsset,
		o.SrcAmount.String(),
		o.MinDstAmount.String(),
		o.StartPrice.String(),
		o.EndPrice.String(),
		fmt.Sprint(o.AuctionStart),
		fmt.Sprint(o.AuctionEnd),
		fmt.Sprint(o.Nonce),
	}
	buf.WriteString(strings.Join(fields, "|"))
	return buf.Bytes()
}
