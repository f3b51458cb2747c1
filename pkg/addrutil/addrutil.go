// Package addrutil validates the addresses of the two kinds of ledgers a swap
// can involve: account based chains with hex addresses and UTXO chains with
// base58 or bech32 addresses.
package addrutil

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
)

var utxoNetworks = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
	&chaincfg.RegressionNetParams,
	&chaincfg.SigNetParams,
}

// ValidateAccountAddress checks that addr is a 20-byte hex address.
func ValidateAccountAddress(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid account address %q", addr)
	}
	return nil
}

// NormalizeAccountAddress returns the checksummed form of addr.
func NormalizeAccountAddress(addr string) (string, error) {
	if err := ValidateAccountAddress(addr); err != nil {
		return "", err
	}
	return common.HexToAddress(addr).Hex(), nil
}

// ValidateUTXOAddress checks that addr decodes for one of the known bitcoin
// networks.
func ValidateUTXOAddress(addr string) error {
	_, err := DecodeUTXOAddress(addr)
	return err
}

// DecodeUTXOAddress decodes addr and returns the network it belongs to.
func DecodeUTXOAddress(addr string) (*chaincfg.Params, error) {
	for _, params := range utxoNetworks {
		decoded, err := btcutil.DecodeAddress(addr, params)
		if err != nil {
			continue
		}
		if decoded.IsForNet(params) {
			return params, nil
		}
	}
	return nil, fmt.Errorf("invalid utxo address %q", addr)
}
