package chains

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ErrMalformedAddress indicates the address fails the local shape check for
// its chain family. The provider's remote validator remains authoritative;
// this check only rejects input that could never be accepted.
var ErrMalformedAddress = errors.New("chains: malformed address")

// CheckAddress runs the local, family-specific address pre-check.
func CheckAddress(family Family, address string) error {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return fmt.Errorf("%w: empty address", ErrMalformedAddress)
	}
	switch family {
	case EVM:
		if !ethcommon.IsHexAddress(trimmed) {
			return fmt.Errorf("%w: %q is not a hex address", ErrMalformedAddress, trimmed)
		}
	case BTC:
		if _, err := btcutil.DecodeAddress(trimmed, &chaincfg.MainNetParams); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrMalformedAddress, trimmed, err)
		}
	case SOL:
		if len(trimmed) < 32 || len(trimmed) > 44 || !isBase58(trimmed) {
			return fmt.Errorf("%w: %q is not a base58 account", ErrMalformedAddress, trimmed)
		}
	case TON:
		// TON wallets circulate in both raw and user-friendly forms; only
		// obvious garbage is rejected locally.
		if len(trimmed) < 48 {
			return fmt.Errorf("%w: %q is too short", ErrMalformedAddress, trimmed)
		}
	default:
		return fmt.Errorf("%w: unknown chain family %q", ErrUnsupportedNetwork, family)
	}
	return nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func isBase58(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}
