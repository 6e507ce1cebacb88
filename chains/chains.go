// Package chains maps (currency code, network) pairs onto a chain family and
// asset kind, resolving token metadata from the provider currency catalog.
// Everything here is a pure lookup; failures are loud because a silent
// fallback risks moving the wrong amount on the wrong chain.
package chains

import (
	"errors"
	"fmt"
	"strings"

	"loanrail/provider"
)

// Family groups networks sharing a transfer mechanism.
type Family string

const (
	EVM Family = "evm"
	SOL Family = "sol"
	BTC Family = "btc"
	TON Family = "ton"
)

// AssetKind distinguishes a chain's native coin from a contract token.
type AssetKind string

const (
	Native AssetKind = "native"
	Token  AssetKind = "token"
)

// ErrUnsupportedNetwork indicates the network string maps to no known family.
var ErrUnsupportedNetwork = errors.New("chains: unsupported network")

// ErrCurrencyNotFound indicates the (code, network) pair is absent from the
// catalog.
var ErrCurrencyNotFound = errors.New("chains: currency not found in catalog")

// ErrMissingContractMetadata indicates the catalog entry carries no token
// contract address under any known alias.
var ErrMissingContractMetadata = errors.New("chains: missing token contract metadata")

// ErrUnsupportedAsset indicates the pair requires a transfer mechanism the
// family does not offer (token transfers outside EVM).
var ErrUnsupportedAsset = errors.New("chains: unsupported asset for chain family")

// Asset is the resolved transfer pathway for a (code, network) pair.
type Asset struct {
	Family        Family
	Kind          AssetKind
	TokenContract string
	Decimals      int
}

var familyByNetwork = map[string]Family{
	"ETH":       EVM,
	"ETHEREUM":  EVM,
	"ARBITRUM":  EVM,
	"OPTIMISM":  EVM,
	"BASE":      EVM,
	"LINEA":     EVM,
	"SCROLL":    EVM,
	"POLYGON":   EVM,
	"MATIC":     EVM,
	"BSC":       EVM,
	"AVALANCHE": EVM,
	"AVAX":      EVM,
	"AVAXC":     EVM,
	"GNOSIS":    EVM,
	"SOL":       SOL,
	"SOLANA":    SOL,
	"BTC":       BTC,
	"BITCOIN":   BTC,
	"TON":       TON,
}

// nativeCodeByNetwork lists, per network, the currency code that is the
// chain's own coin rather than a deployed token.
var nativeCodeByNetwork = map[string]string{
	"ETH":       "ETH",
	"ETHEREUM":  "ETH",
	"ARBITRUM":  "ETH",
	"OPTIMISM":  "ETH",
	"BASE":      "ETH",
	"LINEA":     "ETH",
	"SCROLL":    "ETH",
	"POLYGON":   "MATIC",
	"MATIC":     "MATIC",
	"BSC":       "BNB",
	"AVALANCHE": "AVAX",
	"AVAX":      "AVAX",
	"AVAXC":     "AVAX",
	"GNOSIS":    "XDAI",
	"SOL":       "SOL",
	"SOLANA":    "SOL",
	"BTC":       "BTC",
	"BITCOIN":   "BTC",
	"TON":       "TON",
}

var nativeDecimals = map[Family]int{
	EVM: 18,
	SOL: 9,
	BTC: 8,
	TON: 9,
}

// Normalize canonicalizes a network string for lookups.
func Normalize(network string) string {
	return strings.ToUpper(strings.TrimSpace(network))
}

// ResolveFamily maps a network onto its chain family.
func ResolveFamily(network string) (Family, error) {
	family, ok := familyByNetwork[Normalize(network)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
	return family, nil
}

// ResolveAsset decides whether the pair is the chain's native coin or a
// catalog token and returns the full transfer pathway. Token resolution
// requires the contract address and decimal places recorded in the catalog.
func ResolveAsset(code, network string, catalog []provider.Currency) (Asset, error) {
	family, err := ResolveFamily(network)
	if err != nil {
		return Asset{}, err
	}
	normalizedCode := strings.ToUpper(strings.TrimSpace(code))
	normalizedNetwork := Normalize(network)
	if nativeCodeByNetwork[normalizedNetwork] == normalizedCode {
		return Asset{Family: family, Kind: Native, Decimals: nativeDecimals[family]}, nil
	}
	if family != EVM {
		return Asset{}, fmt.Errorf("%w: %s token on %s", ErrUnsupportedAsset, normalizedCode, family)
	}
	entry, ok := findCurrency(catalog, normalizedCode, normalizedNetwork)
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s on %s", ErrCurrencyNotFound, normalizedCode, normalizedNetwork)
	}
	contract, ok := tokenContract(entry.Raw)
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s on %s", ErrMissingContractMetadata, normalizedCode, normalizedNetwork)
	}
	return Asset{
		Family:        family,
		Kind:          Token,
		TokenContract: contract,
		Decimals:      entry.DecimalPlaces,
	}, nil
}

func findCurrency(catalog []provider.Currency, code, network string) (provider.Currency, bool) {
	for _, entry := range catalog {
		if entry.Code == code && entry.Network == network {
			return entry, true
		}
	}
	return provider.Currency{}, false
}

// contractAliases is the single ordered list of key spellings under which the
// provider has shipped token contract addresses. Alias guessing happens here
// and nowhere else.
var contractAliases = []string{
	"contract_address",
	"token_contract",
	"contractAddress",
	"tokenContractAddress",
	"contract",
	"address",
}

func tokenContract(raw map[string]any) (string, bool) {
	for _, alias := range contractAliases {
		if v, ok := raw[alias]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), true
			}
		}
	}
	return "", false
}
