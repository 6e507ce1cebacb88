package chains

import (
	"errors"
	"testing"

	"loanrail/provider"
)

func catalogEntry(code, network string, decimals int, raw map[string]any) provider.Currency {
	if raw == nil {
		raw = map[string]any{}
	}
	return provider.Currency{Code: code, Network: network, DecimalPlaces: decimals, Raw: raw}
}

func TestResolveFamily(t *testing.T) {
	cases := []struct {
		network string
		want    Family
	}{
		{"ETH", EVM},
		{"arbitrum", EVM},
		{"Polygon", EVM},
		{"BSC", EVM},
		{"GNOSIS", EVM},
		{"SOL", SOL},
		{"btc", BTC},
		{"TON", TON},
	}
	for _, tc := range cases {
		got, err := ResolveFamily(tc.network)
		if err != nil {
			t.Fatalf("ResolveFamily(%q): %v", tc.network, err)
		}
		if got != tc.want {
			t.Fatalf("ResolveFamily(%q) = %v, want %v", tc.network, got, tc.want)
		}
	}
	if _, err := ResolveFamily("DOGENET"); !errors.Is(err, ErrUnsupportedNetwork) {
		t.Fatalf("expected ErrUnsupportedNetwork, got %v", err)
	}
}

func TestResolveAssetNative(t *testing.T) {
	cases := []struct {
		code, network string
		family        Family
		decimals      int
	}{
		{"ETH", "ARBITRUM", EVM, 18},
		{"ETH", "BASE", EVM, 18},
		{"MATIC", "POLYGON", EVM, 18},
		{"BNB", "BSC", EVM, 18},
		{"AVAX", "AVALANCHE", EVM, 18},
		{"XDAI", "GNOSIS", EVM, 18},
		{"SOL", "SOL", SOL, 9},
		{"BTC", "BTC", BTC, 8},
		{"TON", "TON", TON, 9},
	}
	for _, tc := range cases {
		asset, err := ResolveAsset(tc.code, tc.network, nil)
		if err != nil {
			t.Fatalf("ResolveAsset(%s, %s): %v", tc.code, tc.network, err)
		}
		if asset.Kind != Native || asset.Family != tc.family || asset.Decimals != tc.decimals {
			t.Fatalf("ResolveAsset(%s, %s) = %+v", tc.code, tc.network, asset)
		}
		if asset.TokenContract != "" {
			t.Fatalf("native asset must carry no contract, got %q", asset.TokenContract)
		}
	}
}

func TestResolveAssetToken(t *testing.T) {
	catalog := []provider.Currency{
		catalogEntry("USDC", "ARBITRUM", 6, map[string]any{"contract_address": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"}),
	}
	asset, err := ResolveAsset("USDC", "ARBITRUM", catalog)
	if err != nil {
		t.Fatalf("ResolveAsset: %v", err)
	}
	if asset.Family != EVM || asset.Kind != Token || asset.Decimals != 6 {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if asset.TokenContract != "0xaf88d065e77c8cC2239327C5EDb3A432268e5831" {
		t.Fatalf("contract = %q", asset.TokenContract)
	}
}

func TestResolveAssetContractAliases(t *testing.T) {
	for _, alias := range []string{"contract_address", "token_contract", "contractAddress", "tokenContractAddress", "contract", "address"} {
		catalog := []provider.Currency{
			catalogEntry("USDT", "ETH", 6, map[string]any{alias: "0xdac17f958d2ee523a2206206994597c13d831ec7"}),
		}
		asset, err := ResolveAsset("USDT", "ETH", catalog)
		if err != nil {
			t.Fatalf("alias %q: %v", alias, err)
		}
		if asset.TokenContract == "" {
			t.Fatalf("alias %q: contract not resolved", alias)
		}
	}
}

func TestResolveAssetErrors(t *testing.T) {
	if _, err := ResolveAsset("USDC", "ARBITRUM", nil); !errors.Is(err, ErrCurrencyNotFound) {
		t.Fatalf("expected ErrCurrencyNotFound, got %v", err)
	}
	catalog := []provider.Currency{catalogEntry("USDC", "ARBITRUM", 6, map[string]any{"unrelated": "x"})}
	if _, err := ResolveAsset("USDC", "ARBITRUM", catalog); !errors.Is(err, ErrMissingContractMetadata) {
		t.Fatalf("expected ErrMissingContractMetadata, got %v", err)
	}
	if _, err := ResolveAsset("USDC", "SOL", nil); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected ErrUnsupportedAsset, got %v", err)
	}
	if _, err := ResolveAsset("ETH", "NOPE", nil); !errors.Is(err, ErrUnsupportedNetwork) {
		t.Fatalf("expected ErrUnsupportedNetwork, got %v", err)
	}
}

func TestCheckAddress(t *testing.T) {
	if err := CheckAddress(EVM, "0xdac17f958d2ee523a2206206994597c13d831ec7"); err != nil {
		t.Fatalf("valid evm address rejected: %v", err)
	}
	if err := CheckAddress(EVM, "not-an-address"); !errors.Is(err, ErrMalformedAddress) {
		t.Fatalf("expected ErrMalformedAddress, got %v", err)
	}
	if err := CheckAddress(BTC, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"); err != nil {
		t.Fatalf("valid btc address rejected: %v", err)
	}
	if err := CheckAddress(BTC, "zzzz"); !errors.Is(err, ErrMalformedAddress) {
		t.Fatalf("expected ErrMalformedAddress, got %v", err)
	}
	if err := CheckAddress(SOL, "4Nd1mYQtLxvkPzRbmFfWnYtKrhhqtxQ3MTAbeXaXv9cR"); err != nil {
		t.Fatalf("valid sol address rejected: %v", err)
	}
	if err := CheckAddress(SOL, "0OIl"); !errors.Is(err, ErrMalformedAddress) {
		t.Fatalf("expected ErrMalformedAddress, got %v", err)
	}
}
