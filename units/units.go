package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrPrecisionExceeded indicates the amount carries more fractional digits
// than the asset supports and strict conversion would lose value.
var ErrPrecisionExceeded = errors.New("units: precision exceeded")

// ErrNegativeAmount indicates the amount is negative.
var ErrNegativeAmount = errors.New("units: negative amount")

// ErrInvalidAmount indicates the amount is not a valid decimal string.
var ErrInvalidAmount = errors.New("units: invalid amount")

var ten = big.NewInt(10)

// ToAtomic converts a decimal string into atomic units with decimals places.
// Conversion is strict: amounts with more fractional digits than decimals are
// rejected with ErrPrecisionExceeded so a collateral payment can never be
// silently shortened.
func ToAtomic(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}
	whole, frac, err := splitDecimal(amount)
	if err != nil {
		return nil, err
	}
	if len(frac) > decimals {
		if strings.Trim(frac[decimals:], "0") != "" {
			return nil, fmt.Errorf("%w: %q has %d fractional digits, asset supports %d", ErrPrecisionExceeded, amount, len(frac), decimals)
		}
		frac = frac[:decimals]
	}
	return assemble(whole, frac, decimals), nil
}

// ToAtomicCeil converts like ToAtomic but truncates excess fractional digits
// and, when the truncated remainder was non-zero, adds exactly one minimal
// unit. The result is never less than the true decimal amount, at the cost of
// at most one atomic unit of overpayment.
func ToAtomicCeil(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}
	whole, frac, err := splitDecimal(amount)
	if err != nil {
		return nil, err
	}
	lossy := false
	if len(frac) > decimals {
		lossy = strings.Trim(frac[decimals:], "0") != ""
		frac = frac[:decimals]
	}
	atomic := assemble(whole, frac, decimals)
	if lossy {
		atomic.Add(atomic, big.NewInt(1))
	}
	return atomic, nil
}

// CeilSum sums several decimal components, truncating each independently to
// decimals places, and adds one minimal unit at most once for the whole sum
// when any truncation lost a non-zero remainder. Summing principal and fee
// this way avoids stacking a rounding unit per component.
func CeilSum(parts []string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}
	total := new(big.Int)
	lossy := false
	for _, part := range parts {
		whole, frac, err := splitDecimal(part)
		if err != nil {
			return nil, err
		}
		if len(frac) > decimals {
			if strings.Trim(frac[decimals:], "0") != "" {
				lossy = true
			}
			frac = frac[:decimals]
		}
		total.Add(total, assemble(whole, frac, decimals))
	}
	if lossy {
		total.Add(total, big.NewInt(1))
	}
	return total, nil
}

// FromAtomic renders an atomic amount as a decimal string with decimals
// fractional digits, trailing zeros trimmed.
func FromAtomic(atomic *big.Int, decimals int) string {
	if atomic == nil {
		return "0"
	}
	scale := new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
	whole, rem := new(big.Int).QuoRem(new(big.Int).Abs(atomic), scale, new(big.Int))
	sign := ""
	if atomic.Sign() < 0 {
		sign = "-"
	}
	if decimals == 0 || rem.Sign() == 0 {
		return sign + whole.String()
	}
	digits := rem.String()
	frac := strings.TrimRight(strings.Repeat("0", decimals-len(digits))+digits, "0")
	return sign + whole.String() + "." + frac
}

// splitDecimal validates the textual shape of amount and returns its whole
// and fractional digit runs. Negative amounts are rejected.
func splitDecimal(amount string) (string, string, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return "", "", fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if strings.HasPrefix(trimmed, "-") {
		return "", "", fmt.Errorf("%w: %q", ErrNegativeAmount, amount)
	}
	trimmed = strings.TrimPrefix(trimmed, "+")
	whole, frac := trimmed, ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole, frac = trimmed[:idx], trimmed[idx+1:]
	}
	if whole == "" && frac == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	for _, digits := range []string{whole, frac} {
		for _, r := range digits {
			if r < '0' || r > '9' {
				return "", "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
			}
		}
	}
	if whole == "" {
		whole = "0"
	}
	return whole, frac, nil
}

// assemble builds whole*10^decimals + frac padded to decimals digits. Inputs
// are pre-validated digit runs with len(frac) <= decimals.
func assemble(whole, frac string, decimals int) *big.Int {
	padded := whole + frac + strings.Repeat("0", decimals-len(frac))
	value, ok := new(big.Int).SetString(padded, 10)
	if !ok {
		return new(big.Int)
	}
	return value
}
