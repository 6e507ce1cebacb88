// Package riskzone normalizes the provider-supplied liquidation risk
// indicator into a bounded ordinal scale usable for display and sorting.
package riskzone

import (
	"encoding/json"
	"strconv"
)

// Zone is the provider risk indicator clamped to the supported range.
type Zone int

const (
	// Liquidation means the loan is being, or is about to be, liquidated.
	Liquidation Zone = -1
	// Red is the most severe pre-liquidation zone.
	Red Zone = 0
	// Orange indicates elevated risk requiring attention.
	Orange Zone = 1
	// Yellow indicates moderate risk.
	Yellow Zone = 2
	// Green indicates a healthy collateral ratio.
	Green Zone = 3
)

// Normalize clamps any numeric input to [Liquidation, Green]. Missing or
// non-numeric input yields ok=false: an unknown zone, not an error. Accepted
// raw shapes mirror what the provider has been observed to send: numbers,
// numeric strings and json.Number.
func Normalize(raw any) (Zone, bool) {
	var value float64
	switch v := raw.(type) {
	case nil:
		return 0, false
	case Zone:
		value = float64(v)
	case int:
		value = float64(v)
	case int32:
		value = float64(v)
	case int64:
		value = float64(v)
	case float32:
		value = float64(v)
	case float64:
		value = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		value = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		value = parsed
	default:
		return 0, false
	}
	switch {
	case value < float64(Liquidation):
		return Liquidation, true
	case value > float64(Green):
		return Green, true
	default:
		return Zone(int(value)), true
	}
}

// Danger reports whether the zone warrants an urgent top-up prompt.
func (z Zone) Danger() bool {
	return z <= Orange
}

// Severity maps the zone to an ascending badness rank for sorting dashboards.
// Unknown zones rank below green, so SeverityOf is the function callers use
// when the zone may be absent.
func (z Zone) Severity() int {
	switch z {
	case Green:
		return 1
	case Yellow:
		return 2
	case Orange:
		return 3
	case Red:
		return 4
	case Liquidation:
		return 5
	default:
		return 0
	}
}

// SeverityOf ranks a possibly-unknown zone: unknown sorts before green.
func SeverityOf(z Zone, known bool) int {
	if !known {
		return 0
	}
	return z.Severity()
}

// String renders the zone for logs and status displays.
func (z Zone) String() string {
	switch z {
	case Liquidation:
		return "liquidation"
	case Red:
		return "red"
	case Orange:
		return "orange"
	case Yellow:
		return "yellow"
	case Green:
		return "green"
	default:
		return "unknown"
	}
}
