package provider

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Currency is one entry of the provider currency catalog, keyed by
// (code, network). The catalog is fetched once per flow and held read-only.
// Raw keeps the undecoded object because the provider surfaces token
// contract metadata under several historical key spellings; resolution of
// those aliases happens in the chains package at one boundary function.
type Currency struct {
	Code            string
	Network         string
	DepositEnabled  bool
	ReceiveEnabled  bool
	DepositPriority int
	BorrowPriority  int
	DecimalPlaces   int
	Raw             map[string]any
}

// UnmarshalJSON decodes a catalog entry, tolerating the field spellings the
// provider has used across API revisions.
func (c *Currency) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Raw = raw
	c.Code = strings.ToUpper(stringField(raw, "code", "currency_code", "currency"))
	c.Network = strings.ToUpper(stringField(raw, "network", "currency_network", "chain"))
	c.DepositEnabled = boolField(raw, "is_deposit_enabled", "deposit_enabled", "depositEnabled")
	c.ReceiveEnabled = boolField(raw, "is_receive_enabled", "receive_enabled", "receiveEnabled")
	c.DepositPriority = intField(raw, "deposit_priority", "depositPriority")
	c.BorrowPriority = intField(raw, "borrow_priority", "borrowPriority")
	c.DecimalPlaces = intField(raw, "decimal_places", "decimals", "precision")
	return nil
}

func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func boolField(raw map[string]any, keys ...string) bool {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case bool:
			return v
		case string:
			parsed, err := strconv.ParseBool(v)
			if err == nil {
				return parsed
			}
		}
	}
	return false
}

func intField(raw map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case float64:
			return int(v)
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err == nil {
				return parsed
			}
		case json.Number:
			parsed, err := v.Int64()
			if err == nil {
				return int(parsed)
			}
		}
	}
	return 0
}

// EstimateRequest describes one quote attempt. A quote is bound to this exact
// tuple; changing any field invalidates it.
type EstimateRequest struct {
	FromCode    string `json:"from_code"`
	FromNetwork string `json:"from_network"`
	ToCode      string `json:"to_code"`
	ToNetwork   string `json:"to_network"`
	Amount      string `json:"amount"`
	LTVPercent  int    `json:"ltv_percent"`
	Exchange    bool   `json:"exchange"`
}

// Quote is the provider's answer to an estimate call.
type Quote struct {
	ToAmount         string `json:"amount_to"`
	MonthlyAPR       string `json:"apr_month"`
	YearlyAPR        string `json:"apr_year"`
	Fee              string `json:"fee"`
	LiquidationPrice string `json:"liquidation_price"`
	ToNetwork        string `json:"to_network"`
}

// CreateLoanRequest carries the accepted quote tuple to loan creation.
type CreateLoanRequest struct {
	FromCode    string `json:"from_code"`
	FromNetwork string `json:"from_network"`
	ToCode      string `json:"to_code"`
	ToNetwork   string `json:"to_network"`
	Amount      string `json:"amount"`
	LTVPercent  int    `json:"ltv_percent"`
}

// DepositInstructions is the confirm-loan response: where and, when the
// provider pins it, exactly how much collateral to send.
type DepositInstructions struct {
	Address      string `json:"address"`
	ExtraID      string `json:"extra_id"`
	AtomicAmount string `json:"atomic_amount"`
}

// LoanDeposit is the collateral leg of a loan snapshot.
type LoanDeposit struct {
	Code    string `json:"currency_code"`
	Network string `json:"currency_network"`
	Amount  string `json:"expected_amount"`
	Address string `json:"address"`
	Status  string `json:"status"`
}

// LoanRepayment is the repayment leg of a loan snapshot. Amount and Fee are
// populated once a pledge-redemption intent exists; AmountToRepay is the
// single-field fallback older payloads carry.
type LoanRepayment struct {
	SendAddress   string `json:"send_address"`
	AmountToRepay string `json:"amount_to_repayment"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee"`
	Code          string `json:"currency_code"`
	Network       string `json:"currency_network"`
}

// LoanIncrease reflects an in-flight collateral increase.
type LoanIncrease struct {
	RealAmount string `json:"real_amount"`
	Address    string `json:"address"`
	Status     string `json:"status"`
}

// Loan is the provider's full loan snapshot.
type Loan struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Deposit   LoanDeposit     `json:"deposit"`
	Repayment LoanRepayment   `json:"repayment"`
	Increase  *LoanIncrease   `json:"increase"`
	RiskZone  json.RawMessage `json:"risk_zone"`
}

// IncreaseEstimate is the provider's answer to an increase-estimate call.
// RealAmount is the adjusted amount the provider will actually accept; all
// later steps must defer to it rather than the user's original request.
type IncreaseEstimate struct {
	RealAmount string `json:"real_amount"`
}

// IncreaseTx is the created collateral-increase transaction.
type IncreaseTx struct {
	RealAmount string `json:"real_amount"`
	Address    string `json:"address"`
}

// PledgeRedemptionRequest creates the repayment intent for closing a loan.
type PledgeRedemptionRequest struct {
	Address        string `json:"address"`
	ExtraID        string `json:"extra_id"`
	ReceiveFrom    string `json:"receive_from"`
	RepayByNetwork string `json:"repay_by_network"`
	RepayByCode    string `json:"repay_by_code"`
}

// AddressCheck is the provider's address validation verdict. The provider is
// authoritative here; local checks only pre-filter obvious garbage.
type AddressCheck struct {
	Valid        bool `json:"valid"`
	MemoRequired bool `json:"memoRequired"`
}
