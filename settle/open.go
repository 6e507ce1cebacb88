package settle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"loanrail/chains"
	"loanrail/units"
)

// OpenRequest carries everything the open pipeline needs. CollateralAmount is
// the decimal amount pinned when the quote was accepted; the pipeline never
// re-derives it from loan state.
type OpenRequest struct {
	LoanID            string
	PayoutAddress     string
	PayoutExtraID     string
	PayoutCode        string
	PayoutNetwork     string
	CollateralCode    string
	CollateralNetwork string
	CollateralAmount  string
}

// Open confirms a freshly created loan and sends the initial collateral:
// validate the payout address, confirm to obtain the deposit address, pin the
// exact atomic amount, sign exactly one transfer, then refresh best-effort.
func (o *Orchestrator) Open(ctx context.Context, req OpenRequest) (Intent, error) {
	if done, err := o.begin(ctx, KindOpen, req.LoanID); done != nil || err != nil {
		if done != nil {
			return *done, nil
		}
		return Intent{}, err
	}
	start := o.nowFn()
	intent, err := o.runOpen(ctx, req)
	if err != nil {
		o.finishFailure(KindOpen, req.LoanID)
		o.metrics.RecordSettlement(string(KindOpen), "error", o.nowFn().Sub(start))
		return Intent{}, err
	}
	o.finishSuccess(KindOpen, intent)
	o.metrics.RecordSettlement(string(KindOpen), "success", o.nowFn().Sub(start))
	o.refresh(ctx, req.LoanID)
	return intent, nil
}

func (o *Orchestrator) runOpen(ctx context.Context, req OpenRequest) (Intent, error) {
	// Local shape check first; the remote validator stays authoritative for
	// anything that passes.
	if family, err := chains.ResolveFamily(req.PayoutNetwork); err == nil {
		if err := chains.CheckAddress(family, req.PayoutAddress); err != nil {
			return Intent{}, fmt.Errorf("%w: %v", ErrInvalidPayoutAddress, err)
		}
	}

	check, err := o.api.ValidateAddress(ctx, req.PayoutAddress, req.PayoutCode, req.PayoutNetwork, req.PayoutExtraID)
	if err != nil {
		return Intent{}, err
	}
	if !check.Valid {
		return Intent{}, fmt.Errorf("%w: %s on %s", ErrInvalidPayoutAddress, req.PayoutCode, req.PayoutNetwork)
	}

	instructions, err := o.api.ConfirmLoan(ctx, req.LoanID, req.PayoutAddress)
	if err != nil {
		return Intent{}, err
	}
	if strings.TrimSpace(instructions.Address) == "" {
		return Intent{}, fmt.Errorf("%w: confirm response for loan %s", ErrMissingDepositAddress, req.LoanID)
	}

	asset, err := chains.ResolveAsset(req.CollateralCode, req.CollateralNetwork, o.catalog)
	if err != nil {
		return Intent{}, err
	}

	amount, err := o.openAmount(instructions.AtomicAmount, req.CollateralAmount, asset.Decimals)
	if err != nil {
		return Intent{}, err
	}
	if amount.Sign() <= 0 {
		return Intent{}, fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount)
	}

	intent := Intent{
		ID:            newIntentID(),
		Kind:          KindOpen,
		LoanID:        req.LoanID,
		Recipient:     instructions.Address,
		ExtraID:       instructions.ExtraID,
		AmountAtomic:  amount,
		Family:        asset.Family,
		AssetKind:     asset.Kind,
		TokenContract: asset.TokenContract,
	}
	if err := o.transfer(ctx, &intent); err != nil {
		return Intent{}, err
	}
	return intent, nil
}

// openAmount prefers the atomic amount pinned by the confirm response and
// falls back to strict conversion of the quote-time decimal amount.
func (o *Orchestrator) openAmount(atomic, decimal string, decimals int) (*big.Int, error) {
	if strings.TrimSpace(atomic) != "" {
		return parseAtomic(atomic)
	}
	if strings.TrimSpace(decimal) != "" {
		return units.ToAtomic(decimal, decimals)
	}
	return nil, ErrMissingCollateralAmount
}
