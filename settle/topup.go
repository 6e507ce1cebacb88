package settle

import (
	"context"
	"fmt"
	"strings"

	"loanrail/chains"
	"loanrail/units"
)

// TopUpRequest asks for more collateral on an existing active loan. Amount is
// the user's decimal request; the provider may adjust it and its adjusted
// value always wins.
type TopUpRequest struct {
	LoanID string
	Amount string
}

// TopUp increases collateral: price the increase, create the increase
// transaction for the provider's real amount, resolve the deposit pathway,
// sign exactly one transfer, then refresh best-effort.
func (o *Orchestrator) TopUp(ctx context.Context, req TopUpRequest) (Intent, error) {
	if done, err := o.begin(ctx, KindTopUp, req.LoanID); done != nil || err != nil {
		if done != nil {
			return *done, nil
		}
		return Intent{}, err
	}
	start := o.nowFn()
	intent, err := o.runTopUp(ctx, req)
	if err != nil {
		o.finishFailure(KindTopUp, req.LoanID)
		o.metrics.RecordSettlement(string(KindTopUp), "error", o.nowFn().Sub(start))
		return Intent{}, err
	}
	o.finishSuccess(KindTopUp, intent)
	o.metrics.RecordSettlement(string(KindTopUp), "success", o.nowFn().Sub(start))
	o.refresh(ctx, req.LoanID)
	return intent, nil
}

func (o *Orchestrator) runTopUp(ctx context.Context, req TopUpRequest) (Intent, error) {
	estimate, err := o.api.CreateIncreaseEstimate(ctx, req.LoanID, req.Amount)
	if err != nil {
		return Intent{}, err
	}
	realAmount := strings.TrimSpace(estimate.RealAmount)
	if realAmount == "" {
		return Intent{}, fmt.Errorf("%w: increase estimate real_amount", ErrMissingField)
	}

	// The provider may adjust the requested amount for precision or minimums;
	// the adjusted value is the one to create and pay.
	tx, err := o.api.CreateIncreaseTx(ctx, req.LoanID, realAmount)
	if err != nil {
		return Intent{}, err
	}
	if adjusted := strings.TrimSpace(tx.RealAmount); adjusted != "" {
		realAmount = adjusted
	}

	loan, err := o.api.LoanByID(ctx, req.LoanID)
	if err != nil {
		return Intent{}, err
	}
	asset, err := chains.ResolveAsset(loan.Deposit.Code, loan.Deposit.Network, o.catalog)
	if err != nil {
		return Intent{}, err
	}

	recipient := strings.TrimSpace(tx.Address)
	if recipient == "" {
		recipient = strings.TrimSpace(loan.Deposit.Address)
	}
	if recipient == "" {
		return Intent{}, fmt.Errorf("%w: increase for loan %s", ErrMissingDepositAddress, req.LoanID)
	}

	amount, err := units.ToAtomic(realAmount, asset.Decimals)
	if err != nil {
		return Intent{}, err
	}
	if amount.Sign() <= 0 {
		return Intent{}, fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount)
	}

	intent := Intent{
		ID:            newIntentID(),
		Kind:          KindTopUp,
		LoanID:        req.LoanID,
		Recipient:     recipient,
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
