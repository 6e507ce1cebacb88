package settle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"loanrail/chains"
	"loanrail/provider"
	"loanrail/units"
)

// CloseRequest closes a loan by paying off the repayment intent. Snapshot is
// the previously loaded loan; loading it is the caller's precondition so a
// stale read is never masked here.
type CloseRequest struct {
	Snapshot      *provider.Loan
	ReturnAddress string
	ReturnExtraID string
	ReceiveFrom   string
}

// Close creates the pledge-redemption intent and pays the exact repayment
// amount. The loan is re-fetched after intent creation and before computing
// the payable amount: intent creation can change what is owed, so paying from
// the earlier snapshot would move the wrong amount. No refresh follows the
// transfer; the status watcher takes over.
func (o *Orchestrator) Close(ctx context.Context, req CloseRequest) (Intent, error) {
	if req.Snapshot == nil {
		return Intent{}, fmt.Errorf("settle: loan snapshot required before close")
	}
	loanID := strings.TrimSpace(req.Snapshot.ID)
	if done, err := o.begin(ctx, KindClose, loanID); done != nil || err != nil {
		if done != nil {
			return *done, nil
		}
		return Intent{}, err
	}
	start := o.nowFn()
	intent, err := o.runClose(ctx, loanID, req)
	if err != nil {
		o.finishFailure(KindClose, loanID)
		o.metrics.RecordSettlement(string(KindClose), "error", o.nowFn().Sub(start))
		return Intent{}, err
	}
	o.finishSuccess(KindClose, intent)
	o.metrics.RecordSettlement(string(KindClose), "success", o.nowFn().Sub(start))
	return intent, nil
}

func (o *Orchestrator) runClose(ctx context.Context, loanID string, req CloseRequest) (Intent, error) {
	repayCode := strings.TrimSpace(req.Snapshot.Repayment.Code)
	repayNetwork := strings.TrimSpace(req.Snapshot.Repayment.Network)
	if repayCode == "" || repayNetwork == "" {
		return Intent{}, fmt.Errorf("%w: repayment currency on loan %s", ErrMissingField, loanID)
	}

	err := o.api.CreatePledgeRedemption(ctx, loanID, provider.PledgeRedemptionRequest{
		Address:        req.ReturnAddress,
		ExtraID:        req.ReturnExtraID,
		ReceiveFrom:    req.ReceiveFrom,
		RepayByNetwork: repayNetwork,
		RepayByCode:    repayCode,
	})
	if err != nil {
		return Intent{}, err
	}

	// Freshest read, strictly after intent creation.
	fresh, err := o.api.LoanByID(ctx, loanID)
	if err != nil {
		return Intent{}, err
	}
	repayment := fresh.Repayment
	sendAddress := strings.TrimSpace(repayment.SendAddress)
	if sendAddress == "" {
		return Intent{}, fmt.Errorf("%w: repayment send_address on loan %s", ErrMissingField, loanID)
	}
	if code := strings.TrimSpace(repayment.Code); code != "" {
		repayCode = code
	}
	if network := strings.TrimSpace(repayment.Network); network != "" {
		repayNetwork = network
	}

	asset, err := chains.ResolveAsset(repayCode, repayNetwork, o.catalog)
	if err != nil {
		return Intent{}, err
	}

	amount, err := repaymentAmount(repayment, asset.Decimals)
	if err != nil {
		return Intent{}, err
	}
	if amount.Sign() <= 0 {
		return Intent{}, fmt.Errorf("%w: %s", ErrNonPositiveAmount, amount)
	}

	intent := Intent{
		ID:            newIntentID(),
		Kind:          KindClose,
		LoanID:        loanID,
		Recipient:     sendAddress,
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

// repaymentAmount computes the payable atomic amount with ceiling semantics:
// underpaying by a rounding error would leave the loan unclosed.
func repaymentAmount(repayment provider.LoanRepayment, decimals int) (*big.Int, error) {
	amount := strings.TrimSpace(repayment.Amount)
	fee := strings.TrimSpace(repayment.Fee)
	if amount != "" && fee != "" {
		return units.CeilSum([]string{amount, fee}, decimals)
	}
	if amount != "" {
		return units.ToAtomicCeil(amount, decimals)
	}
	if fallback := strings.TrimSpace(repayment.AmountToRepay); fallback != "" {
		return units.ToAtomicCeil(fallback, decimals)
	}
	return nil, fmt.Errorf("%w: repayment amount", ErrMissingField)
}
