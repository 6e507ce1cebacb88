// Package settle sequences the remote calls that move real money: creating
// or increasing collateral and repaying a loan. Each pipeline culminates in
// exactly one wallet-signed transfer; a recorded transaction id is a terminal
// guard against paying twice.
package settle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"loanrail/chains"
	"loanrail/observability"
	"loanrail/observability/logging"
	"loanrail/provider"
	"loanrail/storage"
	"loanrail/wallet"
)

// Kind names one settlement pipeline.
type Kind string

const (
	KindOpen  Kind = "open"
	KindTopUp Kind = "topup"
	KindClose Kind = "close"
)

var (
	// ErrInvalidPayoutAddress indicates the provider's validator rejected the
	// payout address.
	ErrInvalidPayoutAddress = errors.New("settle: invalid payout address")
	// ErrMissingDepositAddress indicates the provider supplied no address to
	// send funds to.
	ErrMissingDepositAddress = errors.New("settle: missing deposit address")
	// ErrMissingCollateralAmount indicates neither the confirm response nor
	// the pinned quote-time amount is available. The amount must be pinned at
	// quote time, never re-derived from possibly-stale loan state.
	ErrMissingCollateralAmount = errors.New("settle: missing collateral amount")
	// ErrMissingField indicates a required upstream field is absent.
	ErrMissingField = errors.New("settle: required upstream field missing")
	// ErrNonPositiveAmount indicates the computed atomic amount is not
	// strictly positive.
	ErrNonPositiveAmount = errors.New("settle: non-positive amount")
	// ErrInFlight indicates a pipeline run for the same loan and kind has not
	// finished yet.
	ErrInFlight = errors.New("settle: settlement already in flight")
	// ErrPaused indicates an operator has paused settlement processing.
	ErrPaused = errors.New("settle: settlement processing paused")
)

// LoanAPI is the slice of the provider surface the orchestrator drives.
// Ownership of the loan is checked by the provider boundary; the orchestrator
// assumes it as a precondition.
type LoanAPI interface {
	ConfirmLoan(ctx context.Context, loanID, payoutAddress string) (*provider.DepositInstructions, error)
	LoanByID(ctx context.Context, loanID string) (*provider.Loan, error)
	CreateIncreaseEstimate(ctx context.Context, loanID, amount string) (*provider.IncreaseEstimate, error)
	CreateIncreaseTx(ctx context.Context, loanID, amount string) (*provider.IncreaseTx, error)
	CreatePledgeRedemption(ctx context.Context, loanID string, req provider.PledgeRedemptionRequest) error
	ValidateAddress(ctx context.Context, address, code, network, tag string) (*provider.AddressCheck, error)
}

// Intent is the record of one in-flight or completed settlement operation.
type Intent struct {
	ID            string
	Kind          Kind
	LoanID        string
	Recipient     string
	ExtraID       string
	AmountAtomic  *big.Int
	Family        chains.Family
	AssetKind     chains.AssetKind
	TokenContract string
	TxID          string
}

type intentState struct {
	inFlight bool
	intent   Intent
}

// Orchestrator runs the three settlement pipelines over shared collaborators.
// The duplicate-payment guard is instance state keyed by (kind, loan).
type Orchestrator struct {
	api     LoanAPI
	signer  wallet.Signer
	catalog []provider.Currency
	journal *storage.Journal
	metrics *observability.EngineMetrics
	logger  *slog.Logger
	nowFn   func() time.Time

	mu     sync.Mutex
	states map[string]*intentState
	paused bool
}

// Option customises the orchestrator.
type Option func(*Orchestrator)

// WithJournal enables the persistent intent journal.
func WithJournal(j *storage.Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.nowFn = clock }
}

// New constructs an orchestrator. The catalog is the read-only currency
// snapshot fetched at flow start.
func New(api LoanAPI, signer wallet.Signer, catalog []provider.Currency, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:     api,
		signer:  signer,
		catalog: catalog,
		metrics: observability.Engine(),
		logger:  slog.Default(),
		nowFn:   time.Now,
		states:  make(map[string]*intentState),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func stateKey(kind Kind, loanID string) string {
	return string(kind) + "/" + loanID
}

// begin acquires the per-(kind, loan) guard. When a transaction id is already
// recorded, the completed intent is returned and the pipeline must not run
// again.
func (o *Orchestrator) begin(ctx context.Context, kind Kind, loanID string) (*Intent, error) {
	if strings.TrimSpace(loanID) == "" {
		return nil, fmt.Errorf("settle: loan id required")
	}
	key := stateKey(kind, loanID)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.paused {
		return nil, ErrPaused
	}
	if state, ok := o.states[key]; ok {
		if state.intent.TxID != "" {
			done := state.intent
			return &done, nil
		}
		if state.inFlight {
			return nil, ErrInFlight
		}
	}
	if o.journal != nil {
		// The journal is what restores this guard across restarts. If it
		// cannot be read, refuse to run rather than risk paying twice.
		txID, err := o.journal.SentTxForLoan(ctx, loanID, string(kind))
		if err != nil {
			return nil, fmt.Errorf("settle: restore duplicate-payment guard: %w", err)
		}
		if txID != "" {
			intent := Intent{Kind: kind, LoanID: loanID, TxID: txID}
			o.states[key] = &intentState{intent: intent}
			done := intent
			return &done, nil
		}
	}
	o.states[key] = &intentState{inFlight: true}
	return nil, nil
}

func (o *Orchestrator) finishSuccess(kind Kind, intent Intent) {
	o.mu.Lock()
	o.states[stateKey(kind, intent.LoanID)] = &intentState{intent: intent}
	o.mu.Unlock()
}

func (o *Orchestrator) finishFailure(kind Kind, loanID string) {
	o.mu.Lock()
	delete(o.states, stateKey(kind, loanID))
	o.mu.Unlock()
}

// transfer performs the single wallet-signing step and journals the outcome.
func (o *Orchestrator) transfer(ctx context.Context, intent *Intent) error {
	if o.signer == nil {
		return wallet.ErrNotConnected
	}
	if o.journal != nil {
		record := storage.IntentRecord{
			IntentID:     intent.ID,
			Kind:         string(intent.Kind),
			LoanID:       intent.LoanID,
			Recipient:    intent.Recipient,
			AmountAtomic: intent.AmountAtomic.String(),
			Chain:        string(intent.Family),
			AssetKind:    string(intent.AssetKind),
		}
		if err := o.journal.RecordIntent(ctx, record); err != nil {
			return err
		}
	}
	txID, err := o.signer.SendTransfer(ctx, wallet.TransferRequest{
		Family:        intent.Family,
		Kind:          intent.AssetKind,
		Recipient:     intent.Recipient,
		ExtraID:       intent.ExtraID,
		AmountAtomic:  intent.AmountAtomic,
		TokenContract: intent.TokenContract,
	})
	if err != nil {
		return err
	}
	intent.TxID = txID
	o.logger.Info("transfer broadcast",
		"kind", string(intent.Kind),
		"loan_id", intent.LoanID,
		"intent_id", intent.ID,
		"tx_id", txID,
		logging.MaskField("recipient", intent.Recipient),
	)
	if o.journal != nil {
		if err := o.journal.RecordTx(ctx, intent.ID, txID); err != nil {
			// The transfer is already broadcast; a journal fault must not
			// unwind it.
			o.logger.Warn("journal tx record failed", "intent_id", intent.ID, "error", err.Error())
		}
	}
	return nil
}

// refresh re-reads the loan after a transfer. Failures are logged and
// swallowed: the transfer is already broadcast and must not be unwound.
func (o *Orchestrator) refresh(ctx context.Context, loanID string) {
	if _, err := o.api.LoanByID(ctx, loanID); err != nil {
		o.logger.Warn("post-transfer refresh failed", "loan_id", loanID, "error", err.Error())
	}
}

// State reports the recorded intent for a (kind, loan) pair, if any, and
// whether a pipeline run is currently in flight. UI layers use this to keep
// the pay action disabled.
func (o *Orchestrator) State(kind Kind, loanID string) (Intent, bool, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.states[stateKey(kind, loanID)]
	if !ok {
		return Intent{}, false, false
	}
	return state.intent, state.intent.TxID != "", state.inFlight
}

// Pause stops new pipeline runs from starting. Runs already in flight finish;
// pausing mid-transfer would be worse than completing it.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
}

// Resume re-enables pipeline runs.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
}

// Status summarises orchestrator state for the operator surface.
func (o *Orchestrator) Status() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	inFlight := 0
	completed := 0
	for _, state := range o.states {
		if state.inFlight {
			inFlight++
		}
		if state.intent.TxID != "" {
			completed++
		}
	}
	return map[string]any{
		"paused":    o.paused,
		"in_flight": inFlight,
		"completed": completed,
	}
}

func newIntentID() string {
	return uuid.NewString()
}

// parseAtomic validates a provider-supplied integer amount string.
func parseAtomic(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: unparseable atomic amount %q", ErrMissingField, raw)
	}
	return value, nil
}
