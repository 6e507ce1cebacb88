// Package watch polls loan state after a settlement transfer and drives a
// small state machine toward a terminal verdict. Terminal states latch: once
// the provider has reported a loan finished or closed, a later stale poll
// must never revive it.
package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"loanrail/observability"
	"loanrail/provider"
	"loanrail/riskzone"
)

// Phase is the watcher's lifecycle state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseWatching Phase = "watching"
	PhaseFinished Phase = "finished"
	PhaseClosed   Phase = "closed"
	PhaseError    Phase = "error"
)

// Terminal reports whether the phase admits no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseClosed || p == PhaseError
}

const (
	defaultInterval = 8 * time.Second
	minInterval     = 3 * time.Second
)

// closedMarkers are matched case-insensitively as substrings of the loan
// status. The provider's status vocabulary drifts between revisions, so exact
// matching would silently miss terminal loans.
var closedMarkers = []string{"closed", "completed", "repaid", "cancelled", "liquidated"}

// LoanReader is the single provider call the watcher needs.
type LoanReader interface {
	LoanByID(ctx context.Context, loanID string) (*provider.Loan, error)
}

// Snapshot is one observed watcher state, safe to hand to a UI layer.
type Snapshot struct {
	Phase         Phase
	LoanStatus    string
	DepositStatus string
	RiskZone      riskzone.Zone
	RiskKnown     bool
	// Message carries transient poll-error text. It never implies a phase
	// change; the watcher keeps polling through provider flakes.
	Message string
}

// Watcher polls one loan until it reaches a terminal phase. Polls are
// serialized: a tick that fires while the previous poll is still in flight is
// skipped rather than stacked.
type Watcher struct {
	reader   LoanReader
	loanID   string
	interval time.Duration
	metrics  *observability.EngineMetrics
	logger   *slog.Logger
	updates  chan Snapshot

	mu      sync.Mutex
	phase   Phase
	current Snapshot
	polling bool
}

// Option customises a watcher.
type Option func(*Watcher)

// WithInterval sets the poll interval. Values under the floor are raised to
// it so a misconfigured caller cannot hammer the provider.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d < minInterval {
			d = minInterval
		}
		w.interval = d
	}
}

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New constructs a watcher in the idle phase. Nothing is polled until Start.
func New(reader LoanReader, loanID string, opts ...Option) *Watcher {
	w := &Watcher{
		reader:   reader,
		loanID:   loanID,
		interval: defaultInterval,
		metrics:  observability.Engine(),
		logger:   slog.Default(),
		updates:  make(chan Snapshot, 1),
		phase:    PhaseIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Updates delivers state snapshots. Only the latest unread snapshot is kept.
func (w *Watcher) Updates() <-chan Snapshot {
	return w.updates
}

// Stop forces the watcher into the terminal error phase. Used when the
// surrounding flow is abandoned while the loan is still open.
func (w *Watcher) Stop(reason string) {
	w.mu.Lock()
	if w.phase.Terminal() {
		w.mu.Unlock()
		return
	}
	w.phase = PhaseError
	w.mu.Unlock()
	w.publish(Snapshot{Phase: PhaseError, Message: reason})
}

// Phase reports the current lifecycle phase.
func (w *Watcher) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Start begins polling and blocks until the watcher reaches a terminal phase
// or the context is cancelled. Starting is explicit so callers control when
// the poll traffic begins relative to the settlement transfer.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.phase != PhaseIdle {
		w.mu.Unlock()
		return nil
	}
	w.phase = PhaseWatching
	w.mu.Unlock()
	w.publish(Snapshot{Phase: PhaseWatching})

	// First poll immediately; the ticker covers the rest.
	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if w.Phase().Terminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	w.mu.Lock()
	if w.polling || w.phase != PhaseWatching {
		w.mu.Unlock()
		return
	}
	w.polling = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.polling = false
		w.mu.Unlock()
	}()

	loan, err := w.reader.LoanByID(ctx, w.loanID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.metrics.RecordWatcherPoll("error")
		if errors.Is(err, provider.ErrForbidden) {
			// Access revoked mid-watch; polling again cannot recover it.
			w.mu.Lock()
			w.phase = PhaseError
			w.mu.Unlock()
			w.publish(Snapshot{Phase: PhaseError, Message: err.Error()})
			return
		}
		w.logger.Warn("loan poll failed", "loan_id", w.loanID, "error", err.Error())
		w.publish(Snapshot{Phase: PhaseWatching, Message: err.Error()})
		return
	}
	w.metrics.RecordWatcherPoll("ok")
	w.observe(loan)
}

// observe applies one loan snapshot to the state machine.
func (w *Watcher) observe(loan *provider.Loan) {
	w.mu.Lock()
	if w.phase.Terminal() {
		w.mu.Unlock()
		return
	}
	next := w.phase
	switch {
	case isClosedStatus(loan.Status):
		next = PhaseClosed
	case isFinishedDeposit(loan.Deposit.Status):
		next = PhaseFinished
	}
	w.phase = next
	w.mu.Unlock()

	zone, known := loanRiskZone(loan)
	w.publish(Snapshot{
		Phase:         next,
		LoanStatus:    loan.Status,
		DepositStatus: loan.Deposit.Status,
		RiskZone:      zone,
		RiskKnown:     known,
	})
}

// loanRiskZone decodes the provider's loosely typed risk indicator.
func loanRiskZone(loan *provider.Loan) (riskzone.Zone, bool) {
	if len(loan.RiskZone) == 0 {
		return 0, false
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(loan.RiskZone))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return 0, false
	}
	return riskzone.Normalize(raw)
}

// publish replaces any unread snapshot so a slow consumer always sees the
// latest state.
func (w *Watcher) publish(snapshot Snapshot) {
	w.mu.Lock()
	w.current = snapshot
	w.mu.Unlock()
	for {
		select {
		case w.updates <- snapshot:
			return
		default:
			select {
			case <-w.updates:
			default:
			}
		}
	}
}

// Current reports the latest published snapshot.
func (w *Watcher) Current() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func isClosedStatus(status string) bool {
	lowered := strings.ToLower(status)
	for _, marker := range closedMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func isFinishedDeposit(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "finished")
}
