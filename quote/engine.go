// Package quote obtains loan estimates from the lending provider, retrying
// across acceptable destination networks when the pricing engine rejects a
// specific pair, and enforcing a local cool-down after rate limiting.
package quote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"loanrail/observability"
	"loanrail/provider"
)

// ErrNoRoute indicates every candidate destination network was exhausted
// without the provider accepting the pair.
var ErrNoRoute = errors.New("quote: no route available")

// Estimator is the remote pricing collaborator.
type Estimator interface {
	Estimate(ctx context.Context, req provider.EstimateRequest) (*provider.Quote, error)
}

// Request is the tuple an estimate is bound to. Changing any field
// invalidates the resulting quote.
type Request struct {
	FromCode    string
	FromNetwork string
	ToCode      string
	ToNetwork   string
	Amount      string
	LTVPercent  int
}

// Result carries the winning quote and the destination network that actually
// produced it, which may differ from the requested one; callers must
// re-synchronize their selection to it.
type Result struct {
	Quote     provider.Quote
	ToNetwork string
}

const (
	defaultMaxAttempts = 3
	defaultCoolDown    = 60 * time.Second
)

// networkPriority is the fixed preference order for destination networks.
// Networks absent from this list sort after known ones, keeping their
// relative catalog order.
var networkPriority = []string{
	"ETH", "TRX", "BSC", "POLYGON", "ARBITRUM", "OPTIMISM", "BASE", "SOL", "TON", "BTC",
}

// Engine retries estimates across candidate networks. The rate-limit
// cool-down is instance state, so independent loan flows in one process do
// not share it.
type Engine struct {
	estimator   Estimator
	catalog     []provider.Currency
	metrics     *observability.EngineMetrics
	maxAttempts int
	coolDown    time.Duration
	nowFn       func() time.Time

	mu            sync.Mutex
	rateLimitedAt time.Time
}

// EngineOption customises the engine.
type EngineOption func(*Engine)

// WithMaxAttempts bounds how many candidate networks one estimate may try.
func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) { e.maxAttempts = n }
}

// WithCoolDown overrides the rate-limit cool-down window.
func WithCoolDown(d time.Duration) EngineOption {
	return func(e *Engine) { e.coolDown = d }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.nowFn = clock }
}

// NewEngine constructs an engine over the supplied pricing collaborator and
// read-only currency catalog snapshot.
func NewEngine(estimator Estimator, catalog []provider.Currency, opts ...EngineOption) *Engine {
	engine := &Engine{
		estimator:   estimator,
		catalog:     catalog,
		metrics:     observability.Engine(),
		maxAttempts: defaultMaxAttempts,
		coolDown:    defaultCoolDown,
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Estimate tries candidate destination networks in preference order until one
// yields a valid quote or the candidates are exhausted. A "pair does not
// exist" rejection advances to the next candidate; any other upstream failure
// aborts immediately. A 429 arms the cool-down: until it elapses, Estimate
// fails fast without touching the network.
func (e *Engine) Estimate(ctx context.Context, req Request) (Result, error) {
	if e.estimator == nil {
		return Result{}, fmt.Errorf("quote: estimator not configured")
	}
	if until, limited := e.coolingDown(); limited {
		e.metrics.RecordQuoteOutcome("rate_limited")
		return Result{}, fmt.Errorf("%w: cooling down until %s", provider.ErrRateLimited, until.Format(time.RFC3339))
	}
	candidates := e.candidates(req.ToCode, req.ToNetwork)
	if len(candidates) > e.maxAttempts {
		candidates = candidates[:e.maxAttempts]
	}
	for _, network := range candidates {
		e.metrics.RecordQuoteAttempt(network)
		attempt := provider.EstimateRequest{
			FromCode:    req.FromCode,
			FromNetwork: req.FromNetwork,
			ToCode:      req.ToCode,
			ToNetwork:   network,
			Amount:      req.Amount,
			LTVPercent:  req.LTVPercent,
			Exchange:    req.ToCode != req.FromCode,
		}
		got, err := e.estimator.Estimate(ctx, attempt)
		if err == nil && got == nil {
			err = &provider.UpstreamError{Message: "estimate returned no quote"}
		}
		if err == nil {
			winner := network
			if echoed := strings.ToUpper(strings.TrimSpace(got.ToNetwork)); echoed != "" {
				winner = echoed
			}
			e.metrics.RecordQuoteOutcome("success")
			return Result{Quote: *got, ToNetwork: winner}, nil
		}
		if errors.Is(err, provider.ErrRateLimited) {
			e.armCoolDown()
			e.metrics.RecordQuoteOutcome("rate_limited")
			return Result{}, err
		}
		if pairMissing(err) {
			e.metrics.RecordQuoteOutcome("soft_miss")
			continue
		}
		e.metrics.RecordQuoteOutcome("hard_error")
		return Result{}, err
	}
	e.metrics.RecordQuoteOutcome("no_route")
	return Result{}, fmt.Errorf("%w: %s -> %s", ErrNoRoute, req.FromCode, req.ToCode)
}

// candidates enumerates networks on which the target code is receive-enabled,
// ordered by the fixed preference list with the caller's selection first.
func (e *Engine) candidates(toCode, selected string) []string {
	code := strings.ToUpper(strings.TrimSpace(toCode))
	selected = strings.ToUpper(strings.TrimSpace(selected))
	networks := make([]string, 0, 4)
	seen := map[string]bool{}
	if selected != "" {
		networks = append(networks, selected)
		seen[selected] = true
	}
	enabled := make([]string, 0, 4)
	for _, entry := range e.catalog {
		if entry.Code != code || !entry.ReceiveEnabled || seen[entry.Network] {
			continue
		}
		seen[entry.Network] = true
		enabled = append(enabled, entry.Network)
	}
	sortByPriority(enabled)
	return append(networks, enabled...)
}

// sortByPriority stable-sorts networks by the fixed preference table, with
// unknown networks after known ones in their original relative order.
func sortByPriority(networks []string) {
	rank := func(network string) int {
		for i, known := range networkPriority {
			if known == network {
				return i
			}
		}
		return len(networkPriority)
	}
	sort.SliceStable(networks, func(i, j int) bool {
		return rank(networks[i]) < rank(networks[j])
	})
}

func (e *Engine) coolingDown() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rateLimitedAt.IsZero() {
		return time.Time{}, false
	}
	until := e.rateLimitedAt.Add(e.coolDown)
	if e.nowFn().Before(until) {
		return until, true
	}
	e.rateLimitedAt = time.Time{}
	return time.Time{}, false
}

func (e *Engine) armCoolDown() {
	e.mu.Lock()
	e.rateLimitedAt = e.nowFn()
	e.mu.Unlock()
}

// pairMissingPhrases are the provider wordings treated as "this specific pair
// doesn't exist" - the one soft failure that advances to the next candidate.
var pairMissingPhrases = []string{
	"pair does not exist",
	"pair doesn't exist",
	"pair not found",
	"pair is not available",
}

func pairMissing(err error) bool {
	var upstream *provider.UpstreamError
	if !errors.As(err, &upstream) {
		return false
	}
	message := strings.ToLower(upstream.Message)
	for _, phrase := range pairMissingPhrases {
		if strings.Contains(message, phrase) {
			return true
		}
	}
	return false
}
