package quote

import (
	"context"
	"time"
)

const defaultDebounce = 400 * time.Millisecond

// Update is the outcome of the most recent estimate attempt. Exactly one of
// Result/Err is meaningful.
type Update struct {
	Request Request
	Result  Result
	Err     error
}

// Streamer re-estimates on every input change with a quiet-period debounce.
// A new submission cancels the in-flight attempt, and only the latest
// attempt's result is ever published, so a slow stale response can never
// overwrite a newer one.
type Streamer struct {
	engine   *Engine
	debounce time.Duration
	input    chan Request
	updates  chan Update
}

// StreamerOption customises the streamer.
type StreamerOption func(*Streamer)

// WithDebounce overrides the quiet period.
func WithDebounce(d time.Duration) StreamerOption {
	return func(s *Streamer) { s.debounce = d }
}

// NewStreamer constructs a streamer over the supplied engine.
func NewStreamer(engine *Engine, opts ...StreamerOption) *Streamer {
	s := &Streamer{
		engine:   engine,
		debounce: defaultDebounce,
		input:    make(chan Request, 1),
		updates:  make(chan Update, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records a new input tuple. The previous pending tuple, if any, is
// superseded.
func (s *Streamer) Submit(req Request) {
	for {
		select {
		case s.input <- req:
			return
		default:
			select {
			case <-s.input:
			default:
			}
		}
	}
}

// Updates delivers the latest attempt outcomes. The channel holds at most one
// pending update; unread stale updates are replaced.
func (s *Streamer) Updates() <-chan Update {
	return s.updates
}

type attemptOutcome struct {
	seq     uint64
	request Request
	result  Result
	err     error
}

// Run owns the debounce/cancel loop until the context is cancelled.
func (s *Streamer) Run(ctx context.Context) {
	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	var (
		pending       Request
		havePending   bool
		seq           uint64
		attemptCancel context.CancelFunc
		done          = make(chan attemptOutcome, 1)
	)
	defer func() {
		if attemptCancel != nil {
			attemptCancel()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.input:
			// Inputs changed: the in-flight attempt is stale. Bumping seq
			// here keeps its late outcome from ever being published.
			if attemptCancel != nil {
				attemptCancel()
				attemptCancel = nil
				seq++
			}
			pending = req
			havePending = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.debounce)
		case <-timer.C:
			if !havePending {
				continue
			}
			havePending = false
			seq++
			attemptSeq := seq
			request := pending
			attemptCtx, cancel := context.WithCancel(ctx)
			attemptCancel = cancel
			go func() {
				result, err := s.engine.Estimate(attemptCtx, request)
				select {
				case done <- attemptOutcome{seq: attemptSeq, request: request, result: result, err: err}:
				case <-ctx.Done():
				}
			}()
		case outcome := <-done:
			if outcome.seq != seq {
				continue
			}
			if outcome.err != nil && ctx.Err() != nil {
				continue
			}
			s.publish(Update{Request: outcome.request, Result: outcome.result, Err: outcome.err})
		}
	}
}

func (s *Streamer) publish(update Update) {
	for {
		select {
		case s.updates <- update:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}
