package watch

import (
	"context"
	"sync"
	"time"
)

// Registry tracks one watcher per loan so repeated watch requests for the
// same loan share a single poll loop. All poll loops run under the lifecycle
// context given at construction, never under a caller's request context: the
// first caller going away must not stop polling for everyone else.
type Registry struct {
	ctx      context.Context
	reader   LoanReader
	interval time.Duration

	mu       sync.Mutex
	watchers map[string]*Watcher
}

// NewRegistry constructs a registry over the shared loan reader. The context
// bounds the lifetime of every watcher the registry starts.
func NewRegistry(ctx context.Context, reader LoanReader, interval time.Duration) *Registry {
	return &Registry{
		ctx:      ctx,
		reader:   reader,
		interval: interval,
		watchers: make(map[string]*Watcher),
	}
}

// Watch returns the watcher for the loan, creating and starting one when none
// exists. A watcher that already reached a terminal phase is returned as-is;
// re-watching a settled loan is a read, not a restart.
func (r *Registry) Watch(loanID string) *Watcher {
	r.mu.Lock()
	if w, ok := r.watchers[loanID]; ok {
		r.mu.Unlock()
		return w
	}
	w := New(r.reader, loanID, WithInterval(r.interval))
	r.watchers[loanID] = w
	r.mu.Unlock()
	go func() { _ = w.Start(r.ctx) }()
	return w
}

// Get returns the watcher for a loan when one exists.
func (r *Registry) Get(loanID string) (*Watcher, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchers[loanID]
	return w, ok
}

// StopAll forces every non-terminal watcher into the error phase. Used on
// daemon shutdown so consumers observe a deliberate stop rather than silence.
func (r *Registry) StopAll(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.watchers {
		w.Stop(reason)
	}
}
