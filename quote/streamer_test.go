package quote

import (
	"context"
	"sync"
	"testing"
	"time"

	"loanrail/provider"
)

type blockingEstimator struct {
	mu    sync.Mutex
	calls []provider.EstimateRequest
	block map[string]bool
}

func (b *blockingEstimator) Estimate(ctx context.Context, req provider.EstimateRequest) (*provider.Quote, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	shouldBlock := b.block[req.Amount]
	b.mu.Unlock()
	if shouldBlock {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &provider.Quote{ToAmount: "got-" + req.Amount}, nil
}

func (b *blockingEstimator) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func TestStreamerDebouncesRapidInput(t *testing.T) {
	est := &blockingEstimator{}
	engine := NewEngine(est, receiveEnabled("USDT", "ETH"))
	streamer := NewStreamer(engine, WithDebounce(30*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go streamer.Run(ctx)

	// Three rapid edits within one quiet period: only the last is estimated.
	streamer.Submit(Request{ToCode: "USDT", ToNetwork: "ETH", Amount: "1"})
	streamer.Submit(Request{ToCode: "USDT", ToNetwork: "ETH", Amount: "2"})
	streamer.Submit(Request{ToCode: "USDT", ToNetwork: "ETH", Amount: "3"})

	select {
	case update := <-streamer.Updates():
		if update.Err != nil {
			t.Fatalf("update error: %v", update.Err)
		}
		if update.Request.Amount != "3" {
			t.Fatalf("estimated amount = %q, want 3", update.Request.Amount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}
	if got := est.callCount(); got != 1 {
		t.Fatalf("expected a single estimate call, got %d", got)
	}
}

func TestStreamerCancelsStaleAttempt(t *testing.T) {
	est := &blockingEstimator{block: map[string]bool{"slow": true}}
	engine := NewEngine(est, receiveEnabled("USDT", "ETH"))
	streamer := NewStreamer(engine, WithDebounce(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go streamer.Run(ctx)

	streamer.Submit(Request{ToCode: "USDT", ToNetwork: "ETH", Amount: "slow"})
	// Wait until the slow attempt is actually in flight.
	deadline := time.Now().Add(time.Second)
	for est.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow attempt never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	streamer.Submit(Request{ToCode: "USDT", ToNetwork: "ETH", Amount: "fast"})

	select {
	case update := <-streamer.Updates():
		if update.Err != nil {
			t.Fatalf("update error: %v", update.Err)
		}
		if update.Request.Amount != "fast" {
			t.Fatalf("published update for %q, want the latest attempt", update.Request.Amount)
		}
		if update.Result.Quote.ToAmount != "got-fast" {
			t.Fatalf("quote = %+v", update.Result.Quote)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}
}
