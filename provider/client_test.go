package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"loanrail/identity"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, identity.Static("test-token"))
}

func TestCurrenciesDecodesAliases(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("authorization header = %q", got)
		}
		w.Write([]byte(`{"result":true,"response":[
			{"code":"usdc","network":"arbitrum","is_deposit_enabled":true,"is_receive_enabled":true,"decimal_places":6,"contract_address":"0xaf88"},
			{"currency_code":"BTC","chain":"btc","deposit_enabled":"true","decimals":8}
		]}`))
	})
	catalog, err := client.Currencies(context.Background())
	if err != nil {
		t.Fatalf("currencies: %v", err)
	}
	if len(catalog) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(catalog))
	}
	usdc := catalog[0]
	if usdc.Code != "USDC" || usdc.Network != "ARBITRUM" || usdc.DecimalPlaces != 6 || !usdc.ReceiveEnabled {
		t.Fatalf("unexpected usdc entry: %+v", usdc)
	}
	btc := catalog[1]
	if btc.Code != "BTC" || btc.Network != "BTC" || btc.DecimalPlaces != 8 || !btc.DepositEnabled {
		t.Fatalf("unexpected btc entry: %+v", btc)
	}
}

func TestResultFalseBecomesUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":false,"message":"this pair does not exist"}`))
	})
	_, err := client.Estimate(context.Background(), EstimateRequest{FromCode: "BTC", ToCode: "USDT"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Message != "this pair does not exist" {
		t.Fatalf("message = %q", upstream.Message)
	}
	if len(upstream.Payload) == 0 {
		t.Fatal("raw payload must be preserved for diagnostics")
	}
}

func TestForbiddenIsFatalSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := client.LoanByID(context.Background(), "loan-1")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRateLimitedSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.Estimate(context.Background(), EstimateRequest{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestCreateLoanIDAliases(t *testing.T) {
	for _, body := range []string{
		`{"result":true,"response":{"id":"loan-77"}}`,
		`{"result":true,"response":{"loan_id":"loan-77"}}`,
	} {
		payload := body
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(payload))
		})
		id, err := client.CreateLoan(context.Background(), CreateLoanRequest{})
		if err != nil {
			t.Fatalf("create loan: %v", err)
		}
		if id != "loan-77" {
			t.Fatalf("id = %q", id)
		}
	}
}

func TestWithTimeoutKeepsTracedTransport(t *testing.T) {
	client := NewClient("https://api.example.com", identity.Static("t"), WithTimeout(5*time.Second))
	if client.http.Timeout != 5*time.Second {
		t.Fatalf("timeout = %s, want 5s", client.http.Timeout)
	}
	if _, ok := client.http.Transport.(*otelhttp.Transport); !ok {
		t.Fatalf("transport = %T, want instrumented transport", client.http.Transport)
	}
	// Non-positive values keep the default.
	client = NewClient("https://api.example.com", identity.Static("t"), WithTimeout(0))
	if client.http.Timeout != defaultTimeout {
		t.Fatalf("timeout = %s, want default", client.http.Timeout)
	}
}

func TestTokenSourceErrorShortCircuits(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()
	client := NewClient(srv.URL, identity.Static(""))
	_, err := client.Currencies(context.Background())
	if !errors.Is(err, identity.ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if called {
		t.Fatal("request must not reach the network without a credential")
	}
}
