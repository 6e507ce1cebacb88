// Package provider binds the external lending provider's HTTP JSON API. The
// API surface that proxies these calls to end users lives elsewhere; this
// client is what the settlement engine consumes directly.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"loanrail/identity"
)

const defaultTimeout = 15 * time.Second

// Client talks to the lending provider. Every call carries a bearer
// credential from the configured token source.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  identity.TokenSource
	limiter *rate.Limiter
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. The caller owns the
// transport; instrumentation is not re-applied.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout overrides the request timeout while keeping the default traced
// transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLimiter overrides the client-side request limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient constructs a provider client with sane defaults: a 15 second
// request timeout (the provider imposes none), traced transport, and a
// client-side rate limiter well under the provider's throttling threshold.
func NewClient(baseURL string, tokens identity.TokenSource, opts ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(8), 16),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Currencies fetches the currency catalog.
func (c *Client) Currencies(ctx context.Context) ([]Currency, error) {
	var catalog []Currency
	if err := c.do(ctx, http.MethodGet, "/currencies", nil, &catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

// Estimate requests a quote for the supplied tuple.
func (c *Client) Estimate(ctx context.Context, req EstimateRequest) (*Quote, error) {
	quote := &Quote{}
	if err := c.do(ctx, http.MethodPost, "/loan/estimate", req, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

// CreateLoan creates a loan from an accepted quote and returns its id. The
// provider has shipped the id under two spellings.
func (c *Client) CreateLoan(ctx context.Context, req CreateLoanRequest) (string, error) {
	var resp struct {
		ID     string `json:"id"`
		LoanID string `json:"loan_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/loan", req, &resp); err != nil {
		return "", err
	}
	id := strings.TrimSpace(resp.ID)
	if id == "" {
		id = strings.TrimSpace(resp.LoanID)
	}
	if id == "" {
		return "", &UpstreamError{Message: "loan created without an id"}
	}
	return id, nil
}

// ConfirmLoan registers the payout address and returns deposit instructions.
func (c *Client) ConfirmLoan(ctx context.Context, loanID, payoutAddress string) (*DepositInstructions, error) {
	req := struct {
		PayoutAddress string `json:"payout_address"`
	}{PayoutAddress: payoutAddress}
	instructions := &DepositInstructions{}
	if err := c.do(ctx, http.MethodPost, "/loan/"+loanID+"/confirm", req, instructions); err != nil {
		return nil, err
	}
	return instructions, nil
}

// LoanByID fetches the freshest loan snapshot.
func (c *Client) LoanByID(ctx context.Context, loanID string) (*Loan, error) {
	loan := &Loan{}
	if err := c.do(ctx, http.MethodGet, "/loan/"+loanID, nil, loan); err != nil {
		return nil, err
	}
	if loan.ID == "" {
		loan.ID = loanID
	}
	return loan, nil
}

// CreateIncreaseEstimate asks the provider to price a collateral increase.
func (c *Client) CreateIncreaseEstimate(ctx context.Context, loanID, amount string) (*IncreaseEstimate, error) {
	req := struct {
		Amount string `json:"amount"`
	}{Amount: amount}
	estimate := &IncreaseEstimate{}
	if err := c.do(ctx, http.MethodPost, "/loan/"+loanID+"/increase/estimate", req, estimate); err != nil {
		return nil, err
	}
	return estimate, nil
}

// CreateIncreaseTx creates the collateral-increase transaction for the
// provider-adjusted amount.
func (c *Client) CreateIncreaseTx(ctx context.Context, loanID, amount string) (*IncreaseTx, error) {
	req := struct {
		Amount string `json:"amount"`
	}{Amount: amount}
	tx := &IncreaseTx{}
	if err := c.do(ctx, http.MethodPost, "/loan/"+loanID+"/increase", req, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// CreatePledgeRedemption creates the repayment intent for closing the loan.
func (c *Client) CreatePledgeRedemption(ctx context.Context, loanID string, req PledgeRedemptionRequest) error {
	return c.do(ctx, http.MethodPost, "/loan/"+loanID+"/pledge-redemption", req, nil)
}

// ValidateAddress asks the provider whether an address is acceptable for the
// given currency and network. The provider verdict is authoritative.
func (c *Client) ValidateAddress(ctx context.Context, address, code, network, tag string) (*AddressCheck, error) {
	req := struct {
		Address string `json:"address"`
		Code    string `json:"code"`
		Network string `json:"network"`
		Tag     string `json:"tag,omitempty"`
	}{Address: address, Code: code, Network: network, Tag: tag}
	check := &AddressCheck{}
	if err := c.do(ctx, http.MethodPost, "/address/validate", req, check); err != nil {
		return nil, err
	}
	return check, nil
}

type envelope struct {
	Result   bool            `json:"result"`
	Response json.RawMessage `json:"response"`
	Message  string          `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c == nil {
		return fmt.Errorf("provider: client not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("provider: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, path)
	case resp.StatusCode >= 300:
		return &UpstreamError{Status: resp.StatusCode, Message: httpMessage(raw), Payload: raw}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &UpstreamError{Status: resp.StatusCode, Message: "malformed provider response", Payload: raw}
	}
	if !env.Result {
		return &UpstreamError{Status: resp.StatusCode, Message: strings.TrimSpace(env.Message), Payload: raw}
	}
	if out == nil {
		return nil
	}
	if len(env.Response) == 0 {
		return &UpstreamError{Status: resp.StatusCode, Message: "provider response missing body", Payload: raw}
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return &UpstreamError{Status: resp.StatusCode, Message: "malformed provider response", Payload: raw}
	}
	return nil
}

// httpMessage pulls a human readable message out of an HTTP error body when
// one exists.
func httpMessage(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && strings.TrimSpace(env.Message) != "" {
		return strings.TrimSpace(env.Message)
	}
	return ""
}
