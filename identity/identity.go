// Package identity supplies short-lived bearer credentials for calls to the
// lending provider. Credential issuance itself lives elsewhere; this package
// only wraps a source with the retry and caching discipline the settlement
// flows need while identity is still initializing.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotLoggedIn indicates no credential is currently available. It is a
// recoverable condition: identity may still be initializing, so callers retry
// with backoff rather than treating it as fatal.
var ErrNotLoggedIn = errors.New("identity: not logged in")

// TokenSource yields a bearer credential on demand.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Static is a fixed credential, useful for tests and service accounts.
type Static string

// Token returns the fixed credential or ErrNotLoggedIn when empty.
func (s Static) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNotLoggedIn
	}
	return string(s), nil
}

const (
	defaultRetryAttempts = 8
	defaultRetryDelay    = 350 * time.Millisecond
)

// Retrying wraps a source and retries ErrNotLoggedIn a bounded number of
// times. Any other error aborts immediately.
type Retrying struct {
	Source   TokenSource
	Attempts int
	Delay    time.Duration
}

// Token polls the underlying source until a credential appears or the retry
// budget is exhausted.
func (r Retrying) Token(ctx context.Context) (string, error) {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	delay := r.Delay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		token, err := r.Source.Token(ctx)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNotLoggedIn) {
			return "", err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

// Caching wraps a source and reuses the credential until shortly before its
// JWT expiry claim. Tokens without a parseable expiry are not cached.
type Caching struct {
	Source TokenSource
	// Leeway is subtracted from the expiry when deciding whether the cached
	// token is still usable. Defaults to 30 seconds.
	Leeway time.Duration

	mu     sync.Mutex
	token  string
	expiry time.Time
	nowFn  func() time.Time
}

// Token returns the cached credential when still fresh, otherwise fetches a
// new one from the underlying source.
func (c *Caching) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now
	if c.nowFn != nil {
		now = c.nowFn
	}
	leeway := c.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	if c.token != "" && now().Add(leeway).Before(c.expiry) {
		return c.token, nil
	}
	token, err := c.Source.Token(ctx)
	if err != nil {
		return "", err
	}
	if exp, ok := tokenExpiry(token); ok {
		c.token = token
		c.expiry = exp
	} else {
		c.token = ""
		c.expiry = time.Time{}
	}
	return token, nil
}

// tokenExpiry extracts the exp claim without verifying the signature; the
// provider verifies the token, we only need the freshness hint.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
