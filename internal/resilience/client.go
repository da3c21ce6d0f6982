package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RequestFunc builds a fresh request for every attempt, so bodies never
// need to be rewound.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// StatusError is a response outside the 2xx range.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: unexpected status %d", e.StatusCode)
}

// Client wraps an http.Client with retries and an optional circuit breaker. 5xx, 429
// and transport errors are retried and count against the breaker; other 4xx
// responses fail at once.
type Client struct {
	HTTP        *http.Client
	Breaker     *Breaker
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Do sends the request and returns the first 2xx response. The caller owns
// the response body.
func (c Client) Do(ctx context.Context, build RequestFunc) (*http.Response, error) {
	if c.HTTP == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := c.Breaker

	var resp *http.Response
	op := func() error {
		req, err := build(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !breaker.allow(ctx) {
			return backoff.Permanent(ErrOpenCircuit)
		}
		r, err := c.HTTP.Do(req)
		if err != nil {
			breaker.report(ctx, false)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			discard(r)
			breaker.report(ctx, false)
			return &StatusError{StatusCode: r.StatusCode}
		}
		breaker.report(ctx, true)
		if r.StatusCode >= 300 {
			discard(r)
			return backoff.Permanent(&StatusError{StatusCode: r.StatusCode})
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c Client) policy(ctx context.Context) backoff.BackOff {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 100 * time.Millisecond
	if c.BaseBackoff > 0 {
		exp.InitialInterval = c.BaseBackoff
	}
	if c.MaxBackoff > 0 {
		exp.MaxInterval = c.MaxBackoff
	}
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

func discard(r *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
	_ = r.Body.Close()
}

// allow admits every call on a nil breaker.
func (b *Breaker) allow(ctx context.Context) bool {
	return b == nil || b.Allow(ctx)
}

func (b *Breaker) report(ctx context.Context, success bool) {
	if b != nil {
		b.Report(ctx, success)
	}
}
