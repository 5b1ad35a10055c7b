package llm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryProvider is a decorator that retries transient errors with
// exponential backoff and jitter. Each attempt gets its own deadline so a
// single hung call counts as one transient failure.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	invalidRetried := false

	for attempt := range r.config.MaxAttempts {
		resp, err := r.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !r.shouldRetry(ctx, err, &invalidRetried) {
			return nil, err
		}

		// Last attempt, don't sleep.
		if attempt == r.config.MaxAttempts-1 {
			break
		}

		wait := r.backoff(attempt, err)
		slog.Warn("LLM call failed, retrying",
			"purpose", PurposeFrom(ctx), "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

func (r *RetryProvider) attempt(ctx context.Context, req Request) (*Response, error) {
	if r.config.AttemptTimeout <= 0 {
		return r.inner.Generate(ctx, req)
	}
	actx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
	defer cancel()
	resp, err := r.inner.Generate(actx, req)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		var unavail *ErrProviderUnavailable
		if !errors.As(err, &unavail) {
			err = &ErrProviderUnavailable{Err: err}
		}
	}
	return resp, err
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// Ping delegates to the wrapped provider when it supports it.
func (r *RetryProvider) Ping(ctx context.Context) error {
	if p, ok := r.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// shouldRetry determines if an error is retryable.
func (r *RetryProvider) shouldRetry(ctx context.Context, err error, invalidRetried *bool) bool {
	// The caller gave up; nothing to retry for.
	if ctx.Err() != nil {
		return false
	}

	// Max tokens is a configuration issue, not transient.
	var maxTok *ErrMaxTokensExceeded
	if errors.As(err, &maxTok) {
		return false
	}

	// Invalid response gets one retry.
	var invResp *ErrInvalidResponse
	if errors.As(err, &invResp) {
		if *invalidRetried {
			return false
		}
		*invalidRetried = true
		return true
	}

	// Rate limits, unavailability, attempt timeouts and other network errors are transient.
	return true
}

// backoff computes the wait duration for the given attempt.
func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	// Respect RetryAfter for rate limits.
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	if wait > float64(r.config.MaxWait) {
		wait = float64(r.config.MaxWait)
	}

	// ±20% jitter.
	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	wait += jitter

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
