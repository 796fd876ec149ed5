// Package retrypolicy wraps avast/retry-go into an explicit policy object,
// as specified by spec §4.5 and §9 ("re-architect the source's function-
// wrapping retry decorator as an explicit retry-loop helper or policy
// object so cancellation and deadline propagation are first-class").
package retrypolicy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrorKind classifies a failure for retry-on matching. Concrete error
// kinds in cacheerr are mapped to these at the call site via Classify.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRateLimit
	KindProviderError
	KindTimeout
)

// Config governs the exponential backoff behavior of Do.
type Config struct {
	// MaxRetries is the number of retries after the first attempt; the
	// operation is attempted MaxRetries+1 times total.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Base is the exponential growth factor (delay = BaseDelay * Base^i).
	Base float64
	// Jitter enables multiplying each computed delay by a random factor
	// in [0.5, 1.0].
	Jitter bool
	// RetryOn lists the error kinds that trigger a retry. Any other kind
	// propagates immediately.
	RetryOn []ErrorKind
}

// DefaultConfig mirrors a conservative vendor-friendly policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Base:       2.0,
		Jitter:     true,
		RetryOn:    []ErrorKind{KindRateLimit, KindProviderError, KindTimeout},
	}
}

func (c Config) retryable(kind ErrorKind) bool {
	for _, k := range c.RetryOn {
		if k == kind {
			return true
		}
	}
	return false
}

// Classify maps an error to an ErrorKind. Operations passed to Do should
// return errors that this function (or a caller-supplied variant) can
// classify; unrecognized errors are treated as non-retryable.
type Classify func(error) ErrorKind

// Do runs fn under the retry policy described by cfg. On the final
// failure, the original error from fn is returned (not a retry-go
// wrapper), so callers can still errors.As into cacheerr types.
//
// A context cancellation observed during a retry sleep aborts immediately
// and returns ctx.Err() wrapped, never masking it behind a retry attempt.
func Do(ctx context.Context, cfg Config, classify Classify, fn func(ctx context.Context) error) error {
	if cfg.Base <= 0 {
		cfg.Base = 2.0
	}

	var lastErr error

	opts := []retry.Option{
		retry.Attempts(uint(cfg.MaxRetries + 1)),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.DelayType(delayFunc(cfg)),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			return cfg.retryable(classify(err))
		}),
	}

	err := retry.Do(func() error {
		err := fn(ctx)
		lastErr = err
		return err
	}, opts...)

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("retrypolicy: cancelled: %w", ctx.Err())
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}

// delayFunc computes attempt i's sleep: min(base*mult^i, max), optionally
// scaled by a uniform random factor in [0.5, 1.0] per spec §4.5.
func delayFunc(cfg Config) retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		d := float64(cfg.BaseDelay) * pow(cfg.Base, int(n))
		if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && d > max {
			d = max
		}
		if cfg.Jitter {
			d *= 0.5 + rand.Float64()*0.5
		}
		return time.Duration(d)
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
