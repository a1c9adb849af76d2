// Package fetch wraps a single outbound call with bounded retries,
// exponential backoff, and error classification.
//
// Classification is the load-bearing part: client-side rejections (4xx),
// parse failures, and validation failures are terminal because retrying
// them cannot help, while 5xx responses, network faults, and attempt
// timeouts are transient and worth retrying. Callers signal which is
// which by returning domain.ServiceError values.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/couchcryptid/wildfire-risk-service/internal/domain"
	"github.com/couchcryptid/wildfire-risk-service/internal/observability"
)

const (
	DefaultBaseDelay  = 100 * time.Millisecond
	DefaultPerAttempt = 2 * time.Second

	// maxDelay caps exponential growth so a generous retry budget never
	// turns into multi-minute waits.
	maxDelay = 5 * time.Second
)

// Options tunes one outbound operation.
type Options struct {
	// Name labels the operation in logs, metrics, and errors, e.g. "effis_fwi".
	Name string

	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times. Zero means exactly one
	// attempt; negative values are a validation error.
	MaxRetries int

	// BaseDelay seeds the backoff: the nth retry waits BaseDelay * 2^n,
	// capped at 5s. Zero selects DefaultBaseDelay.
	BaseDelay time.Duration

	// PerAttempt bounds each individual attempt. The caller's context
	// still bounds the whole operation, waits included.
	PerAttempt time.Duration

	// sleep is swapped by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) bool
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "fetch"
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.PerAttempt <= 0 {
		o.PerAttempt = DefaultPerAttempt
	}
	if o.sleep == nil {
		o.sleep = sleepWithContext
	}
	return o
}

// Do runs op under the retry policy described in the package comment.
// When the budget runs out the final error is reported as
// service_unavailable, or network when the last fault was connectivity,
// wrapping the last attempt's error either way.
func Do[T any](ctx context.Context, logger *slog.Logger, metrics *observability.Metrics, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if opts.MaxRetries < 0 {
		return zero, domain.NewError(domain.CategoryValidation,
			fmt.Sprintf("max retries must not be negative, got %d", opts.MaxRetries))
	}
	opts = opts.withDefaults()

	attempts := opts.MaxRetries + 1
	delay := opts.BaseDelay

	var lastErr error
	ran := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		result, err := runAttempt(ctx, opts.PerAttempt, op)
		ran++
		if err == nil {
			metrics.FetchAttempts.WithLabelValues(opts.Name, "success").Inc()
			if attempt > 1 {
				logger.Info("fetch recovered after retry", "operation", opts.Name, "attempt", attempt)
			}
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			metrics.FetchAttempts.WithLabelValues(opts.Name, "terminal_error").Inc()
			logger.Warn("fetch failed", "operation", opts.Name, "attempt", attempt, "error", err)
			return zero, err
		}

		metrics.FetchAttempts.WithLabelValues(opts.Name, "retryable_error").Inc()
		if attempt == attempts {
			break
		}

		logger.Warn("fetch attempt failed, backing off",
			"operation", opts.Name, "attempt", attempt, "delay", delay, "error", err)
		if !opts.sleep(ctx, delay) {
			break
		}
		delay = nextDelay(delay)
	}

	metrics.FetchExhausted.WithLabelValues(opts.Name).Inc()
	err := exhausted(opts.Name, ran, lastErr)
	logger.Error("fetch gave up", "operation", opts.Name, "attempts", ran, "error", err)
	return zero, err
}

func runAttempt[T any](ctx context.Context, perAttempt time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, perAttempt)
	defer cancel()
	return op(attemptCtx)
}

// retryable separates transient faults from terminal ones. Upstream
// statuses decide first: 5xx retries, everything else in the 4xx range
// does not. Without a status, connectivity faults and attempt timeouts
// retry; parse, validation, and unrecognized errors do not.
func retryable(err error) bool {
	if status := domain.StatusOf(err); status != 0 {
		return status >= 500
	}
	if domain.IsCategory(err, domain.CategoryNetwork) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// exhausted remaps the final failure so callers see the budget outcome:
// connectivity faults stay network, everything else becomes
// service_unavailable. The last attempt's error is wrapped for context.
func exhausted(name string, ran int, lastErr error) error {
	category := domain.CategoryServiceUnavailable
	if isConnectivity(lastErr) {
		category = domain.CategoryNetwork
	}
	return domain.WrapError(category, fmt.Sprintf("%s gave up after %d attempts", name, ran), lastErr)
}

func isConnectivity(err error) bool {
	if domain.IsCategory(err, domain.CategoryNetwork) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func nextDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > maxDelay {
		return maxDelay
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
