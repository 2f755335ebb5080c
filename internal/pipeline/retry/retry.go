package retry

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"time"
)

// FailureCategory classifies an operation failure.
type FailureCategory int

const (
	// CategoryRetryable covers failures believed to be transient: network
	// transport errors, timeouts, deadline cancellation, and local I/O.
	CategoryRetryable FailureCategory = iota
	// CategoryFatal propagates on the first attempt without retrying.
	CategoryFatal
)

// Classifier determines the category for a given error.
type Classifier func(err error) FailureCategory

// retryableError marks an error as transient regardless of its type.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable wraps err so the default classifier treats it as transient.
// Callers use this for protocol-level failures (e.g. a non-2xx HTTP status)
// that the type-based allow-list cannot see.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// DefaultClassifier applies the fixed allow-list: anything not on it is fatal.
func DefaultClassifier(err error) FailureCategory {
	if err == nil {
		return CategoryFatal
	}

	var marked *retryableError
	if errors.As(err, &marked) {
		return CategoryRetryable
	}

	// Timeouts, including context cancellation caused by a deadline.
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return CategoryRetryable
	}

	// Network transport failures. net.Error covers timeouts and most
	// transport-level errors; url.Error is what http.Client returns.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryRetryable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryRetryable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return CategoryRetryable
	}

	// Local I/O failures.
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return CategoryRetryable
	}

	return CategoryFatal
}

// Executor runs operations with exponential backoff on retryable failures.
// It holds no per-call state and is safe for concurrent use.
type Executor struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // delay before retry 1; doubles each retry
	Classifier Classifier
	log        *slog.Logger
}

// NewExecutor creates an executor with the default classifier.
func NewExecutor(maxRetries int, baseDelay time.Duration, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		Classifier: DefaultClassifier,
		log:        log,
	}
}

// Delay calculates the backoff for the given attempt (0-indexed):
// BaseDelay * 2^attempt.
func (e *Executor) Delay(attempt int) time.Duration {
	return time.Duration(float64(e.BaseDelay) * math.Pow(2, float64(attempt)))
}

// Do executes op, retrying retryable failures up to MaxRetries times
// (MaxRetries+1 invocations total). Fatal failures propagate immediately;
// the last retryable failure propagates once the budget is exhausted.
func Do[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if e.Classifier(err) == CategoryFatal {
			return zero, err
		}
		if attempt == e.MaxRetries {
			break
		}

		delay := e.Delay(attempt)
		e.log.Warn("Operation failed, retrying",
			"operation", name, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// DoVoid is the value-less variant of Do.
func (e *Executor) DoVoid(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := Do(ctx, e, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
