package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
)

// Option customizes a single Do invocation.
type Option func(*doOptions)

type doOptions struct {
	permanent func(error) bool
	onRetry   func(attempt int, err error)
	sleep     func(context.Context, time.Duration) error
	logger    *slog.Logger
}

// WithPermanent overrides the permanent-error classifier. Errors it reports as
// permanent are returned immediately without further attempts.
func WithPermanent(fn func(error) bool) Option {
	return func(o *doOptions) { o.permanent = fn }
}

// WithOnRetry registers a hook invoked before each retry (attempt is 1-based).
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(o *doOptions) { o.onRetry = fn }
}

// WithSleep replaces the wait between attempts. Tests use it to avoid real delays.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *doOptions) { o.sleep = fn }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *doOptions) { o.logger = l }
}

// ExhaustedError is returned when every attempt failed with a transient error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsPermanent is the default classifier. Context cancellation and classified errors
// whose retry strategy forbids retrying are permanent; everything else is transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if ce, ok := errors.AsClassified(err); ok {
		return !ce.CanRetry()
	}
	return false
}

// Do runs fn until it succeeds, fails permanently, the policy's retries are used up,
// or ctx is done. The loop is bounded by MaxRetries.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error, opts ...Option) error {
	o := doOptions{permanent: IsPermanent, sleep: sleepCtx, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			o.logger.Warn("Retrying operation",
				slog.String("operation", op),
				logfields.Attempt(attempt),
				logfields.Error(lastErr))
			if o.onRetry != nil {
				o.onRetry(attempt, lastErr)
			}
			if err := o.sleep(ctx, p.Delay(attempt)); err != nil {
				return err
			}
		}
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if o.permanent(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
