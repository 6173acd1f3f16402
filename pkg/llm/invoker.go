package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coi-notes-be/internal/pkg/logger"
)

const invokerModule = "Invoker"

// RetryPolicy is exponential backoff without jitter: BaseDelay, 2*BaseDelay, 4*BaseDelay...
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   300 * time.Millisecond,
	}
}

// Delay returns the wait after the given number of failed attempts (1-based).
func (p RetryPolicy) Delay(failed int) time.Duration {
	if failed < 1 {
		failed = 1
	}
	return p.BaseDelay * time.Duration(1<<(failed-1))
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Invoker calls a Provider and retries transient failures.
type Invoker struct {
	provider Provider
	policy   RetryPolicy
	logger   logger.ILogger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewInvoker(provider Provider, policy RetryPolicy, log logger.ILogger) *Invoker {
	return &Invoker{
		provider: provider,
		policy:   policy,
		logger:   log,
		sleep:    sleepContext,
	}
}

// Invoke returns the whole response, retrying per policy.
func (i *Invoker) Invoke(ctx context.Context, req *Request) (*Result, error) {
	return i.run(ctx, "generate", func(ctx context.Context, _ int) (*Result, error) {
		return i.provider.Generate(ctx, req)
	})
}

// InvokeStreaming forwards fragments to onFragment in arrival order. Only
// the connection phase is retried: once a fragment has been delivered any
// failure is terminal, since the caller cannot take back what it forwarded.
func (i *Invoker) InvokeStreaming(ctx context.Context, req *Request, onFragment FragmentHandler) (*Result, error) {
	var (
		delivered  bool
		handlerErr error
	)

	return i.run(ctx, "stream", func(ctx context.Context, attempt int) (*Result, error) {
		res, err := i.provider.GenerateStream(ctx, req, func(fragment string) error {
			delivered = true
			if err := onFragment(fragment); err != nil {
				handlerErr = err
				return err
			}
			return nil
		})
		if err == nil {
			return res, nil
		}
		if handlerErr != nil {
			return nil, &terminalError{err: handlerErr}
		}
		if delivered && ctx.Err() == nil {
			_, status := classify(err)
			i.logger.Error(invokerModule, "Upstream stream broke mid-response", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			return nil, &terminalError{err: &Error{
				Kind:     KindTransient,
				Status:   status,
				Message:  upstreamMessage(err),
				Attempts: attempt,
				Err:      fmt.Errorf("%w: %w", ErrStreamInterrupted, err),
			}}
		}
		return nil, err
	})
}

// terminalError short-circuits the retry loop.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }

func (i *Invoker) run(ctx context.Context, op string, attempt func(ctx context.Context, n int) (*Result, error)) (*Result, error) {
	maxAttempts := i.policy.attempts()

	var (
		lastErr    error
		lastStatus int
	)
	for n := 1; n <= maxAttempts; n++ {
		res, err := attempt(ctx, n)
		if err == nil {
			if n > 1 {
				i.logger.Info(invokerModule, "Upstream call recovered", map[string]interface{}{
					"op":      op,
					"attempt": n,
				})
			}
			return res, nil
		}

		var term *terminalError
		if errors.As(err, &term) {
			return nil, term.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		kind, status := classify(err)
		if kind == KindRejected {
			i.logger.Error(invokerModule, "Upstream rejected request", map[string]interface{}{
				"op":     op,
				"status": status,
				"error":  err.Error(),
			})
			return nil, &Error{
				Kind:     KindRejected,
				Status:   status,
				Message:  upstreamMessage(err),
				Attempts: n,
				Err:      err,
			}
		}

		lastErr, lastStatus = err, status
		if n == maxAttempts {
			break
		}

		delay := i.policy.Delay(n)
		i.logger.Warn(invokerModule, "Upstream call failed, retrying", map[string]interface{}{
			"op":       op,
			"attempt":  n,
			"status":   status,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		if err := i.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	i.logger.Error(invokerModule, "Upstream retries exhausted", map[string]interface{}{
		"op":       op,
		"attempts": maxAttempts,
		"status":   lastStatus,
		"error":    lastErr.Error(),
	})
	return nil, &Error{
		Kind:     KindExhausted,
		Status:   lastStatus,
		Message:  upstreamMessage(lastErr),
		Attempts: maxAttempts,
		Err:      lastErr,
	}
}

func upstreamMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
