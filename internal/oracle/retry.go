package oracle

import (
	"context"
	"time"
)

const maxRetryDelay = 5 * time.Second

// withRetry runs fn until it succeeds, the attempts run out, or ctx ends.
// The delay doubles after every failure and is capped at maxRetryDelay.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, onFailure func(attempt int, err error), fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}
