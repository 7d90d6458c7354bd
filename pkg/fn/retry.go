package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts configures Retry. A MaxAttempts below one means a single attempt.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
}

// Retry calls f until it succeeds or the attempts are spent, doubling the
// wait between attempts. Jitter scales each wait by a random factor in
// [0.5, 1.5). A done context ends the retries with the context error.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Err[T](err)
		}
		res := f(ctx)
		if res.IsOk() || attempt == attempts {
			return res
		}
		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(backoffWait(opts, attempt)):
		}
	}
}

func backoffWait(opts RetryOpts, attempt int) time.Duration {
	wait := opts.InitialWait
	for i := 1; i < attempt; i++ {
		wait *= 2
		if opts.MaxWait > 0 && wait >= opts.MaxWait {
			wait = opts.MaxWait
			break
		}
	}
	if opts.Jitter {
		wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
	}
	if opts.MaxWait > 0 && wait > opts.MaxWait {
		wait = opts.MaxWait
	}
	return wait
}
