package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type BackoffParams struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxAttempts  int
}

// newDialBackOff builds the retry schedule for reaching the host: InitialDelay,
// growing by Multiplier up to MaxDelay, for at most MaxAttempts dials in total.
// Delays carry no jitter.
func newDialBackOff(ctx context.Context, params BackoffParams) backoff.BackOffContext {
	if params.MaxAttempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = params.InitialDelay
	exp.RandomizationFactor = 0
	exp.Multiplier = params.Multiplier
	if exp.Multiplier < 1 {
		exp.Multiplier = 1
	}
	if params.MaxDelay > 0 {
		exp.MaxInterval = params.MaxDelay
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(params.MaxAttempts-1)), ctx)
}
