package engine

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffPolicy spaces out delete attempts. The wait after attempt n is
// Initial * Multiplier^(n-1), capped at Max. There is no jitter: a single
// process retrying a local delete has nobody to collide with.
type BackoffPolicy struct {
	Initial    time.Duration `mapstructure:"initial" validate:"gte=0"`
	Multiplier float64       `mapstructure:"multiplier" validate:"gte=1"`
	Max        time.Duration `mapstructure:"max" validate:"gtefield=Initial"`
}

// DefaultBackoff waits 100ms, 200ms, 400ms... up to 2s.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Initial: 100 * time.Millisecond, Multiplier: 2, Max: 2 * time.Second}
}

// Constant waits d between every attempt.
func Constant(d time.Duration) BackoffPolicy {
	return BackoffPolicy{Initial: d, Multiplier: 1, Max: d}
}

func (p BackoffPolicy) IsZero() bool {
	return p == BackoffPolicy{}
}

// backOff returns a fresh generator for one delete request.
func (p BackoffPolicy) backOff() backoff.BackOff {
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.Initial)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.Multiplier = p.Multiplier
	b.MaxInterval = max(p.Max, p.Initial)
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Delays lists the waits between maxAttempts attempts.
func (p BackoffPolicy) Delays(maxAttempts int) []time.Duration {
	b := p.backOff()
	var out []time.Duration
	for i := 1; i < maxAttempts; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}
