package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/restic/kvrecover/internal/options"
)

// Policy describes how long and how often failed operations are retried.
// Waits grow as InitialWait × 2^attempt without jitter and are capped at
// MaxWait. A zero MaxAttempts or MaxElapsed means no limit.
type Policy struct {
	InitialWait time.Duration `option:"initial-wait" help:"wait before the first retry (default: 1s)"`
	MaxWait     time.Duration `option:"max-wait" help:"upper bound for the wait between retries (default: 1h)"`
	MaxAttempts uint          `option:"max-attempts" help:"give up after this many attempts (default: 0, unlimited)"`
	MaxElapsed  time.Duration `option:"max-elapsed" help:"give up after this much time (default: 0, unlimited)"`
}

func init() {
	options.Register("retry", Policy{})
}

// DefaultPolicy retries forever, starting at one second and backing off to at
// most one hour between attempts.
func DefaultPolicy() Policy {
	return Policy{
		InitialWait: time.Second,
		MaxWait:     time.Hour,
	}
}

// Unbounded returns true if the policy never gives up on a transient error.
func (p Policy) Unbounded() bool {
	return p.MaxAttempts == 0 && p.MaxElapsed == 0
}

var fastRetries = false

// NewBackOff returns a fresh backoff.BackOff implementing the policy.
func (p Policy) NewBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialWait
	bo.MaxInterval = p.MaxWait
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = p.MaxElapsed

	if fastRetries {
		// speed up tests
		bo.InitialInterval = time.Millisecond
		bo.MaxInterval = 10 * time.Millisecond
	}
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = time.Second
	}
	if bo.MaxInterval < bo.InitialInterval {
		bo.MaxInterval = bo.InitialInterval
	}
	bo.Reset()

	switch {
	case p.MaxAttempts == 1:
		return &backoff.StopBackOff{}
	case p.MaxAttempts > 1:
		return backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1))
	}
	return bo
}
