package retry

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/restic/kvrecover/internal/options"
	"github.com/restic/kvrecover/internal/test"
)

func TestPolicyBackOffSequence(t *testing.T) {
	b := DefaultPolicy().NewBackOff()

	want := time.Second
	for i := 0; i < 20; i++ {
		d := b.NextBackOff()
		test.Equals(t, want, d)

		want *= 2
		if want > time.Hour {
			want = time.Hour
		}
	}
}

func TestPolicyMaxAttempts(t *testing.T) {
	p := DefaultPolicy()
	p.MaxAttempts = 3
	b := p.NewBackOff()

	// three attempts means two retries
	test.Equals(t, time.Second, b.NextBackOff())
	test.Equals(t, 2*time.Second, b.NextBackOff())
	test.Equals(t, backoff.Stop, b.NextBackOff())
}

func TestPolicySingleAttempt(t *testing.T) {
	p := DefaultPolicy()
	p.MaxAttempts = 1
	test.Equals(t, backoff.Stop, p.NewBackOff().NextBackOff())
}

func TestPolicyUnbounded(t *testing.T) {
	test.Assert(t, DefaultPolicy().Unbounded(), "default policy must retry forever")

	p := DefaultPolicy()
	p.MaxElapsed = time.Minute
	test.Assert(t, !p.Unbounded(), "policy with deadline reported as unbounded")

	p = DefaultPolicy()
	p.MaxAttempts = 1
	test.Assert(t, !p.Unbounded(), "policy with attempt limit reported as unbounded")
}

func TestPolicyOptions(t *testing.T) {
	opts := options.Options{
		"initial-wait": "2s",
		"max-wait":     "10m",
		"max-attempts": "7",
	}

	p := DefaultPolicy()
	test.OK(t, opts.Apply("retry", &p))
	test.Equals(t, Policy{
		InitialWait: 2 * time.Second,
		MaxWait:     10 * time.Minute,
		MaxAttempts: 7,
	}, p)
}
