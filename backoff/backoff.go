// Package backoff implements the retry delay sequencer used to absorb
// transient transport failures (spec component C1): truncated exponential
// backoff with jitter and a wall-clock elapsed-time ceiling.
//
// This is a small, hand-rolled sequencer rather than an imported retry
// library. The closest analogue anywhere in the retrieved corpus is
// gazette-core's broker/client.backoff, itself a hand-written
// switch-on-attempt helper with no third-party dependency; no package in
// the corpus implements truncated-exponential-with-jitter-and-elapsed-ceiling
// backoff, so there is nothing to import here instead.
package backoff

import (
	"math/rand"
	"time"
)

// Policy carries the parameters of a truncated exponential backoff with
// jitter, matching spec §4.1. The zero value is not usable; start from
// DefaultPolicy or set every field explicitly.
type Policy struct {
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the (pre-jitter) computed interval.
	MaxInterval time.Duration
	// Multiplier is applied per retry attempt: interval(k) = min(initial *
	// multiplier^k, maxInterval).
	Multiplier float64
	// RandomizationFactor perturbs each interval uniformly within
	// [interval*(1-f), interval*(1+f)].
	RandomizationFactor float64
	// MaxElapsed is the wall-clock budget for an entire retry loop. Once
	// cumulative elapsed time would exceed it, the sequencer signals give-up.
	// A zero MaxElapsed means "give up immediately after the first failure."
	MaxElapsed time.Duration
}

// DefaultPolicy returns the spec's default parameters: 200ms initial, 1.5x
// multiplier, 0.5 randomisation, 10s max interval, 120s max elapsed.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		MaxElapsed:          120 * time.Second,
	}
}

// Sequencer produces successive retry delays for a single retry loop. A
// fresh Sequencer must be constructed per retry loop (spec §4.1: "sequencers
// are not reused across operations"); it is not safe for concurrent use,
// matching the channel's own single-caller discipline.
type Sequencer struct {
	policy  Policy
	attempt int
	start   time.Time
	elapsed time.Duration
	now     func() time.Time
	rand    *rand.Rand
}

// New constructs a Sequencer for a fresh retry loop, starting its elapsed
// clock now.
func New(p Policy) *Sequencer {
	return newWithClock(p, time.Now)
}

// newWithClock allows tests to supply a deterministic clock.
func newWithClock(p Policy, now func() time.Time) *Sequencer {
	return &Sequencer{
		policy: p,
		now:    now,
		start:  now(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay to wait before the next retry attempt, and true.
// It returns (0, false) once the cumulative elapsed wall-clock time would
// exceed MaxElapsed, signalling that the caller should give up and surface
// the last error.
func (s *Sequencer) Next() (time.Duration, bool) {
	s.elapsed = s.now().Sub(s.start)
	if s.elapsed >= s.policy.MaxElapsed {
		return 0, false
	}

	interval := s.interval(s.attempt)
	if s.elapsed+interval > s.policy.MaxElapsed {
		return 0, false
	}
	s.attempt++
	return interval, true
}

// Attempt returns how many delays Next has already produced.
func (s *Sequencer) Attempt() int {
	return s.attempt
}

func (s *Sequencer) interval(attempt int) time.Duration {
	raw := float64(s.policy.InitialInterval) * pow(s.policy.Multiplier, attempt)
	if max := float64(s.policy.MaxInterval); raw > max {
		raw = max
	}
	return jitter(s.rand, raw, s.policy.RandomizationFactor)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func jitter(r *rand.Rand, interval, factor float64) time.Duration {
	if factor <= 0 {
		return time.Duration(interval)
	}
	delta := interval * factor
	min := interval - delta
	max := interval + delta
	return time.Duration(min + r.Float64()*(max-min))
}
