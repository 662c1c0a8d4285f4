// Package backoff computes the delay a device waits between connection attempts.
//
// The policy follows https://cloud.google.com/iot/docs/how-tos/exponential-backoff:
// each failure multiplies the current delay by a factor, adds a random jitter
// and clamps the result to a ceiling. A successful connection resets the delay
// to the configured minimum.
package backoff

import (
	"errors"
	"time"
)

var (
	// ErrInvalidBounds is returned when the minimum delay is larger than the maximum delay.
	ErrInvalidBounds = errors.New("backoff: minimum delay must not exceed maximum delay")
	// ErrInvalidFactor is returned when the multiplicative factor is lower than 1.
	ErrInvalidFactor = errors.New("backoff: factor must be >= 1")
	// ErrNegativeDuration is returned when any configured duration is negative.
	ErrNegativeDuration = errors.New("backoff: durations must not be negative")
)

// Jitterer is a source of uniformly distributed random numbers in [0, n).
// *math/rand.Rand satisfies it.
type Jitterer interface {
	Int63n(n int64) int64
}

// State holds the backoff configuration together with the current delay.
// It is a value type, every adjustment returns a new State.
type State struct {
	Delay  time.Duration
	Min    time.Duration
	Factor float64
	Jitter time.Duration
	Max    time.Duration
}

// Default returns the State used when nothing else is configured.
func Default() State {
	return State{
		Delay:  time.Second,
		Min:    time.Second,
		Factor: 2.5,
		Jitter: 500 * time.Millisecond,
		Max:    60 * time.Second,
	}
}

// Validate reports whether the configuration can be used.
func (s State) Validate() error {
	if s.Min < 0 || s.Max < 0 || s.Jitter < 0 {
		return ErrNegativeDuration
	}

	if s.Min > s.Max {
		return ErrInvalidBounds
	}

	if s.Factor < 1 {
		return ErrInvalidFactor
	}

	return nil
}

// Increase returns the State after one more failed attempt.
func (s State) Increase(j Jitterer) State {
	d := s.Delay
	if d < s.Min {
		d = s.Min
	}

	d = time.Duration(float64(d) * s.Factor)

	if s.Jitter > 0 && j != nil {
		d += time.Duration(j.Int63n(int64(s.Jitter)))
	}

	// float overflow on huge delays wraps negative
	if d > s.Max || d < 0 {
		d = s.Max
	}

	s.Delay = d

	return s
}

// Reset returns the State after a successful attempt.
func (s State) Reset() State {
	s.Delay = s.Min

	return s
}

// Elapsed reports whether enough time has passed since last for another attempt.
func (s State) Elapsed(last, now time.Time) bool {
	return now.Sub(last) >= s.Delay
}
