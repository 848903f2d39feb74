// Copyright 2025 Certen Protocol

package lcptypes

import "math"

// Time is a nanosecond-resolution Unix timestamp. Unlike time.Time it
// is a plain integer so that addition/subtraction overflow can be
// detected explicitly rather than silently wrapping, matching spec's
// boundary-behavior requirement for Time arithmetic.
type Time struct {
	UnixNano int64
}

// Duration is a nanosecond-resolution duration, kept distinct from
// time.Duration so its arithmetic with Time stays explicit about
// overflow.
type Duration struct {
	Nanos int64
}

// NewTime constructs a Time from a Unix-nanosecond value.
func NewTime(unixNano int64) Time {
	return Time{UnixNano: unixNano}
}

// NewDuration constructs a Duration from a nanosecond count.
func NewDuration(nanos int64) Duration {
	return Duration{Nanos: nanos}
}

// Add returns t+d, failing instead of wrapping on overflow.
func (t Time) Add(d Duration) (Time, error) {
	if d.Nanos > 0 && t.UnixNano > math.MaxInt64-d.Nanos {
		return Time{}, ErrInvalidTimeResult
	}
	if d.Nanos < 0 && t.UnixNano < math.MinInt64-d.Nanos {
		return Time{}, ErrInvalidTimeResult
	}
	return Time{UnixNano: t.UnixNano + d.Nanos}, nil
}

// Sub returns the Duration between t and other (t-other), failing
// instead of wrapping on overflow.
func (t Time) Sub(other Time) (Duration, error) {
	if other.UnixNano > 0 && t.UnixNano < math.MinInt64+other.UnixNano {
		return Duration{}, ErrInvalidTimeResult
	}
	if other.UnixNano < 0 && t.UnixNano > math.MaxInt64+other.UnixNano {
		return Duration{}, ErrInvalidTimeResult
	}
	return Duration{Nanos: t.UnixNano - other.UnixNano}, nil
}

// Before reports whether t is strictly before other.
func (t Time) Before(other Time) bool {
	return t.UnixNano < other.UnixNano
}

// After reports whether t is strictly after other.
func (t Time) After(other Time) bool {
	return t.UnixNano > other.UnixNano
}
