// Package chronos has small time helpers shared by the runtime and its tests.
package chronos

import (
	"time"
	_ "time/tzdata"
)

// Now returns the current time in [tz]: "" or "UTC" for UTC, "Local" for the
// local zone, otherwise an IANA zone name such as "America/Chicago". An
// unknown zone falls back to UTC.
func Now(tz string) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc)
}

// Dur parses a duration literal and panics if it is malformed. Meant for
// constants: chronos.Dur("5s").
func Dur(s string) time.Duration {
	t, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Millis converts a count of milliseconds, as found in configuration and child
// specs, to a [time.Duration].
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
