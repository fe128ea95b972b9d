package timeout

import (
	"time"

	"github.com/uberbrodt/otp-go/chronos"
)

const (
	// configuration value meaning "wait forever"
	InfinityInt int           = -37
	Infinity    time.Duration = 1<<63 - 1
)

var Default time.Duration = chronos.Dur("5s")

// FromMillis converts a configured timeout in milliseconds. [InfinityInt] and any
// other negative value become [Infinity].
func FromMillis(ms int) time.Duration {
	if ms < 0 {
		return Infinity
	}
	return chronos.Millis(ms)
}

// IsInfinity reports whether [d] means no timeout at all.
func IsInfinity(d time.Duration) bool {
	return d < 0 || d == Infinity
}
