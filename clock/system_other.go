//go:build !sam

package clock

import "time"

var epoch = time.Now()

type system struct{}

// System is the monotonic clock of the running machine.
var System Clock = system{}

func (system) Now() time.Duration {
	return time.Since(epoch)
}
