//go:build sam

package clock

import (
	"embedded/rtos"
	"time"
)

type system struct{}

// System is the monotonic clock of the running machine, backed by the
// runtime's system timer.
var System Clock = system{}

func (system) Now() time.Duration {
	return time.Duration(rtos.Nanotime())
}
