package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall-clock time so bucket arithmetic is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns local time. Heartbeat bucketing deliberately follows the
// host's wall clock, matching what the desktop installations report
// against.
func (systemClock) Now() time.Time {
	return time.Now()
}

func NewSystemClock() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
