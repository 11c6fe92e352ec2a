package testutil

import (
	"time"

	"github.com/zoobzio/clockz"
)

// ClockStep is the resolution at which DriveClock measures waits.
const ClockStep = 10 * time.Millisecond

// DriveClock runs fn and fires every timer it registers on clock, returning
// how far the clock had to move for each wait, in order.
//
// Each pending timer is reached by advancing in ClockStep increments, so a
// measured wait is exact for multiples of ClockStep. A timer abandoned by a
// cancelled select is fired and measured like any other.
func DriveClock(clock *clockz.FakeClock, fn func()) []time.Duration {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	var waits []time.Duration
	for {
		select {
		case <-done:
			return waits
		default:
		}

		if !clock.HasWaiters() {
			time.Sleep(100 * time.Microsecond)
			continue
		}

		// Timer sends stay queued until BlockUntilReady, so fn cannot
		// register the next wait while this one is being measured.
		start := clock.Now()
		clock.Advance(0)
		for clock.HasWaiters() {
			clock.Advance(ClockStep)
		}
		waits = append(waits, clock.Now().Sub(start))
		clock.BlockUntilReady()
	}
}
