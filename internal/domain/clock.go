package domain

import "github.com/jonboulle/clockwork"

// clock stamps merged observations so tests can freeze capture time via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for capture timestamps. Pass nil to
// reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
