package core

// Config holds the runtime constants used by the timer queue and the
// semaphores, all in ticks of Rate.
type Config struct {
	// Rate is the tick rate of the platform clock.
	Rate TickRate

	// LateFireSlack is how late a timer may be delivered before the
	// overrun is logged.
	LateFireSlack Ticks

	// BlockCeiling bounds how long a semaphore may stay blocked before a
	// probable deadlock is asserted.
	BlockCeiling Ticks

	// Keepalive is the wake interval programmed while no timer is armed.
	Keepalive Ticks
}

// DefaultConfig returns the default constants for the given tick rate:
// 20ms late-fire slack, 1800s block ceiling and a 60s keepalive.
func DefaultConfig(rate TickRate) Config {
	if rate == 0 {
		rate = DefaultTickRate
	}
	return Config{
		Rate:          rate,
		LateFireSlack: rate.Ms(20),
		BlockCeiling:  rate.Sec(1800),
		Keepalive:     rate.Ms(60000),
	}
}
