/*
Package resilience provides a circuit breaker for operations that fail
persistently.

The broker wraps shell spawning in a Breaker: when every fork fails, for
instance because the configured shell was removed or the host is out of
file descriptors, new connections are refused with the usual diagnostic
without attempting another spawn until the cooldown passes.

# Usage

	breaker := resilience.New(resilience.Settings{
		Threshold: 5,
		Cooldown:  10 * time.Second,
		OnStateChange: func(from, to resilience.State) {
			logger.Warn("Spawn breaker changed state",
				zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	if err := breaker.Allow(); err != nil {
		return err
	}
	proc, err := spawn()
	if err != nil {
		breaker.Failure()
		return err
	}
	breaker.Success()

# States

	Closed --[threshold failures]-> Open --[cooldown]-> Half-Open --[success]-> Closed
	                                                        |
	                                                    [failure]
	                                                        |
	                                                        v
	                                                      Open

Only one trial call is allowed through while half-open.
*/
package resilience
