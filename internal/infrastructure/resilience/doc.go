/*
Package resilience guards calls to unreliable peers with a circuit breaker.

The Station uses one breaker per outbound destination. While the NUC is
unreachable, sends fail fast instead of each waiting for a dial timeout.

	Closed --[threshold failures]-> Open --[cooldown]-> Half-Open
	   ^                                                   |
	   +--------------[probe succeeds]---------------------+
	                                   [probe fails] -> Open

In the half-open state a single probe call is let through; concurrent
callers are rejected with ErrCircuitOpen until the probe finishes.
*/
package resilience
