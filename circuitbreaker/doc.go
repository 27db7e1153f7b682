// Package circuitbreaker implements a three-state circuit breaker that
// suspends traffic to a consistently failing remote service.
//
// The breaker is a pure admission gate: callers ask CanExecute before a call
// and report the result with RecordSuccess or RecordFailure. It never wraps
// the call itself, which keeps the remote invocation outside every lock.
package circuitbreaker
