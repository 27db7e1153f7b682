// Package orchestrator is the admission-control facade for outbound request
// execution. It composes the per-minute rate window, the circuit breaker and
// a bounded concurrency gate behind a single acquire/release permit contract,
// and provides deterministic chunking of request batches.
//
// No lock is held across a suspension point: the breaker check, the gate
// wait and the rate reservation are three separate short critical sections.
package orchestrator
