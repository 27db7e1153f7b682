// Package sink persists completed batch outcomes. The batch layer calls the
// Sink once per outcome when one is configured; sink failures are logged by
// the caller and never become batch failures.
package sink
