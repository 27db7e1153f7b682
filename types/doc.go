// Package types defines the shared data model for BatchFlow: requests,
// responses, rate limit quotas, processing statistics, and structured errors.
//
// The package has no dependencies on other BatchFlow packages so that every
// layer (orchestrator, batch, client, sink) can exchange values without
// import cycles.
package types
