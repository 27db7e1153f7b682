// Package batch processes ordered lists of requests against a rate-limited
// remote service. Requests are chunked, each chunk fans out concurrently
// under the orchestrator's admission control, and outcomes come back in
// submission order with consistent statistics.
//
// ProcessBatch never fails for ordinary per-request errors: every submitted
// request yields exactly one Response, failed ones included. Callers that
// need retry resubmit failed outcomes themselves.
package batch
