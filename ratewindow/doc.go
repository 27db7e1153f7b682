// Package ratewindow tracks requests made and tokens used within a rolling
// one-minute window and decides admission.
//
// The window is advisory and process-local: it bounds this process's own
// call rate against a remote quota, it does not coordinate a shared rate
// across processes.
package ratewindow
