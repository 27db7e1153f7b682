// Package metrics provides internal Prometheus metrics for batch processing.
// This package is internal and should not be imported by external projects.
package metrics
