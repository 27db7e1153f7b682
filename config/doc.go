// Package config loads BatchFlow configuration from defaults, an optional
// YAML file and environment variable overrides, in that precedence order.
package config
