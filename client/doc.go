// Package client contains the remote-call collaborators consumed by the
// batch layer. The core only depends on the Invoker interface; the Anthropic
// implementation talks to the Messages API over plain HTTP.
package client
