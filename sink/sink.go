package sink

import (
	"context"

	"github.com/BaSui01/batchflow/types"
)

// Sink receives one completed Response per processed request.
type Sink interface {
	Save(ctx context.Context, resp types.Response) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, resp types.Response) error

// Save implements Sink.
func (f SinkFunc) Save(ctx context.Context, resp types.Response) error {
	return f(ctx, resp)
}
