package bus

import (
	"context"

	"github.com/eddykim0118/kivo/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, ev realtime.JobEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.JobEvent)) error
	Close() error
}
