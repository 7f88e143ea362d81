package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/eddykim0118/kivo/internal/realtime"
)

// MemoryBus fans events out to in-process subscribers. It backs single-node
// deployments where Redis is disabled.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]func(realtime.JobEvent)
	nextID int
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[int]func(realtime.JobEvent){}}
}

func (b *MemoryBus) Publish(_ context.Context, ev realtime.JobEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("memory job bus closed")
	}
	for _, fn := range b.subs {
		fn(ev)
	}
	return nil
}

func (b *MemoryBus) StartForwarder(ctx context.Context, onEvent func(ev realtime.JobEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("memory job bus closed")
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = onEvent
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[int]func(realtime.JobEvent){}
	return nil
}
