package poller

import (
	"context"
	"errors"
	"sync"
)

var ErrJobAlreadyInFlight = errors.New("a forecast job is already in flight for this session")

// Guard allows at most one non-terminal job per session key.
// Acquiring again with the ref that already holds the key succeeds.
type Guard interface {
	Acquire(ctx context.Context, sessionKey, jobRef string) error
	Release(ctx context.Context, sessionKey, jobRef string) error
}

type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]string)}
}

func (g *MemoryGuard) Acquire(_ context.Context, sessionKey, jobRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.held[sessionKey]; ok && cur != jobRef {
		return ErrJobAlreadyInFlight
	}
	g.held[sessionKey] = jobRef
	return nil
}

// Release is a no-op unless jobRef is the current holder.
func (g *MemoryGuard) Release(_ context.Context, sessionKey, jobRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[sessionKey] == jobRef {
		delete(g.held, sessionKey)
	}
	return nil
}
