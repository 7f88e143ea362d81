package bus

import (
	"context"
	"testing"
	"time"

	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/realtime"
)

func TestMemoryBusDeliversUntilContextEnds(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan realtime.JobEvent, 4)
	if err := b.StartForwarder(ctx, func(ev realtime.JobEvent) { got <- ev }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	job := forecast.Job{ID: "job-1", State: forecast.StateProcessing}
	if err := b.Publish(context.Background(), realtime.NewJobEvent("user-a", job, time.Now())); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case ev := <-got:
		if ev.JobID != "job-1" || ev.State != forecast.StateProcessing || ev.Type != realtime.EventJobUpdated {
			t.Fatalf("event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for {
		b.mu.RLock()
		n := len(b.subs)
		b.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = b.Close()
	if err := b.Publish(context.Background(), realtime.JobEvent{}); err == nil {
		t.Fatalf("expected publish on closed bus to fail")
	}
}
