package realtime

import (
	"testing"
	"time"

	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

func recvEvent(t *testing.T, ch <-chan JobEvent, timeout time.Duration) JobEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for job event")
	}
	return JobEvent{}
}

func TestHubRoutesByOwnerInOrder(t *testing.T) {
	hub := NewHub(logger.Nop())
	mine := hub.Subscribe("user-a")
	theirs := hub.Subscribe("user-b")

	at := time.Now()
	hub.Broadcast(NewJobEvent("user-a", forecast.Job{ID: "j1", State: forecast.StateProcessing}, at))
	hub.Broadcast(NewJobEvent("user-a", forecast.Job{ID: "j1", State: forecast.StateCompleted}, at))

	if got := recvEvent(t, mine.Outbound, time.Second); got.State != forecast.StateProcessing {
		t.Fatalf("first: %+v", got)
	}
	if got := recvEvent(t, mine.Outbound, time.Second); got.State != forecast.StateCompleted {
		t.Fatalf("second: %+v", got)
	}
	select {
	case ev := <-theirs.Outbound:
		t.Fatalf("foreign user received %+v", ev)
	default:
	}
}

func TestHubCloseClientIsIdempotent(t *testing.T) {
	hub := NewHub(logger.Nop())
	c := hub.Subscribe("user-a")
	hub.CloseClient(c)
	hub.CloseClient(c)

	if _, ok := <-c.Outbound; ok {
		t.Fatalf("outbound should be closed")
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("client count: %d", hub.ClientCount())
	}
	// Broadcasting after close must not panic.
	hub.Broadcast(NewJobEvent("user-a", forecast.Job{ID: "j1"}, time.Now()))
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(logger.Nop())
	c := hub.Subscribe("user-a")
	for i := 0; i < clientBuffer+5; i++ {
		hub.Broadcast(NewJobEvent("user-a", forecast.Job{ID: "j1"}, time.Now()))
	}
	if len(c.Outbound) != clientBuffer {
		t.Fatalf("buffered: %d", len(c.Outbound))
	}
}
