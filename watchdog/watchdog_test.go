package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestHeartbeatWithinTimeoutNeverFires(t *testing.T) {
	var fired int32
	w := New(60*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	stop := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(stop) {
		w.Heartbeat()
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	time.Sleep(10 * time.Millisecond)

	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("handler fired despite regular heartbeats")
	}
}

func TestMissingHeartbeatFiresHandler(t *testing.T) {
	fired := make(chan struct{})
	w := New(40*time.Millisecond, func() { close(fired) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("handler never fired after heartbeats stopped")
	}
}
