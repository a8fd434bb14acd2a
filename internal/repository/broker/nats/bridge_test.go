package nats

import (
	"context"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	mu     sync.Mutex
	frames []string
}

func (r *received) handle(_ context.Context, roomID string, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, roomID+" "+string(frame))
	return nil
}

func (r *received) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestBridgeDeliversAcrossInstancesOnly(t *testing.T) {
	srv := natsserver.RunRandClientPortServer()
	defer srv.Shutdown()

	ncA, err := Connect(srv.ClientURL(), "a")
	require.NoError(t, err)
	defer ncA.Close()
	ncB, err := Connect(srv.ClientURL(), "b")
	require.NoError(t, err)
	defer ncB.Close()

	a := NewBridge(ncA, "a")
	b := NewBridge(ncB, "b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gotA, gotB received
	go a.Listen(ctx, gotA.handle)
	go b.Listen(ctx, gotB.handle)

	require.Eventually(t, func() bool {
		if err := a.Publish(ctx, "room1", []byte(`{"type":"seek","time":9}`)); err != nil {
			return false
		}
		return gotB.len() > 0
	}, 2*time.Second, 20*time.Millisecond)

	gotB.mu.Lock()
	assert.Equal(t, `room1 {"type":"seek","time":9}`, gotB.frames[0])
	gotB.mu.Unlock()
	assert.Zero(t, gotA.len())
}

func TestListenStopsWithContext(t *testing.T) {
	srv := natsserver.RunRandClientPortServer()
	defer srv.Shutdown()

	nc, err := Connect(srv.ClientURL(), "a")
	require.NoError(t, err)
	defer nc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewBridge(nc, "a").Listen(ctx, (&received{}).handle) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
