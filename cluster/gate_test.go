package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	g := NewGate(3)
	assert.False(t, g.Ready())
	assert.Equal(t, 3, g.Pending())

	g.SetReady(0)
	g.SetReady(0)
	g.SetReady(7)
	g.SetReady(-1)
	assert.Equal(t, 2, g.Pending())

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait(context.Background()) }()

	g.SetReady(2)
	assert.False(t, g.Ready())
	g.SetReady(1)
	assert.True(t, g.Ready())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("gate did not open")
	}

	// late signals are harmless
	g.SetReady(1)
	assert.True(t, g.Ready())
}

func TestGateWaitCancel(t *testing.T) {
	g := NewGate(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, g.Wait(ctx), context.Canceled)
}
