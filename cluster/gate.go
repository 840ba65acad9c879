package cluster

import (
	"context"
	"sync"

	"github.com/deckarep/golang-set"
)

// Gate tracks which nodes of a cluster signalled readiness. It opens
// once every node id in [0, n) is ready.
type Gate struct {
	n     int
	ready mapset.Set
	once  sync.Once
	open  chan struct{}
}

func NewGate(n int) *Gate {
	g := &Gate{
		n:     n,
		ready: mapset.NewSet(),
		open:  make(chan struct{}),
	}
	if n <= 0 {
		close(g.open)
	}
	return g
}

// SetReady marks node id as ready, unknown ids are ignored.
func (g *Gate) SetReady(id int) {
	if id < 0 || id >= g.n {
		return
	}
	g.ready.Add(id)
	if g.ready.Cardinality() == g.n {
		g.once.Do(func() { close(g.open) })
	}
}

// Ready reports whether every node is ready.
func (g *Gate) Ready() bool {
	select {
	case <-g.open:
		return true
	default:
		return false
	}
}

// Pending returns the number of nodes not ready yet.
func (g *Gate) Pending() int {
	return g.n - g.ready.Cardinality()
}

// Wait blocks until the gate opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
