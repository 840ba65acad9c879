package rpc

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const probeTimeout = 500 * time.Millisecond

// Prober is a readiness predicate reporting true once every peer
// answers on /status. Faulty peers answer too, with a 500. The
// result sticks once true.
type Prober struct {
	clients []*Client
	ready   atomic.Bool
}

func NewProber(peers []string) *Prober {
	clients := make([]*Client, 0, len(peers))
	for _, p := range peers {
		clients = append(clients, NewClient(p))
	}
	return &Prober{clients: clients}
}

func (p *Prober) Ready() bool {
	if p.ready.Load() {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range p.clients {
		c := c
		g.Go(func() error {
			_, err := c.Status(ctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false
	}
	p.ready.Store(true)
	return true
}
