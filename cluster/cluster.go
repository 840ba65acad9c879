// Package cluster hosts several consensus nodes in one process, either
// wired in memory or each behind its own HTTP listener.
package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/log"
	"github.com/ultiledger/go-benor/metrics"
	"github.com/ultiledger/go-benor/rpc"
)

var (
	ErrNoDecision   = errors.New("no node decided")
	ErrDisagreement = errors.New("nodes decided different values")
	ErrStartFailed  = errors.New("node refused to start")
)

// Config describes an in-memory cluster.
type Config struct {
	F int
	// initial estimate of every node, its length is the cluster size
	Initial []consensus.Value
	Faulty  map[int]bool
	// coin of node id, crypto coins are used when nil
	Coins    func(id int) consensus.Coin
	Metrics  *metrics.Metrics
	OnDecide func(id int, v consensus.Value, iteration int)
}

// SeededCoins gives node id a deterministic coin seeded with seed+id.
func SeededCoins(seed int64) func(id int) consensus.Coin {
	return func(id int) consensus.Coin {
		return consensus.NewSeededCoin(seed + int64(id))
	}
}

// Cluster is an explicit registry of engines exchanging packets
// through an in-memory transport.
type Cluster struct {
	n       int
	local   *rpc.Local
	gate    *Gate
	engines map[int]*consensus.Engine
	faulty  map[int]bool
}

func New(cfg Config) (*Cluster, error) {
	n := len(cfg.Initial)
	if n == 0 {
		return nil, errors.New("cluster is empty")
	}
	c := &Cluster{
		n:       n,
		local:   rpc.NewLocal(),
		gate:    NewGate(n),
		engines: make(map[int]*consensus.Engine, n),
		faulty:  make(map[int]bool),
	}
	for id, v := range cfg.Initial {
		var coin consensus.Coin
		if cfg.Coins != nil {
			coin = cfg.Coins(id)
		}
		e, err := consensus.NewEngine(consensus.Config{
			NodeID:   id,
			N:        n,
			F:        cfg.F,
			Initial:  v,
			Faulty:   cfg.Faulty[id],
			Ready:    c.gate.Ready,
			OnDecide: cfg.OnDecide,
			Coin:     coin,
			Logger:   log.Named("consensus", "node", id),
			Metrics:  cfg.Metrics,
		}, c.local)
		if err != nil {
			return nil, fmt.Errorf("create node %d: %w", id, err)
		}
		c.engines[id] = e
		c.local.Register(id, e)
		if cfg.Faulty[id] {
			c.faulty[id] = true
			c.local.Silence(id)
		}
	}
	return c, nil
}

func (c *Cluster) Size() int { return c.n }

func (c *Cluster) Engine(id int) (*consensus.Engine, bool) {
	e, ok := c.engines[id]
	return e, ok
}

// Run starts every live node and waits until all of them reached a
// terminal state. When ctx is done first the nodes are stopped and
// the error of ctx is returned together with the states.
func (c *Cluster) Run(ctx context.Context) ([]consensus.NodeState, error) {
	for id := 0; id < c.n; id++ {
		c.gate.SetReady(id)
	}
	for id := 0; id < c.n; id++ {
		if c.faulty[id] {
			continue
		}
		if st := c.engines[id].Start(); st != consensus.StartOK {
			c.Stop()
			return c.States(), fmt.Errorf("%w: node %d: %s", ErrStartFailed, id, st)
		}
	}

	for id := 0; id < c.n; id++ {
		if c.faulty[id] {
			continue
		}
		select {
		case <-c.engines[id].Done():
		case <-ctx.Done():
			c.Stop()
			return c.States(), ctx.Err()
		}
	}
	return c.States(), nil
}

// Stop kills every node which has not decided yet.
func (c *Cluster) Stop() {
	for _, e := range c.engines {
		e.Stop()
	}
}

// States returns a snapshot of every node indexed by node id.
func (c *Cluster) States() []consensus.NodeState {
	states := make([]consensus.NodeState, c.n)
	for id, e := range c.engines {
		states[id] = e.State()
	}
	return states
}

// Agreement returns the value decided by the cluster. Undecided nodes
// are ignored.
func Agreement(states []consensus.NodeState) (consensus.Value, error) {
	decided := false
	var value consensus.Value
	for id, st := range states {
		if st.Faulty || !st.Decided || st.Estimate == nil {
			continue
		}
		if !decided {
			decided, value = true, *st.Estimate
			continue
		}
		if *st.Estimate != value {
			return consensus.Abstain, fmt.Errorf("%w: node %d decided %s, expected %s", ErrDisagreement, id, *st.Estimate, value)
		}
	}
	if !decided {
		return consensus.Abstain, ErrNoDecision
	}
	return value, nil
}

// Undecided lists the live nodes without a decision.
func Undecided(states []consensus.NodeState) []int {
	var ids []int
	for id, st := range states {
		if !st.Faulty && !st.Decided {
			ids = append(ids, id)
		}
	}
	return ids
}
