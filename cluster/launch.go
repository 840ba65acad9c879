package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/journal"
	"github.com/ultiledger/go-benor/log"
	"github.com/ultiledger/go-benor/metrics"
	"github.com/ultiledger/go-benor/node"
	"github.com/ultiledger/go-benor/rpc"
)

// LaunchConfig describes a cluster of HTTP nodes served by one process.
type LaunchConfig struct {
	F       int
	Initial []consensus.Value
	Faulty  map[int]bool
	Host    string
	// node id listens on BasePort+id, ephemeral ports are used when zero
	BasePort int
	Run      string
	Coins    func(id int) consensus.Coin
	Journal  *journal.Journal
	Metrics  *metrics.Metrics
	// called with the base url of every node once all of them listen
	OnListening func(urls []string)
}

// Launch serves every node on its own listener, starts the consensus
// through the /start endpoint once all nodes are ready and returns
// the node states after every live node reached a terminal state.
func Launch(ctx context.Context, cfg LaunchConfig) ([]consensus.NodeState, error) {
	n := len(cfg.Initial)
	if n == 0 {
		return nil, errors.New("cluster is empty")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Run == "" {
		cfg.Run = "default"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics("benor")
	}

	listeners := make([]net.Listener, 0, n)
	closeAll := func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}
	urls := make([]string, 0, n)
	for id := 0; id < n; id++ {
		port := 0
		if cfg.BasePort > 0 {
			port = cfg.BasePort + id
		}
		ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, fmt.Sprint(port)))
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("listen for node %d: %w", id, err)
		}
		listeners = append(listeners, ln)
		urls = append(urls, "http://"+ln.Addr().String())
	}

	gate := NewGate(n)
	nodes := make([]*node.Node, 0, n)
	for id, v := range cfg.Initial {
		conf := &node.Config{
			NodeID:      id,
			Nodes:       n,
			FaultyNodes: cfg.F,
			Initial:     v,
			Faulty:      cfg.Faulty[id],
			Addr:        listeners[id].Addr().String(),
			Peers:       urls,
			Transport:   node.TransportHTTP,
			DBBackend:   "memdb",
			Run:         cfg.Run,
		}
		opts := []node.Option{
			node.WithReady(gate.Ready),
			node.WithOnReady(gate.SetReady),
			node.WithMetrics(cfg.Metrics),
		}
		if cfg.Journal != nil {
			opts = append(opts, node.WithJournal(cfg.Journal))
		}
		if cfg.Coins != nil {
			opts = append(opts, node.WithCoin(cfg.Coins(id)))
		}
		nd, err := node.New(conf, opts...)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("create node %d: %w", id, err)
		}
		nodes = append(nodes, nd)
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	for id, nd := range nodes {
		nd, ln := nd, listeners[id]
		g.Go(func() error {
			return nd.ServeListener(serveCtx, ln)
		})
	}

	var states []consensus.NodeState
	g.Go(func() error {
		defer stopServing()

		if err := gate.Wait(gctx); err != nil {
			return err
		}
		log.Infow("all nodes are ready", "nodes", n)
		if cfg.OnListening != nil {
			cfg.OnListening(urls)
		}
		for id, u := range urls {
			if cfg.Faulty[id] {
				continue
			}
			code, text, err := rpc.NewClient(u).Start(gctx)
			if err != nil {
				return fmt.Errorf("start node %d: %w", id, err)
			}
			if code != http.StatusOK {
				return fmt.Errorf("%w: node %d: %s", ErrStartFailed, id, text)
			}
		}

		var err error
		for id, nd := range nodes {
			if cfg.Faulty[id] {
				continue
			}
			select {
			case <-nd.Done():
			case <-gctx.Done():
				err = gctx.Err()
			}
			if err != nil {
				break
			}
		}
		states = make([]consensus.NodeState, n)
		for id, nd := range nodes {
			states[id] = nd.State()
		}
		return err
	})

	err := g.Wait()
	return states, err
}
