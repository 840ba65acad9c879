package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/db"
	_ "github.com/ultiledger/go-benor/db/boltdb"
	_ "github.com/ultiledger/go-benor/db/leveldb"
	_ "github.com/ultiledger/go-benor/db/memdb"
	"github.com/ultiledger/go-benor/future"
	"github.com/ultiledger/go-benor/journal"
	"github.com/ultiledger/go-benor/log"
	"github.com/ultiledger/go-benor/metrics"
	"github.com/ultiledger/go-benor/rpc"
)

const shutdownTimeout = 3 * time.Second

type transport interface {
	consensus.Transport
	io.Closer
}

// Option customizes a Node.
type Option func(*options)

type options struct {
	ready   func() bool
	onReady func(id int)
	metrics *metrics.Metrics
	journal *journal.Journal
	coin    consensus.Coin
}

// WithReady replaces the default readiness predicate, which probes
// the status endpoint of every peer.
func WithReady(ready func() bool) Option {
	return func(o *options) { o.ready = ready }
}

// WithOnReady sets the callback fired once the node listens.
func WithOnReady(f func(id int)) Option {
	return func(o *options) { o.onReady = f }
}

// WithMetrics shares a metrics registry between nodes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithJournal shares a journal between nodes, the configured
// database is not opened then.
func WithJournal(j *journal.Journal) Option {
	return func(o *options) { o.journal = j }
}

func WithCoin(c consensus.Coin) Option {
	return func(o *options) { o.coin = c }
}

// Node is the central controller of a consensus process
type Node struct {
	config *Config
	logger *zap.SugaredLogger

	database  db.Database
	journal   *journal.Journal
	metrics   *metrics.Metrics
	engine    *consensus.Engine
	transport transport
	receiver  *rpc.ZMQReceiver
	handler   http.Handler
	onReady   func(id int)

	// futures for control requests from the http handler
	startFuture chan *future.Start
	stopFuture  chan *future.Stop

	// closed once the control loop has returned
	stopped chan struct{}
}

// New creates a Node which controls all the sub components.
func New(conf *Config, opts ...Option) (*Node, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	n := &Node{
		config:      conf,
		logger:      log.Named("node", "node", conf.NodeID),
		onReady:     o.onReady,
		startFuture: make(chan *future.Start),
		stopFuture:  make(chan *future.Stop),
		stopped:     make(chan struct{}),
	}

	n.metrics = o.metrics
	if n.metrics == nil {
		n.metrics = metrics.NewMetrics("benor")
	}

	n.journal = o.journal
	if n.journal == nil {
		database, err := db.Open(conf.DBBackend, conf.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal database failed: %w", err)
		}
		j, err := journal.New(database, n.logger)
		if err != nil {
			database.Close()
			return nil, err
		}
		n.database = database
		n.journal = j
	}

	switch conf.Transport {
	case TransportZMQ:
		n.transport = rpc.NewZMQTransport(conf.NodeID, peerMap(conf.ZMQPeers), n.logger, n.metrics)
	default:
		n.transport = rpc.NewHTTPTransport(conf.NodeID, peerMap(conf.Peers), n.logger, n.metrics)
	}

	ready := o.ready
	if ready == nil {
		ready = rpc.NewProber(conf.Peers).Ready
	}

	record := n.journal.Hook(conf.Run)
	engine, err := consensus.NewEngine(consensus.Config{
		NodeID:   conf.NodeID,
		N:        conf.Nodes,
		F:        conf.FaultyNodes,
		Initial:  conf.Initial,
		Faulty:   conf.Faulty,
		Ready:    ready,
		OnDecide: record,
		Coin:     o.coin,
		Logger:   log.Named("consensus", "node", conf.NodeID),
		Metrics:  n.metrics,
	}, n.transport)
	if err != nil {
		n.close()
		return nil, err
	}
	n.engine = engine

	if conf.Transport == TransportZMQ {
		n.receiver = rpc.NewZMQReceiver(conf.ZMQAddr, engine, n.logger)
	}
	n.handler = rpc.NewHandler(n, n.metrics)
	return n, nil
}

func (n *Node) ID() int { return n.config.NodeID }

func (n *Node) Handler() http.Handler { return n.handler }

// Start asks the control loop to start the consensus.
func (n *Node) Start() consensus.StartStatus {
	f := &future.Start{}
	f.Init()
	select {
	case n.startFuture <- f:
	case <-n.stopped:
		return consensus.StartNotApplicable
	}
	if err := f.Error(); err != nil {
		n.logger.Errorf("start failed: %v", err)
		return consensus.StartNotApplicable
	}
	return f.Status
}

// Stop asks the control loop to kill the node.
func (n *Node) Stop() {
	f := &future.Stop{}
	f.Init()
	select {
	case n.stopFuture <- f:
	case <-n.stopped:
		return
	}
	if err := f.Error(); err != nil {
		n.logger.Errorf("stop failed: %v", err)
	}
}

func (n *Node) State() consensus.NodeState {
	return n.engine.State()
}

func (n *Node) Deliver(p consensus.Packet) error {
	return n.engine.Deliver(p)
}

// Done is closed once the engine reached a terminal state.
func (n *Node) Done() <-chan struct{} {
	return n.engine.Done()
}

// Serve listens on the configured address and blocks until ctx is
// done or the server fails.
func (n *Node) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.config.Addr)
	if err != nil {
		n.close()
		return err
	}
	return n.ServeListener(ctx, ln)
}

// ServeListener is like Serve with an existing listener.
func (n *Node) ServeListener(ctx context.Context, ln net.Listener) error {
	defer n.close()

	if n.receiver != nil {
		if err := n.receiver.Listen(); err != nil {
			ln.Close()
			return err
		}
	}

	srv := &http.Server{Handler: n.handler}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		n.controlLoop(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	n.logger.Infow("node is operational", "addr", ln.Addr().String(), "faulty", n.config.Faulty)
	if n.onReady != nil {
		n.onReady(n.config.NodeID)
	}
	return g.Wait()
}

// controlLoop processes the control futures from the http handler.
func (n *Node) controlLoop(ctx context.Context) {
	defer close(n.stopped)
	for {
		select {
		case sf := <-n.startFuture:
			sf.Status = n.engine.Start()
			n.logger.Debugw("start requested", "status", sf.Status)
			sf.Respond(nil)
		case sf := <-n.stopFuture:
			n.engine.Stop()
			sf.Respond(nil)
		case <-ctx.Done():
			n.logger.Info("shutdown control loop")
			return
		}
	}
}

func (n *Node) close() {
	if n.engine != nil {
		n.engine.Stop()
	}
	if n.receiver != nil {
		n.receiver.Close()
	}
	if n.transport != nil {
		n.transport.Close()
	}
	if n.database != nil {
		n.database.Close()
	}
}
