package consensus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ultiledger/go-benor/log"
	"github.com/ultiledger/go-benor/metrics"
)

// Transport carries packets to other nodes. Send must not block
// on the network and failures are swallowed by the implementation.
type Transport interface {
	Send(to int, p Packet)
}

// Config holds the construction parameters of an engine. They
// are immutable once the engine is built.
type Config struct {
	NodeID  int
	N       int
	F       int
	Initial Value
	Faulty  bool

	// Ready reports whether the cluster can start, nil means
	// always ready.
	Ready func() bool
	// OnDecide is called once from the engine goroutine after
	// the node decided.
	OnDecide func(id int, v Value, iteration int)

	// Coin defaults to a crypto/rand coin.
	Coin    Coin
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
}

type status = int32

const (
	statusIdle status = iota
	statusRunning
	statusDecided
	statusKilled
)

// Engine runs the Ben-Or iterations of a single node.
type Engine struct {
	id       int
	quorum   Quorum
	faulty   bool
	ready    func() bool
	onDecide func(int, Value, int)
	coin     Coin

	transport Transport
	store     *MessageStore

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	// lifecycle status, read without locking on delivery
	status atomic.Int32

	// mu guards the estimate and the iteration and is read
	// locked during broadcasts so that no packet leaves the
	// node after Stop returns.
	mu        sync.RWMutex
	estimate  Value
	iteration int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(cfg Config, t Transport) (*Engine, error) {
	if t == nil {
		return nil, ErrNilTransport
	}
	if cfg.N < 1 {
		return nil, fmt.Errorf("%w: node count %d", ErrInvalidConfig, cfg.N)
	}
	if cfg.F < 0 || cfg.F >= cfg.N {
		return nil, fmt.Errorf("%w: faulty budget %d for %d nodes", ErrInvalidConfig, cfg.F, cfg.N)
	}
	if cfg.NodeID < 0 || cfg.NodeID >= cfg.N {
		return nil, fmt.Errorf("%w: node id %d out of range", ErrInvalidConfig, cfg.NodeID)
	}
	if !cfg.Faulty && !cfg.Initial.Binary() {
		return nil, fmt.Errorf("%w: initial value %s", ErrInvalidConfig, cfg.Initial)
	}

	coin := cfg.Coin
	if coin == nil {
		coin = NewCryptoCoin()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		id:        cfg.NodeID,
		quorum:    NewQuorum(cfg.N, cfg.F),
		faulty:    cfg.Faulty,
		ready:     cfg.Ready,
		onDecide:  cfg.OnDecide,
		coin:      coin,
		transport: t,
		store:     NewMessageStore(),
		logger:    logger,
		metrics:   cfg.Metrics,
		estimate:  cfg.Initial,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if !e.quorum.Safe() {
		e.logger.Warnw("cluster cannot tolerate the faulty budget, termination is not guaranteed",
			"n", cfg.N, "f", cfg.F)
	}
	return e, nil
}

func (e *Engine) ID() int { return e.id }

func (e *Engine) Quorum() Quorum { return e.quorum }

// Start launches the iteration loop without blocking.
func (e *Engine) Start() StartStatus {
	if e.faulty || e.status.Load() != statusIdle {
		return StartNotApplicable
	}
	if e.ready != nil && !e.ready() {
		return StartNotReady
	}
	if !e.status.CompareAndSwap(statusIdle, statusRunning) {
		return StartNotApplicable
	}
	e.logger.Infow("consensus started", "estimate", e.estimateValue())
	go e.run()
	return StartOK
}

// Stop kills the node. It is a no-op on a decided node and safe
// to call repeatedly.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		switch e.status.Load() {
		case statusDecided, statusKilled:
			return
		case statusIdle:
			if e.status.CompareAndSwap(statusIdle, statusKilled) {
				e.store.Seal()
				e.cancel()
				close(e.done)
				e.logger.Infow("node killed before start")
				return
			}
		case statusRunning:
			if e.status.CompareAndSwap(statusRunning, statusKilled) {
				e.store.Seal()
				e.cancel()
				e.logger.Infow("node killed", "iteration", e.iteration)
				return
			}
		}
	}
}

// Deliver hands an inbound packet to the node. Packets reaching a
// decided, killed or faulty node and duplicates are dropped
// silently. Malformed packets are rejected with an error wrapping
// ErrMalformedPacket.
func (e *Engine) Deliver(p Packet) error {
	if err := p.Validate(e.quorum.N()); err != nil {
		e.metrics.RecordDropped(e.id, metrics.DropMalformed)
		return err
	}
	if e.faulty {
		e.metrics.RecordDropped(e.id, metrics.DropFaulty)
		return nil
	}
	switch e.status.Load() {
	case statusDecided, statusKilled:
		e.metrics.RecordDropped(e.id, metrics.DropTerminal)
		return nil
	}
	if !e.store.Store(p) {
		e.metrics.RecordDropped(e.id, metrics.DropDuplicate)
		return nil
	}
	e.metrics.RecordStored(e.id, p.Phase.String())
	return nil
}

// State returns a snapshot of the node.
func (e *Engine) State() NodeState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.status.Load()
	st := NodeState{
		Faulty: e.faulty,
		Killed: s == statusKilled,
	}
	if e.faulty {
		return st
	}
	estimate, iteration := e.estimate, e.iteration
	st.Decided = s == statusDecided
	st.Estimate = &estimate
	st.Iteration = &iteration
	return st
}

// Done is closed once the node reached a terminal state and its
// loop, if any, has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) estimateValue() Value {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.estimate
}

func (e *Engine) run() {
	defer close(e.done)

	response := e.quorum.Response()
	for {
		k, x, ok := e.advance()
		if !ok {
			return
		}
		e.metrics.RecordIteration(e.id, k)
		e.logger.Debugw("iteration started", "iteration", k, "estimate", x)

		if !e.broadcast(NewPacket(PhaseR, e.id, k, x)) {
			return
		}
		if err := e.store.Await(e.ctx, k, PhaseR, response); err != nil {
			return
		}
		proposal := e.quorum.Proposal(e.store.Tally(k, PhaseR))

		if !e.broadcast(NewPacket(PhaseP, e.id, k, proposal)) {
			return
		}
		if err := e.store.Await(e.ctx, k, PhaseP, response); err != nil {
			return
		}
		v, outcome := e.quorum.Resolve(e.store.Tally(k, PhaseP))
		if outcome == OutcomeFlip {
			v = e.coin.Flip()
			e.metrics.RecordCoinFlip(e.id)
			e.logger.Debugw("no binary proposal, coin flipped", "iteration", k, "value", v)
		}
		if !e.conclude(k, v, outcome == OutcomeDecide) {
			return
		}
		if outcome == OutcomeDecide {
			e.logger.Infow("value decided", "iteration", k, "value", v)
			e.metrics.RecordDecision(e.id, v.String())
			if e.onDecide != nil {
				e.onDecide(e.id, v, k)
			}
			return
		}
	}
}

// advance moves to the next iteration and returns it with the
// current estimate.
func (e *Engine) advance() (int, Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Load() != statusRunning {
		return 0, 0, false
	}
	e.iteration++
	return e.iteration, e.estimate, true
}

// conclude records the estimate for the next iteration or the
// decision. It fails if the node was killed meanwhile.
func (e *Engine) conclude(k int, v Value, decide bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Load() != statusRunning || e.iteration != k {
		return false
	}
	e.estimate = v
	if decide {
		e.status.Store(statusDecided)
		e.store.Seal()
		e.cancel()
	}
	return true
}

// broadcast sends p to every node, the local copy is stored
// directly. It reports false if the node is no longer running.
func (e *Engine) broadcast(p Packet) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.status.Load() != statusRunning {
		return false
	}
	for to := 0; to < e.quorum.N(); to++ {
		if to == e.id {
			if e.store.Store(p) {
				e.metrics.RecordStored(e.id, p.Phase.String())
			}
			continue
		}
		e.transport.Send(to, p)
	}
	return true
}
