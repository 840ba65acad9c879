package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/log"
	"github.com/ultiledger/go-benor/metrics"
)

const queueSize = 1024

var ErrReceiverRunning = errors.New("receiver already running")

// ZMQTransport pushes packets to the PULL socket of every peer.
// Each peer has a bounded queue drained by its own goroutine, a
// packet is dropped when the queue is full.
type ZMQTransport struct {
	id      int
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queues map[int]chan consensus.Packet
	peers  map[int]string
}

// NewZMQTransport creates a transport for node id. peers maps node
// ids to endpoints such as tcp://127.0.0.1:4000.
func NewZMQTransport(id int, peers map[int]string, l *zap.SugaredLogger, m *metrics.Metrics) *ZMQTransport {
	if l == nil {
		l = log.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ZMQTransport{
		id:      id,
		logger:  l,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[int]chan consensus.Packet),
		peers:   peers,
	}
}

func (t *ZMQTransport) Send(to int, p consensus.Packet) {
	q, err := t.queue(to)
	if err != nil {
		t.logger.Debugw("cannot send packet", "to", to, "err", err)
		return
	}
	select {
	case q <- p:
	default:
		t.metrics.RecordSendFailure(t.id, to)
		t.logger.Debugw("send queue full, packet dropped", "to", to)
	}
}

// queue returns the queue of a peer, starting its sender on first use.
func (t *ZMQTransport) queue(to int) (chan consensus.Packet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx.Err() != nil {
		return nil, t.ctx.Err()
	}
	if q, ok := t.queues[to]; ok {
		return q, nil
	}
	endpoint, ok := t.peers[to]
	if !ok {
		return nil, fmt.Errorf("no endpoint for peer %d", to)
	}
	q := make(chan consensus.Packet, queueSize)
	t.queues[to] = q
	t.wg.Add(1)
	go t.sender(to, endpoint, q)
	return q, nil
}

func (t *ZMQTransport) sender(to int, endpoint string, q chan consensus.Packet) {
	defer t.wg.Done()

	var push zmq4.Socket
	defer func() {
		if push != nil {
			_ = push.Close()
		}
	}()

	for {
		select {
		case <-t.ctx.Done():
			return
		case p := <-q:
			if push == nil {
				s := zmq4.NewPush(t.ctx)
				if err := s.Dial(endpoint); err != nil {
					_ = s.Close()
					t.metrics.RecordSendFailure(t.id, to)
					t.logger.Debugw("failed to dial peer", "to", to, "endpoint", endpoint, "err", err)
					continue
				}
				push = s
			}
			data, err := json.Marshal(p)
			if err != nil {
				continue
			}
			if err := push.Send(zmq4.NewMsg(data)); err != nil {
				t.metrics.RecordSendFailure(t.id, to)
				t.logger.Debugw("failed to push packet", "to", to, "err", err)
			}
		}
	}
}

// Close stops every sender and closes the sockets.
func (t *ZMQTransport) Close() error {
	t.mu.Lock()
	t.cancel()
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}

// ZMQReceiver pulls packets from a bound socket and hands them to
// a receiver.
type ZMQReceiver struct {
	endpoint string
	recv     Receiver
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	pull   zmq4.Socket
	cancel context.CancelFunc
	done   chan struct{}
}

func NewZMQReceiver(endpoint string, r Receiver, l *zap.SugaredLogger) *ZMQReceiver {
	if l == nil {
		l = log.Nop()
	}
	return &ZMQReceiver{endpoint: endpoint, recv: r, logger: l}
}

// Listen binds the socket and starts the receive loop.
func (r *ZMQReceiver) Listen() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pull != nil {
		return ErrReceiverRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	pull := zmq4.NewPull(ctx)
	if err := pull.Listen(r.endpoint); err != nil {
		cancel()
		_ = pull.Close()
		return fmt.Errorf("failed to bind %s: %w", r.endpoint, err)
	}
	r.pull = pull
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, pull, r.done)
	return nil
}

func (r *ZMQReceiver) loop(ctx context.Context, pull zmq4.Socket, done chan struct{}) {
	defer close(done)
	for {
		msg, err := pull.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Debugw("failed to receive", "err", err)
			continue
		}
		var p consensus.Packet
		if err := json.Unmarshal(msg.Bytes(), &p); err != nil {
			r.logger.Debugw("dropped undecodable packet", "err", err)
			continue
		}
		if err := r.recv.Deliver(p); err != nil {
			r.logger.Debugw("rejected packet", "packet", p, "err", err)
		}
	}
}

// Close stops the receive loop and closes the socket.
func (r *ZMQReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pull == nil {
		return nil
	}
	r.cancel()
	err := r.pull.Close()
	<-r.done
	r.pull = nil
	return err
}
