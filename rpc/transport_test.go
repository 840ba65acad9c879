package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultiledger/go-benor/consensus"
)

const waitFor = 5 * time.Second

// sink collects delivered packets.
type sink struct {
	ch chan consensus.Packet
}

func newSink() *sink { return &sink{ch: make(chan consensus.Packet, 64)} }

func (s *sink) Deliver(p consensus.Packet) error {
	s.ch <- p
	return nil
}

func (s *sink) next(t *testing.T) consensus.Packet {
	select {
	case p := <-s.ch:
		return p
	case <-time.After(waitFor):
		t.Fatal("no packet delivered")
	}
	return consensus.Packet{}
}

func TestLocal(t *testing.T) {
	l := NewLocal()
	a, b := newSink(), newSink()
	l.Register(0, a)
	l.Register(1, b)

	p := consensus.NewPacket(consensus.PhaseR, 0, 1, consensus.One)
	l.Send(1, p)
	assert.Equal(t, p, b.next(t))

	// unknown targets are ignored
	l.Send(5, p)

	l.Silence(0)
	l.Send(0, consensus.NewPacket(consensus.PhaseR, 1, 1, consensus.One))
	l.Send(1, p)
	assert.Empty(t, a.ch)
	assert.Empty(t, b.ch)
}

func TestHTTPTransportDelivers(t *testing.T) {
	s := newSink()
	srv := httptest.NewServer(NewHandler(&sinkController{s}, nil))
	defer srv.Close()

	tr := NewHTTPTransport(0, map[int]string{1: srv.URL, 2: "http://127.0.0.1:1"}, nil, nil)
	defer tr.Close()

	// unreachable and unknown peers never block the sender
	tr.Send(2, consensus.NewPacket(consensus.PhaseR, 0, 1, consensus.One))
	tr.Send(3, consensus.NewPacket(consensus.PhaseR, 0, 1, consensus.One))

	p := consensus.NewPacket(consensus.PhaseP, 0, 3, consensus.Abstain)
	tr.Send(1, p)
	assert.Equal(t, p, s.next(t))
}

// sinkController is a live node forwarding packets to a sink.
type sinkController struct{ s *sink }

func (c *sinkController) Start() consensus.StartStatus { return consensus.StartOK }
func (c *sinkController) Stop()                        {}
func (c *sinkController) State() consensus.NodeState   { return consensus.NodeState{} }
func (c *sinkController) Deliver(p consensus.Packet) error {
	return c.s.Deliver(p)
}

func freeEndpoint(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return fmt.Sprintf("tcp://127.0.0.1:%d", port)
}

func TestZMQRoundTrip(t *testing.T) {
	endpoint := freeEndpoint(t)
	s := newSink()
	r := NewZMQReceiver(endpoint, s, nil)
	require.NoError(t, r.Listen())
	defer r.Close()
	assert.ErrorIs(t, r.Listen(), ErrReceiverRunning)

	tr := NewZMQTransport(0, map[int]string{1: endpoint}, nil, nil)
	defer tr.Close()

	sent := []consensus.Packet{
		consensus.NewPacket(consensus.PhaseR, 0, 1, consensus.One),
		consensus.NewPacket(consensus.PhaseP, 0, 1, consensus.Abstain),
		{Phase: consensus.PhaseP, Origin: 0, Iteration: 2},
	}
	for _, p := range sent {
		tr.Send(1, p)
	}
	for _, p := range sent {
		assert.Equal(t, p, s.next(t))
	}
}

func TestProber(t *testing.T) {
	live := httptest.NewServer(NewHandler(newEngine(t, 0, false, nil), nil))
	defer live.Close()
	faulty := httptest.NewServer(NewHandler(newEngine(t, 1, true, nil), nil))
	defer faulty.Close()

	// faulty peers count as up
	p := NewProber([]string{live.URL, faulty.URL})
	assert.True(t, p.Ready())

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	p = NewProber([]string{live.URL, url})
	assert.False(t, p.Ready())
}

func TestClient(t *testing.T) {
	e := newEngine(t, 0, false, nil)
	srv := httptest.NewServer(NewHandler(e, nil))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	ctx := context.Background()

	code, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)

	st, err := c.State(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.X)
	assert.Equal(t, consensus.One, *st.X)
	assert.False(t, *st.Decided)

	code, text, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "consensus started", text)

	require.NoError(t, c.Stop(ctx))
	st, err = c.State(ctx)
	require.NoError(t, err)
	assert.True(t, st.Killed)
}
