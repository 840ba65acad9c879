package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/db/memdb"
	"github.com/ultiledger/go-benor/journal"
	"github.com/ultiledger/go-benor/rpc"
)

const (
	waitFor = 10 * time.Second
	tick    = 20 * time.Millisecond
)

type testCluster struct {
	nodes     []*Node
	listeners []net.Listener
	urls      []string
	journal   *journal.Journal
}

func listen(t *testing.T) net.Listener {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func freeEndpoint(t *testing.T) string {
	ln := listen(t)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return fmt.Sprintf("tcp://127.0.0.1:%d", port)
}

func newTestCluster(t *testing.T, transport string, initial []consensus.Value, faulty map[int]bool) *testCluster {
	n := len(initial)
	tc := &testCluster{}
	for i := 0; i < n; i++ {
		ln := listen(t)
		tc.listeners = append(tc.listeners, ln)
		tc.urls = append(tc.urls, "http://"+ln.Addr().String())
	}
	var zmqPeers []string
	if transport == TransportZMQ {
		for i := 0; i < n; i++ {
			zmqPeers = append(zmqPeers, freeEndpoint(t))
		}
	}

	j, err := journal.New(memdb.New(), nil)
	require.NoError(t, err)
	tc.journal = j

	for id, v := range initial {
		conf := &Config{
			NodeID:      id,
			Nodes:       n,
			FaultyNodes: (n - 1) / 3,
			Initial:     v,
			Faulty:      faulty[id],
			Addr:        tc.listeners[id].Addr().String(),
			Peers:       tc.urls,
			Transport:   transport,
			ZMQPeers:    zmqPeers,
			DBBackend:   "memdb",
			Run:         "test",
		}
		if transport == TransportZMQ {
			conf.ZMQAddr = zmqPeers[id]
		}
		nd, err := New(conf, WithJournal(j), WithCoin(consensus.NewSeededCoin(int64(id))))
		require.NoError(t, err)
		tc.nodes = append(tc.nodes, nd)
	}
	return tc
}

func (tc *testCluster) serve(t *testing.T) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i, nd := range tc.nodes {
		wg.Add(1)
		go func(nd *Node, ln net.Listener) {
			defer wg.Done()
			assert.NoError(t, nd.ServeListener(ctx, ln))
		}(nd, tc.listeners[i])
	}
	return func() {
		cancel()
		wg.Wait()
	}
}

func runCluster(t *testing.T, transport string) {
	initial := []consensus.Value{consensus.One, consensus.One, consensus.One, consensus.One}
	tc := newTestCluster(t, transport, initial, map[int]bool{3: true})
	shutdown := tc.serve(t)
	defer shutdown()

	ctx := context.Background()
	// the default readiness predicate probes every peer
	for _, u := range tc.urls {
		c := rpc.NewClient(u)
		assert.Eventually(t, func() bool {
			code, text, err := c.Start(ctx)
			if err != nil {
				return false
			}
			return code == http.StatusOK || text == "not applicable"
		}, waitFor, tick)
	}

	for i, u := range tc.urls[:3] {
		c := rpc.NewClient(u)
		assert.Eventually(t, func() bool {
			st, err := c.State(ctx)
			return err == nil && st.Decided != nil && *st.Decided
		}, waitFor, tick, "node %d", i)
		st, err := c.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, consensus.One, *st.X)
		assert.Equal(t, 1, *st.K)
	}

	// the faulty node never takes part
	st, err := rpc.NewClient(tc.urls[3]).State(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.X)
	assert.Nil(t, st.Decided)
	assert.Nil(t, st.K)

	ds, err := tc.journal.List("test")
	require.NoError(t, err)
	require.Len(t, ds, 3)
	for _, d := range ds {
		assert.Equal(t, consensus.One, d.Value)
	}
}

func TestClusterOverHTTP(t *testing.T) {
	runCluster(t, TransportHTTP)
}

func TestClusterOverZMQ(t *testing.T) {
	runCluster(t, TransportZMQ)
}

func TestStartBeforeReady(t *testing.T) {
	ln := listen(t)
	conf := &Config{
		NodeID:      0,
		Nodes:       4,
		FaultyNodes: 1,
		Initial:     consensus.Zero,
		Addr:        ln.Addr().String(),
		// the other peers are never started
		Peers:     []string{"http://" + ln.Addr().String(), "http://127.0.0.1:1", "http://127.0.0.1:1", "http://127.0.0.1:1"},
		Transport: TransportHTTP,
		DBBackend: "memdb",
		Run:       "r",
	}
	readyCh := make(chan int, 1)
	nd, err := New(conf, WithOnReady(func(id int) { readyCh <- id }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- nd.ServeListener(ctx, ln) }()

	select {
	case id := <-readyCh:
		assert.Equal(t, 0, id)
	case <-time.After(waitFor):
		t.Fatal("ready callback not fired")
	}

	code, text, err := rpc.NewClient(conf.Peers[0]).Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "not ready", text)
	assert.Equal(t, 0, *nd.State().Iteration)

	require.NoError(t, rpc.NewClient(conf.Peers[0]).Stop(context.Background()))
	assert.True(t, nd.State().Killed)

	cancel()
	require.NoError(t, <-errCh)
	// control requests after shutdown do not block
	assert.Equal(t, consensus.StartNotApplicable, nd.Start())
	nd.Stop()
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&Config{Nodes: 3, FaultyNodes: 1})
	assert.ErrorIs(t, err, ErrUnsafeCluster)

	_, err = New(&Config{
		Nodes:     1,
		Initial:   consensus.One,
		Peers:     []string{"http://127.0.0.1:1"},
		Transport: TransportHTTP,
		DBBackend: "nosuchdb",
		Run:       "r",
	})
	assert.Error(t, err)
}
