package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/log"
	"github.com/ultiledger/go-benor/metrics"
)

const sendTimeout = 2 * time.Second

// HTTPTransport posts packets to the /message endpoint of peers.
// Every send runs on its own goroutine and failures are only
// logged, a lost packet looks like a faulty peer to the engine.
type HTTPTransport struct {
	id      int
	peers   map[int]string
	client  *http.Client
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHTTPTransport creates a transport for node id. peers maps node
// ids to base urls such as http://localhost:3000.
func NewHTTPTransport(id int, peers map[int]string, l *zap.SugaredLogger, m *metrics.Metrics) *HTTPTransport {
	if l == nil {
		l = log.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPTransport{
		id:      id,
		peers:   peers,
		client:  &http.Client{Timeout: sendTimeout},
		logger:  l,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (t *HTTPTransport) Send(to int, p consensus.Packet) {
	base, ok := t.peers[to]
	if !ok {
		t.logger.Debugw("no address for peer", "to", to)
		return
	}
	body, err := json.Marshal(p)
	if err != nil {
		t.logger.Debugw("failed to encode packet", "packet", p, "err", err)
		return
	}
	go func() {
		if err := t.post(base+"/message", body); err != nil {
			t.metrics.RecordSendFailure(t.id, to)
			t.logger.Debugw("failed to send packet", "to", to, "err", err)
		}
	}()
}

func (t *HTTPTransport) post(url string, body []byte) error {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer answered %s", resp.Status)
	}
	return nil
}

// Close aborts the sends in flight.
func (t *HTTPTransport) Close() error {
	t.cancel()
	return nil
}
