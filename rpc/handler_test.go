package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/metrics"
)

func newEngine(t *testing.T, id int, faulty bool, ready func() bool) *consensus.Engine {
	e, err := consensus.NewEngine(consensus.Config{
		NodeID:  id,
		N:       4,
		F:       1,
		Initial: consensus.One,
		Faulty:  faulty,
		Ready:   ready,
	}, NewLocal())
	require.NoError(t, err)
	return e
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) (int, string) {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, string(b)
}

func TestStatus(t *testing.T) {
	code, body := do(t, NewHandler(newEngine(t, 0, false, nil), nil), "GET", "/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "live", body)

	code, body = do(t, NewHandler(newEngine(t, 1, true, nil), nil), "GET", "/status", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "faulty", body)
}

func TestGetState(t *testing.T) {
	code, body := do(t, NewHandler(newEngine(t, 0, false, nil), nil), "GET", "/getState", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"killed":false,"x":1,"decided":false,"k":0}`, body)

	code, body = do(t, NewHandler(newEngine(t, 2, true, nil), nil), "GET", "/getState", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"killed":false,"x":null,"decided":null,"k":null}`, body)
}

func TestStartStop(t *testing.T) {
	ready := false
	e := newEngine(t, 0, false, func() bool { return ready })
	h := NewHandler(e, nil)

	code, body := do(t, h, "GET", "/start", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "not ready", body)

	ready = true
	code, _ = do(t, h, "GET", "/start", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, h, "GET", "/start", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body = do(t, h, "GET", "/stop", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "terminated", body)
	assert.True(t, e.State().Killed)

	// a stopped node refuses messages
	code, _ = do(t, h, "POST", "/message", []byte(`{"phase":"R","origin":1,"iteration":1,"content":1}`))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMessage(t *testing.T) {
	e := newEngine(t, 0, false, nil)
	h := NewHandler(e, nil)

	code, body := do(t, h, "POST", "/message", []byte(`{"phase":"R","origin":1,"iteration":1,"content":1}`))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "message received", body)

	// the legacy key for the phase is understood
	code, _ = do(t, h, "POST", "/message", []byte(`{"type":"P","origin":2,"iteration":1,"content":"?"}`))
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, "POST", "/message", []byte(`{"phase":"R","origin":1,"iteration":1,"content":"?"}`))
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, h, "POST", "/message", []byte(`{"phase":"R","origin":1,"iteration":1,"content":7}`))
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, h, "POST", "/message", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.NewMetrics("benor")
	e, err := consensus.NewEngine(consensus.Config{NodeID: 0, N: 4, F: 1, Initial: consensus.Zero, Metrics: m}, NewLocal())
	require.NoError(t, err)
	h := NewHandler(e, m)

	b, _ := json.Marshal(consensus.NewPacket(consensus.PhaseR, 3, 1, consensus.Zero))
	code, _ := do(t, h, "POST", "/message", b)
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, h, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(body, `benor_packets_stored_total{node="0",phase="R"} 1`))
}
