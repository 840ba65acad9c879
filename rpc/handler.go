// Copyright 2026 The go-benor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rpc

import (
	"io"
	"net/http"

	"github.com/emicklei/go-restful"

	"github.com/ultiledger/go-benor/consensus"
	"github.com/ultiledger/go-benor/log"
	"github.com/ultiledger/go-benor/metrics"
)

const mimeText = "text/plain"

// Controller is the node surface exposed over http.
type Controller interface {
	Start() consensus.StartStatus
	Stop()
	State() consensus.NodeState
	Deliver(p consensus.Packet) error
}

// StateResponse is the wire shape of a node state. X, Decided and K
// are null for faulty nodes.
type StateResponse struct {
	Killed  bool             `json:"killed"`
	X       *consensus.Value `json:"x"`
	Decided *bool            `json:"decided"`
	K       *int             `json:"k"`
}

func NewStateResponse(st consensus.NodeState) StateResponse {
	resp := StateResponse{Killed: st.Killed}
	if st.Faulty {
		return resp
	}
	decided := st.Decided
	resp.Decided = &decided
	resp.X = st.Estimate
	resp.K = st.Iteration
	return resp
}

type handler struct {
	ctl Controller
}

// NewHandler creates the http handler of a node. The metrics are
// served on /metrics when m is not nil.
func NewHandler(ctl Controller, m *metrics.Metrics) http.Handler {
	h := &handler{ctl: ctl}

	ws := new(restful.WebService)
	ws.Path("/").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON, mimeText)
	ws.Route(ws.GET("/status").To(h.status))
	ws.Route(ws.GET("/getState").To(h.getState))
	ws.Route(ws.GET("/start").To(h.start))
	ws.Route(ws.GET("/stop").To(h.stop))
	ws.Route(ws.POST("/message").To(h.message))

	container := restful.NewContainer()
	container.Add(ws)
	if m != nil {
		container.Handle("/metrics", m.Handler())
	}
	return container
}

func writeText(resp *restful.Response, code int, msg string) {
	resp.AddHeader("Content-Type", mimeText)
	resp.WriteHeader(code)
	_, _ = io.WriteString(resp, msg)
}

func (h *handler) status(req *restful.Request, resp *restful.Response) {
	if h.ctl.State().Faulty {
		writeText(resp, http.StatusInternalServerError, "faulty")
		return
	}
	writeText(resp, http.StatusOK, "live")
}

func (h *handler) getState(req *restful.Request, resp *restful.Response) {
	if err := resp.WriteHeaderAndEntity(http.StatusOK, NewStateResponse(h.ctl.State())); err != nil {
		log.Warnw("failed to write state", "err", err)
	}
}

func (h *handler) start(req *restful.Request, resp *restful.Response) {
	switch h.ctl.Start() {
	case consensus.StartOK:
		writeText(resp, http.StatusOK, "consensus started")
	case consensus.StartNotReady:
		writeText(resp, http.StatusBadRequest, "not ready")
	default:
		writeText(resp, http.StatusConflict, "not applicable")
	}
}

func (h *handler) stop(req *restful.Request, resp *restful.Response) {
	h.ctl.Stop()
	writeText(resp, http.StatusOK, "terminated")
}

func (h *handler) message(req *restful.Request, resp *restful.Response) {
	var p consensus.Packet
	if err := req.ReadEntity(&p); err != nil {
		writeText(resp, http.StatusBadRequest, err.Error())
		return
	}
	if h.ctl.State().Killed {
		writeText(resp, http.StatusBadRequest, "node is stopped")
		return
	}
	if err := h.ctl.Deliver(p); err != nil {
		writeText(resp, http.StatusBadRequest, err.Error())
		return
	}
	writeText(resp, http.StatusOK, "message received")
}
