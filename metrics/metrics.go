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

// Package metrics provides Prometheus collectors for consensus nodes.
//
// Every collector carries a "node" label so that several nodes hosted
// by one process (launcher, simulation) can share a registry.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for inbound packets.
const (
	DropTerminal  = "terminal"
	DropFaulty    = "faulty"
	DropDuplicate = "duplicate"
	DropMalformed = "malformed"
)

// Metrics holds all Prometheus collectors of the consensus layer.
type Metrics struct {
	registry *prometheus.Registry

	// Engine progress
	Iterations *prometheus.CounterVec
	Iteration  *prometheus.GaugeVec
	Decisions  *prometheus.CounterVec
	CoinFlips  *prometheus.CounterVec

	// Message store
	PacketsStored  *prometheus.CounterVec
	PacketsDropped *prometheus.CounterVec

	// Transport
	SendFailures *prometheus.CounterVec
}

// NewMetrics creates collectors with the given namespace in a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Total number of consensus iterations started",
		}, []string{"node"}),
		Iteration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iteration",
			Help:      "Current iteration of the node",
		}, []string{"node"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of decisions by decided value",
		}, []string{"node", "value"}),
		CoinFlips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coin_flips_total",
			Help:      "Total number of random estimates drawn",
		}, []string{"node"}),
		PacketsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_stored_total",
			Help:      "Total number of packets recorded in the message store",
		}, []string{"node", "phase"}),
		PacketsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Total number of inbound packets discarded by reason",
		}, []string{"node", "reason"}),
		SendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Total number of failed outbound sends by target",
		}, []string{"node", "target"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The recording helpers below are nil-safe so that engines can
// run without metrics.

// RecordIteration records the start of iteration k on a node.
func (m *Metrics) RecordIteration(node int, k int) {
	if m == nil {
		return
	}
	id := strconv.Itoa(node)
	m.Iterations.WithLabelValues(id).Inc()
	m.Iteration.WithLabelValues(id).Set(float64(k))
}

// RecordDecision records the final value of a node.
func (m *Metrics) RecordDecision(node int, value string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(strconv.Itoa(node), value).Inc()
}

// RecordCoinFlip records a random estimate.
func (m *Metrics) RecordCoinFlip(node int) {
	if m == nil {
		return
	}
	m.CoinFlips.WithLabelValues(strconv.Itoa(node)).Inc()
}

// RecordStored records a packet accepted by the message store.
func (m *Metrics) RecordStored(node int, phase string) {
	if m == nil {
		return
	}
	m.PacketsStored.WithLabelValues(strconv.Itoa(node), phase).Inc()
}

// RecordDropped records a discarded inbound packet.
func (m *Metrics) RecordDropped(node int, reason string) {
	if m == nil {
		return
	}
	m.PacketsDropped.WithLabelValues(strconv.Itoa(node), reason).Inc()
}

// RecordSendFailure records a failed send to a peer.
func (m *Metrics) RecordSendFailure(node int, target int) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(strconv.Itoa(node), strconv.Itoa(target)).Inc()
}
