// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"fmt"
	"time"

	"github.com/go-lpc/warpnet/internal/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a dispatched command, as recorded in metrics.
const (
	outcomeOK       = "ok"
	outcomeTimeout  = "timeout"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// metrics holds the dispatcher metrics of a session.
// A nil *metrics records nothing.
type metrics struct {
	commands *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	triggers prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}

	commands, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warpnet_commands_total",
		Help: "Total number of commands dispatched to nodes, labeled by node, kind and outcome.",
	}, []string{"node", "kind", "outcome"}))
	if err != nil {
		return nil, err
	}

	latency, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warpnet_command_duration_seconds",
		Help:    "Round-trip time of acknowledged commands, in seconds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}

	triggers, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warpnet_triggers_total",
		Help: "Total number of sync triggers broadcast.",
	}))
	if err != nil {
		return nil, err
	}

	return &metrics{
		commands: commands.(*prometheus.CounterVec),
		latency:  latency.(*prometheus.HistogramVec),
		triggers: triggers.(prometheus.Counter),
	}, nil
}

// register registers c with reg, or returns the collector already
// registered in its place by a previous session.
func register(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	err := reg.Register(c)
	if err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector, nil
		}
		return nil, fmt.Errorf("node: could not register metrics: %w", err)
	}
	return c, nil
}

func (m *metrics) command(node uint16, kind wire.Kind, outcome string, dt time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(fmt.Sprint(node), kind.String(), outcome).Inc()
	if outcome == outcomeOK {
		m.latency.WithLabelValues(kind.String()).Observe(dt.Seconds())
	}
}

func (m *metrics) trigger() {
	if m == nil {
		return
	}
	m.triggers.Inc()
}
