// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"io"
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/warpnet/agc"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultTimeout is the default acknowledgment timeout.
	DefaultTimeout = 500 * time.Millisecond
	// DefaultChunkSize is the default number of samples per buffer transfer packet.
	DefaultChunkSize = 1024
	// DefaultJitter is the default sync jitter bound, in samples.
	DefaultJitter = 50
	// DefaultBroadcast is the default address of the sync broadcast.
	DefaultBroadcast = "255.255.255.255:9090"
)

// Logger is the logging interface of a session.
// It is satisfied by a github.com/go-daq/tdaq/log.MsgStream.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type config struct {
	timeout time.Duration
	chunk   int
	jitter  int
	msg     Logger
	reg     prometheus.Registerer

	dial  Dialer
	bcast []string
	sync  io.WriteCloser

	agc []agc.Option
}

func newConfig() config {
	return config{
		timeout: DefaultTimeout,
		chunk:   DefaultChunkSize,
		jitter:  DefaultJitter,
		msg:     log.NewMsgStream("warpnet", log.LvlInfo, os.Stdout),
		dial:    dialUDP,
		bcast:   []string{DefaultBroadcast},
	}
}

// Option configures a session.
type Option func(*config)

// WithTimeout sets the acknowledgment timeout of every command.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithChunkSize sets the number of samples transferred per packet.
func WithChunkSize(n int) Option {
	return func(cfg *config) {
		cfg.chunk = n
	}
}

// WithJitter sets the sync jitter bound, in samples.
func WithJitter(n int) Option {
	return func(cfg *config) {
		cfg.jitter = n
	}
}

// WithLogger sets the logger of the session.
func WithLogger(msg Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithMetrics registers the dispatcher metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *config) {
		cfg.reg = reg
	}
}

// WithDialer sets the function used to connect to the control endpoint
// of each node.
func WithDialer(dial Dialer) Option {
	return func(cfg *config) {
		cfg.dial = dial
	}
}

// WithBroadcast sets the addresses the sync packet is sent to.
// A single broadcast address is the usual setup, a list of unicast
// addresses emulates a broadcast on networks without one.
func WithBroadcast(addrs ...string) Option {
	return func(cfg *config) {
		cfg.bcast = addrs
	}
}

// WithSyncEndpoint sets the endpoint the sync packet is written to.
// It takes precedence over WithBroadcast. The session closes it.
func WithSyncEndpoint(w io.WriteCloser) Option {
	return func(cfg *config) {
		cfg.sync = w
	}
}

// WithAGC configures the AGC controllers of every node.
func WithAGC(opts ...agc.Option) Option {
	return func(cfg *config) {
		cfg.agc = append(cfg.agc, opts...)
	}
}
