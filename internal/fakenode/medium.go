// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fakenode

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-lpc/warpnet/agc"
	"github.com/go-lpc/warpnet/internal/wire"
	"github.com/go-lpc/warpnet/iq"
	"github.com/go-lpc/warpnet/param"
)

const (
	minFix = -1 << 13
	maxFix = 1<<13 - 1
)

// Medium is the radio channel shared by a set of emulated nodes.
//
// On a sync, every node with TX start armed emits the TX buffers of its
// enabled TX radios and every node with RX start armed captures, on each
// of its enabled RX radios, the mean of the emissions on its channel
// scaled by the medium gain.
//
// A Medium is also an io.WriteCloser consuming sync packets, so that it
// can stand in for the sync broadcast of a session.
type Medium struct {
	mu    sync.Mutex
	gain  float64
	nodes []*Node

	seq  uint32         // sequence number of the last sync
	seen map[*Node]bool // nodes which received the last sync
}

// NewMedium returns an empty medium with unit gain.
func NewMedium() *Medium {
	return &Medium{gain: 1}
}

// SetGain sets the amplitude gain applied to received samples.
func (m *Medium) SetGain(g float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gain = g
}

// Attach connects the given nodes to the medium.
func (m *Medium) Attach(nodes ...*Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		n.mu.Lock()
		n.medium = m
		n.mu.Unlock()
		m.nodes = append(m.nodes, n)
	}
}

// Write consumes one sync packet.
func (m *Medium) Write(p []byte) (int, error) {
	var pkt wire.Packet
	err := pkt.UnmarshalBinary(p)
	if err != nil {
		return 0, fmt.Errorf("fakenode: could not decode sync packet: %w", err)
	}
	if pkt.Kind != wire.Sync {
		return 0, fmt.Errorf("fakenode: unexpected %v on sync endpoint", pkt)
	}
	m.sync(nil, pkt.Seq)
	return len(p), nil
}

// Close implements io.Closer.
func (m *Medium) Close() error { return nil }

type emitter struct {
	channel uint32
	delay   int
	length  int
	mode    param.Mode
	buf     []uint32
}

// at returns the fixed-point IQ pair emitted at sample k.
func (e emitter) at(k int) (i, q int, ok bool) {
	j := k - e.delay
	if j < 0 || e.length == 0 {
		return 0, 0, false
	}
	switch e.mode {
	case param.Continuous:
		j %= e.length
	default:
		if j >= e.length {
			return 0, 0, false
		}
	}
	w := e.buf[j]
	return int(int16(uint16(w>>16))) >> 2, int(int16(uint16(w))) >> 2, true
}

// sync runs one capture for the sync seq received by node from.
// A sync broadcast to several nodes sharing the medium is only run once.
// A nil from is the medium itself.
func (m *Medium) sync(from *Node, seq uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from != nil && m.seq == seq && m.seen != nil && !m.seen[from] {
		m.seen[from] = true
		return
	}
	m.seq = seq
	m.seen = map[*Node]bool{from: true}

	var txs []emitter
	for _, n := range m.nodes {
		n.mu.Lock()
		txs = append(txs, n.emitters()...)
		n.mu.Unlock()
	}
	for _, n := range m.nodes {
		n.mu.Lock()
		n.receive(txs, m.gain)
		n.mu.Unlock()
	}
}

// emitters returns the emissions of the node.
// It must be called with n.mu held.
func (n *Node) emitters() []emitter {
	if !n.ops.Has(param.OpTxStart) {
		return nil
	}
	var (
		delay  = int(n.vals[n.regs.TxDelay])
		length = int(n.vals[n.regs.TxLength])
		txs    []emitter
	)
	if length > param.BufferSize {
		length = param.BufferSize
	}
	for r := 1; r <= param.NumRadios; r++ {
		if !n.ops.Has(param.OpTx(r)) {
			continue
		}
		txs = append(txs, emitter{
			channel: n.vals[n.regs.Channel],
			delay:   delay,
			length:  length,
			mode:    param.Mode(n.vals[n.regs.TxMode]),
			buf:     append([]uint32(nil), n.tx[r-1][:length]...),
		})
	}
	return txs
}

// receive captures the emissions txs and updates the state machines of
// the node.
// It must be called with n.mu held.
func (n *Node) receive(txs []emitter, gain float64) {
	n.nsync++

	if n.ops.Has(param.OpRxStart) {
		var (
			ch  = n.vals[n.regs.Channel]
			src []emitter
		)
		for _, e := range txs {
			if e.channel == ch {
				src = append(src, e)
			}
		}
		for r := 1; r <= param.NumRadios; r++ {
			if !n.ops.Has(param.OpRx(r)) {
				continue
			}
			n.capture(r, src, gain)
		}
		if n.vals[n.regs.AGCMode] == 1 {
			n.settle()
		}
	}

	if n.ops.Has(param.OpTxStart) {
		switch param.Mode(n.vals[n.regs.TxMode]) {
		case param.Continuous:
			n.txing = true
		default:
			n.ops &^= param.OpTxStart
		}
	}
	n.ops &^= param.OpRxStart
}

func (n *Node) capture(r int, src []emitter, gain float64) {
	rx := n.rx[r-1]
	for k := range rx {
		if len(src) == 0 {
			rx[k] = 0
			continue
		}
		var si, sq int
		for _, e := range src {
			i, q, ok := e.at(k)
			if !ok {
				continue
			}
			si += i
			sq += q
		}
		scale := gain / float64(len(src))
		i, otrI := clamp(math.Round(float64(si) * scale))
		q, otrQ := clamp(math.Round(float64(sq) * scale))
		rx[k] = iq.Pack(i, q, otrI, otrQ)
	}

	v := uint16((n.rssi[r-1] + 256) * 2)
	for k := range n.trc[r-1] {
		n.trc[r-1][k] = v
	}
}

func clamp(v float64) (int, bool) {
	switch {
	case v < minFix:
		return minFix, true
	case v > maxFix:
		return maxFix, true
	}
	return int(v), false
}

// settle emulates the AGC of the node.
func (n *Node) settle() {
	cfg := agc.Config{
		Target:     param.DecodeDBm(n.vals[n.regs.AGCTarget]),
		NoiseFloor: param.DecodeDBm(n.vals[n.regs.AGCNoiseFloor]),
		Thresholds: param.DecodeThresholds(n.vals[n.regs.AGCThresholds]),
		TrigDelay:  int(n.vals[n.regs.AGCTrigDelay]),
		DCOffset:   n.vals[n.regs.AGCDCOffset] == 1,
	}
	idx := cfg.TrigDelay + n.latency
	if cfg.DCOffset {
		idx += n.dcLatency
	}
	n.vals[n.regs.AGCDoneAddr] = uint32(idx)

	for r := 1; r <= param.NumRadios; r++ {
		if !n.ops.Has(param.OpRx(r)) {
			continue
		}
		rssi := n.rssi[r-1]
		g, _ := agc.Settle(cfg, rssi)
		w := uint32(g.RF) + uint32(g.BB)<<16
		n.vals[n.regs.AGCRSSI[r-1]] = param.EncodeDBm(rssi)
		n.vals[n.regs.AGCGains[r-1]] = w
		n.vals[n.regs.RxGains[r-1]] = w
	}
}
