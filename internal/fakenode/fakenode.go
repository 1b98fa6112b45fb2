// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakenode emulates radio nodes: their register file, sequence
// number tracking, sample buffers, state machines and AGC.
//
// Emulated nodes sharing a Medium see each other's transmissions when
// a sync is received.
package fakenode // import "github.com/go-lpc/warpnet/internal/fakenode"

import (
	"io"
	"log"
	"sync"

	"github.com/go-lpc/warpnet/agc"
	"github.com/go-lpc/warpnet/internal/wire"
	"github.com/go-lpc/warpnet/iq"
	"github.com/go-lpc/warpnet/param"
)

// DefaultRSSI is the RSSI seen by the radios of a node, in dBm, unless
// set with SetRSSI.
const DefaultRSSI = -60

// Node is an emulated radio node.
type Node struct {
	mu   sync.Mutex
	msg  *log.Logger
	id   uint16
	regs param.RegisterMap
	vals map[uint16]uint32
	last uint32 // last accepted sequence number
	sess uint32 // nonce of the current session
	ops  param.OpSet

	tx   [param.NumRadios][]uint32
	rx   [param.NumRadios][]uint32
	trc  [param.NumRadios][]uint16
	rssi [param.NumRadios]int

	medium *Medium
	solo   *Medium

	latency   int
	dcLatency int

	nreq  int  // number of command packets addressed to the node
	nsync int  // number of syncs observed
	txing bool // continuous transmission in progress

	drop func(p wire.Packet) bool
	lose func(p wire.Packet) bool
}

// Option configures an emulated node.
type Option func(*Node)

// WithLogger sets the logger of the node.
func WithLogger(msg *log.Logger) Option {
	return func(n *Node) {
		n.msg = msg
	}
}

// WithDrop installs a filter: requests for which drop returns true are
// never acknowledged.
func WithDrop(drop func(p wire.Packet) bool) Option {
	return func(n *Node) {
		n.drop = drop
	}
}

// WithAckLoss installs a filter: requests for which lose returns true are
// processed but their acknowledgment is never sent.
func WithAckLoss(lose func(p wire.Packet) bool) Option {
	return func(n *Node) {
		n.lose = lose
	}
}

// WithAGCLatency sets the AGC settling latencies, in samples.
func WithAGCLatency(latency, dcLatency int) Option {
	return func(n *Node) {
		n.latency = latency
		n.dcLatency = dcLatency
	}
}

// New returns an emulated node with the given id and register layout.
// The node loops back its own transmissions until attached to a Medium.
func New(id uint16, regs param.RegisterMap, opts ...Option) *Node {
	n := &Node{
		msg:       log.New(io.Discard, "fakenode: ", 0),
		id:        id,
		regs:      regs,
		vals:      make(map[uint16]uint32),
		latency:   agc.DefaultLatency,
		dcLatency: agc.DefaultDCOffsetLatency,
	}
	for i := range n.tx {
		n.tx[i] = make([]uint32, param.BufferSize)
		n.rx[i] = make([]uint32, param.BufferSize)
		n.trc[i] = make([]uint16, param.BufferSize/iq.RSSIDecimation)
		n.rssi[i] = DefaultRSSI
	}
	for _, opt := range opts {
		opt(n)
	}
	n.solo = NewMedium()
	n.solo.Attach(n)
	n.medium = n.solo
	n.resetAGC()
	return n
}

// ID returns the node id.
func (n *Node) ID() uint16 { return n.id }

// SetRSSI sets the RSSI seen by radio r, in dBm.
func (n *Node) SetRSSI(r int, dBm int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rssi[r-1] = dBm
}

// Reg returns the value of the register at addr.
func (n *Node) Reg(addr uint16) uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vals[addr]
}

// Ops returns the enabled opcodes of the node.
func (n *Node) Ops() param.OpSet {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ops
}

// LastSeq returns the last accepted sequence number.
func (n *Node) LastSeq() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// Requests returns the number of command packets addressed to the node.
func (n *Node) Requests() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nreq
}

// Syncs returns the number of sync triggers the node reacted to.
func (n *Node) Syncs() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nsync
}

// Transmitting reports whether a continuous transmission is in progress.
func (n *Node) Transmitting() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.txing
}

// TxBuffer returns a copy of the first count words of the TX buffer of radio r.
func (n *Node) TxBuffer(r, count int) []uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uint32(nil), n.tx[r-1][:count]...)
}

// Handle processes a packet and returns its acknowledgment, if any.
func (n *Node) Handle(req wire.Packet) (wire.Packet, bool) {
	if req.Kind == wire.Sync {
		n.sync(req.Seq)
		return wire.Packet{}, false
	}
	if req.Node != n.id || req.Kind.IsAck() {
		return wire.Packet{}, false
	}

	n.mu.Lock()
	n.nreq++
	drop := n.drop
	lose := n.lose
	n.mu.Unlock()

	if drop != nil && drop(req) {
		n.msg.Printf("node=%d: dropping %v", n.id, req)
		return wire.Packet{}, false
	}

	st, body := n.process(req)
	if lose != nil && lose(req) {
		n.msg.Printf("node=%d: losing acknowledgment of %v (status=%v)", n.id, req, st)
		return wire.Packet{}, false
	}
	return wire.Packet{
		Kind:    req.Kind.Ack(),
		Node:    n.id,
		Seq:     req.Seq,
		Payload: wire.EncodeAck(st, body),
	}, true
}

func (n *Node) process(req wire.Packet) (wire.Status, []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Kind == wire.Open {
		nonce, err := wire.DecodeOpen(req.Payload)
		if err != nil || nonce == 0 {
			n.msg.Printf("node=%d: bad request %v", n.id, req)
			return wire.StatusBadRequest, nil
		}
		if nonce == n.sess {
			// duplicated or delayed open of the current session.
			return wire.StatusOK, nil
		}
		n.sess = nonce
		n.last = 0
		return wire.StatusOK, nil
	}
	if req.Seq <= n.last {
		n.msg.Printf("node=%d: stale %v (last=%d)", n.id, req, n.last)
		return wire.StatusStale, nil
	}

	var (
		body []byte
		ok   bool
	)
	switch req.Kind {
	case wire.WriteReg:
		ok = n.writeRegs(req.Payload)
	case wire.ReadReg:
		body, ok = n.readRegs(req.Payload)
	case wire.Enable, wire.Disable:
		ok = n.setOps(req.Kind, req.Payload)
	case wire.BufWrite:
		ok = n.bufWrite(req.Payload)
	case wire.BufRead:
		body, ok = n.bufRead(req.Payload)
	}
	if !ok {
		n.msg.Printf("node=%d: bad request %v", n.id, req)
		return wire.StatusBadRequest, nil
	}
	n.last = req.Seq
	return wire.StatusOK, body
}

func (n *Node) writeRegs(p []byte) bool {
	ws, err := wire.DecodeRegWrites(p)
	if err != nil {
		return false
	}
	for _, w := range ws {
		if !n.regs.Has(w.Addr) {
			return false
		}
	}
	for _, w := range ws {
		n.vals[w.Addr] = w.Value
		if w.Addr == n.regs.AGCReset {
			n.resetAGC()
		}
	}
	return true
}

func (n *Node) readRegs(p []byte) ([]byte, bool) {
	addrs, err := wire.DecodeRegs(p)
	if err != nil {
		return nil, false
	}
	vs := make([]uint32, len(addrs))
	for i, addr := range addrs {
		if !n.regs.Has(addr) {
			return nil, false
		}
		vs[i] = n.vals[addr]
	}
	return wire.EncodeValues(vs), true
}

func (n *Node) setOps(kind wire.Kind, p []byte) bool {
	v, err := wire.DecodeOps(p)
	if err != nil {
		return false
	}
	ops := param.OpSet(v)
	if !ops.Valid() {
		return false
	}
	switch kind {
	case wire.Enable:
		n.ops |= ops
	case wire.Disable:
		n.ops &^= ops
		if ops.Has(param.OpTxStart) {
			n.txing = false
		}
	}
	return true
}

func (n *Node) bufWrite(p []byte) bool {
	var req wire.BufWriteReq
	err := req.UnmarshalBinary(p)
	if err != nil {
		return false
	}
	if param.ValidateRadio(int(req.Radio)) != nil {
		return false
	}
	beg, end := int(req.Offset), int(req.Offset)+int(req.Count)
	if end > param.BufferSize {
		return false
	}
	buf := n.tx[req.Radio-1]
	for i := beg; i < end; i++ {
		j := iq.WordSize * (i - beg)
		buf[i] = uint32(req.Data[j])<<24 | uint32(req.Data[j+1])<<16 | uint32(req.Data[j+2])<<8 | uint32(req.Data[j+3])
	}
	return true
}

func (n *Node) bufRead(p []byte) ([]byte, bool) {
	var req wire.BufReadReq
	err := req.UnmarshalBinary(p)
	if err != nil {
		return nil, false
	}
	if param.ValidateRadio(int(req.Radio)) != nil {
		return nil, false
	}
	beg, end := int(req.Offset), int(req.Offset)+int(req.Count)
	switch req.Buffer {
	case wire.TxBuffer, wire.RxBuffer:
		if end > param.BufferSize {
			return nil, false
		}
		buf := n.rx[req.Radio-1]
		if req.Buffer == wire.TxBuffer {
			buf = n.tx[req.Radio-1]
		}
		return wire.EncodeValues(buf[beg:end]), true
	case wire.RSSIBuffer:
		if end > len(n.trc[req.Radio-1]) {
			return nil, false
		}
		return iq.EncodeRSSI(n.trc[req.Radio-1][beg:end]), true
	}
	return nil, false
}

// resetAGC returns the AGC state of the node to its defaults.
// It must be called with n.mu held.
func (n *Node) resetAGC() {
	reset := uint32(agc.ResetGains.RF) + uint32(agc.ResetGains.BB)<<16
	n.vals[n.regs.AGCDoneAddr] = 0
	for i := 0; i < param.NumRadios; i++ {
		n.vals[n.regs.AGCRSSI[i]] = 0
		n.vals[n.regs.AGCGains[i]] = reset
		n.vals[n.regs.RxGains[i]] = reset
	}
}

func (n *Node) sync(seq uint32) {
	n.mu.Lock()
	m := n.medium
	n.mu.Unlock()
	m.sync(n, seq)
}
