// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node implements the control protocol of a fleet of radio nodes:
// sequenced command dispatch, register configuration, sample buffer
// transfers, arming and the broadcast sync trigger.
//
// A Session is opened on a Registry, the explicit description of the
// register layout and of the nodes. Nodes and radios are then resolved
// by id through the session.
package node // import "github.com/go-lpc/warpnet/node"

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-lpc/warpnet/agc"
	"github.com/go-lpc/warpnet/internal/wire"
	"github.com/go-lpc/warpnet/param"
)

// Node is a radio node controlled by a session.
type Node struct {
	ID   uint16
	Addr string

	regs  param.RegisterMap
	disp  *dispatcher
	ep    Endpoint
	msg   Logger
	chunk int
	agc   *agc.Controller

	mu      sync.Mutex
	radios  map[int]*Radio
	order   []int
	ops     param.OpSet // acknowledged enabled opcodes
	arming  bool        // arming attempted in the current run
	armed   bool        // arming acknowledged
	capture param.Capture
	channel int
}

func newNode(e Entry, ep Endpoint, regs param.RegisterMap, cfg *config, met *metrics) *Node {
	n := &Node{
		ID:     e.ID,
		Addr:   e.Addr,
		regs:   regs,
		disp:   newDispatcher(e.ID, ep, cfg, met),
		ep:     ep,
		msg:    cfg.msg,
		chunk:  cfg.chunk,
		agc:    agc.NewController(cfg.agc...),
		radios: make(map[int]*Radio),
	}
	for _, r := range e.Installed() {
		n.radios[r] = &Radio{
			ID:      r,
			node:    n,
			rxGains: agc.ResetGains,
		}
		n.order = append(n.order, r)
	}
	return n
}

func (n *Node) String() string { return fmt.Sprintf("node(%d@%s)", n.ID, n.Addr) }

// Radio returns the installed radio r.
func (n *Node) Radio(r int) (*Radio, error) {
	if err := param.ValidateRadio(r); err != nil {
		return nil, err
	}
	rad, ok := n.radios[r]
	if !ok {
		return nil, fmt.Errorf("node: node=%d has no radio %d", n.ID, r)
	}
	return rad, nil
}

// Radios returns the installed radios.
func (n *Node) Radios() []*Radio {
	rs := make([]*Radio, len(n.order))
	for i, r := range n.order {
		rs[i] = n.radios[r]
	}
	return rs
}

// AGC returns the AGC controller of the node.
func (n *Node) AGC() *agc.Controller { return n.agc }

// Seq returns the sequence number of the next command.
func (n *Node) Seq() uint32 { return n.disp.Seq() }

// Send dispatches cmd to the node and returns the body of its
// acknowledgment.
//
// Send does not retry: a missing acknowledgment yields a *TimeoutError
// and a refused command a *RejectError.
func (n *Node) Send(ctx context.Context, cmd Command) ([]byte, error) {
	return n.disp.send(ctx, cmd)
}

// WriteRegs writes all the given registers in a single command.
func (n *Node) WriteRegs(ctx context.Context, ws ...RegWrite) error {
	_, err := n.Send(ctx, WriteRegsCmd(ws...))
	if err != nil {
		return fmt.Errorf("node: could not write registers of node=%d: %w", n.ID, err)
	}
	return nil
}

// ReadRegs reads the given registers in a single command.
func (n *Node) ReadRegs(ctx context.Context, addrs ...uint16) ([]uint32, error) {
	body, err := n.Send(ctx, ReadRegsCmd(addrs...))
	if err != nil {
		return nil, fmt.Errorf("node: could not read registers of node=%d: %w", n.ID, err)
	}
	vs, err := wire.DecodeValues(body)
	if err != nil {
		return nil, fmt.Errorf("node: could not decode registers of node=%d: %w", n.ID, err)
	}
	if len(vs) != len(addrs) {
		return nil, fmt.Errorf(
			"node: node=%d returned %d register values (want=%d)",
			n.ID, len(vs), len(addrs),
		)
	}
	return vs, nil
}

func (n *Node) paramAddr(p param.Param) (uint16, error) {
	switch p {
	case param.TxDelay:
		return n.regs.TxDelay, nil
	case param.TxLength:
		return n.regs.TxLength, nil
	case param.TxMode:
		return n.regs.TxMode, nil
	case param.Channel:
		return n.regs.Channel, nil
	case param.TxLPF:
		return n.regs.TxLPF, nil
	case param.RxLPF:
		return n.regs.RxLPF, nil
	case param.AGCMode:
		return n.regs.AGCMode, nil
	case param.AGCTarget:
		return n.regs.AGCTarget, nil
	case param.AGCNoiseFloor:
		return n.regs.AGCNoiseFloor, nil
	case param.AGCThresholds:
		return n.regs.AGCThresholds, nil
	case param.AGCTrigDelay:
		return n.regs.AGCTrigDelay, nil
	case param.AGCDCOffset:
		return n.regs.AGCDCOffset, nil
	}
	return 0, fmt.Errorf("node: %v is not a node-level parameter", p)
}

// Set validates, encodes and writes a node-level parameter.
// Invalid values are rejected before any command is sent.
func (n *Node) Set(ctx context.Context, p param.Param, vs ...int) error {
	addr, err := n.paramAddr(p)
	if err != nil {
		return err
	}
	w, err := param.Encode(p, vs...)
	if err != nil {
		return err
	}
	return n.WriteRegs(ctx, RegWrite{Addr: addr, Value: w})
}

// Get reads and decodes a node-level parameter.
func (n *Node) Get(ctx context.Context, p param.Param) ([]int, error) {
	addr, err := n.paramAddr(p)
	if err != nil {
		return nil, err
	}
	vs, err := n.ReadRegs(ctx, addr)
	if err != nil {
		return nil, err
	}
	return param.Decode(p, vs[0]), nil
}

// SetCapture writes the capture window in a single command.
func (n *Node) SetCapture(ctx context.Context, c param.Capture) error {
	err := c.Validate()
	if err != nil {
		return err
	}
	err = n.WriteRegs(ctx,
		RegWrite{Addr: n.regs.TxDelay, Value: uint32(c.Delay)},
		RegWrite{Addr: n.regs.TxLength, Value: uint32(c.Length)},
		RegWrite{Addr: n.regs.TxMode, Value: uint32(c.Mode)},
	)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.capture = c
	n.mu.Unlock()
	return nil
}

// Capture returns the last capture window written to the node.
func (n *Node) Capture() param.Capture {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.capture
}

// SetChannel sets the carrier channel of all radios of the node.
func (n *Node) SetChannel(ctx context.Context, ch int) error {
	err := n.Set(ctx, param.Channel, ch)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.channel = ch
	n.mu.Unlock()
	return nil
}

// Channel returns the last carrier channel written to the node.
func (n *Node) Channel() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.channel
}

// SetLPF sets the TX and RX low-pass filter corners of the node.
func (n *Node) SetLPF(ctx context.Context, tx, rx int) error {
	wtx, err := param.Encode(param.TxLPF, tx)
	if err != nil {
		return err
	}
	wrx, err := param.Encode(param.RxLPF, rx)
	if err != nil {
		return err
	}
	return n.WriteRegs(ctx,
		RegWrite{Addr: n.regs.TxLPF, Value: wtx},
		RegWrite{Addr: n.regs.RxLPF, Value: wrx},
	)
}

func (n *Node) checkOps(ops param.OpSet) error {
	if !ops.Valid() {
		return fmt.Errorf("node: invalid op set %v", ops)
	}
	for _, rs := range [][]int{ops.TxRadios(), ops.RxRadios(), ops.TxBufs(), ops.RxBufs()} {
		for _, r := range rs {
			if _, err := n.Radio(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// Enable enables all the opcodes of ops in a single command.
func (n *Node) Enable(ctx context.Context, ops param.OpSet) error {
	err := n.checkOps(ops)
	if err != nil {
		return err
	}
	_, err = n.Send(ctx, EnableCmd(ops))
	if err != nil {
		return fmt.Errorf("node: could not enable %v on node=%d: %w", ops, n.ID, err)
	}
	n.mu.Lock()
	n.ops |= ops
	n.mu.Unlock()
	return nil
}

// Disable disables all the opcodes of ops in a single command.
func (n *Node) Disable(ctx context.Context, ops param.OpSet) error {
	if !ops.Valid() {
		return fmt.Errorf("node: invalid op set %v", ops)
	}
	_, err := n.Send(ctx, DisableCmd(ops))
	if err != nil {
		return fmt.Errorf("node: could not disable %v on node=%d: %w", ops, n.ID, err)
	}
	n.mu.Lock()
	n.ops &^= ops
	n.mu.Unlock()
	return nil
}

// Ops returns the acknowledged enabled opcodes of the node.
func (n *Node) Ops() param.OpSet {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ops
}

// Arm enables ops, which usually hold the TX/RX start opcodes, and marks
// the node as part of the next sync trigger.
// The trigger is refused until the arming is acknowledged.
func (n *Node) Arm(ctx context.Context, ops param.OpSet) error {
	n.mu.Lock()
	n.arming = true
	n.armed = false
	n.mu.Unlock()

	err := n.Enable(ctx, ops)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.armed = true
	n.mu.Unlock()
	return nil
}

// Armed reports whether the arming of the node was acknowledged.
func (n *Node) Armed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.armed
}

// Disarm disables every opcode of the node and removes it from the next
// sync trigger. Disarm is idempotent.
func (n *Node) Disarm(ctx context.Context) error {
	n.mu.Lock()
	n.arming = false
	n.armed = false
	n.mu.Unlock()

	return n.Disable(ctx, param.OpAll)
}

// triggered updates the node state after a sync trigger.
func (n *Node) triggered() {
	n.mu.Lock()
	n.arming = false
	n.armed = false
	n.ops &^= param.OpRxStart
	if n.capture.Mode == param.Single {
		n.ops &^= param.OpTxStart
	}
	n.mu.Unlock()
	n.agc.Trigger()
}

// Teardown disarms the node and resets its AGC.
// Teardown is idempotent and attempts every step even after a failure.
func (n *Node) Teardown(ctx context.Context) error {
	return errors.Join(
		n.Disarm(ctx),
		n.ResetAGC(ctx),
	)
}

// Radio is a radio of a node.
type Radio struct {
	ID   int
	node *Node

	txGains param.Gains
	rxGains param.Gains
}

func (r *Radio) String() string { return fmt.Sprintf("node(%d)/radio%d", r.node.ID, r.ID) }

// Node returns the node the radio belongs to.
func (r *Radio) Node() *Node { return r.node }

// SetTxGains validates and writes the TX gains of the radio.
func (r *Radio) SetTxGains(ctx context.Context, g param.Gains) error {
	w, err := param.EncodeTxGains(g.RF, g.BB)
	if err != nil {
		return err
	}
	err = r.node.WriteRegs(ctx, RegWrite{Addr: r.node.regs.TxGains[r.ID-1], Value: w})
	if err != nil {
		return err
	}
	r.node.mu.Lock()
	r.txGains = g
	r.node.mu.Unlock()
	return nil
}

// SetRxGains validates and writes the RX gains of the radio.
func (r *Radio) SetRxGains(ctx context.Context, g param.Gains) error {
	w, err := param.EncodeRxGains(g.RF, g.BB)
	if err != nil {
		return err
	}
	err = r.node.WriteRegs(ctx, RegWrite{Addr: r.node.regs.RxGains[r.ID-1], Value: w})
	if err != nil {
		return err
	}
	r.node.mu.Lock()
	r.rxGains = g
	r.node.mu.Unlock()
	return nil
}

// TxGains returns the last TX gains written to the radio.
func (r *Radio) TxGains() param.Gains {
	r.node.mu.Lock()
	defer r.node.mu.Unlock()
	return r.txGains
}

// RxGains returns the last RX gains written to the radio.
func (r *Radio) RxGains() param.Gains {
	r.node.mu.Lock()
	defer r.node.mu.Unlock()
	return r.rxGains
}

// TxEnabled reports whether the TX path of the radio is enabled.
func (r *Radio) TxEnabled() bool { return r.node.Ops().Has(param.OpTxRadio(r.ID)) }

// RxEnabled reports whether the RX path of the radio is enabled.
func (r *Radio) RxEnabled() bool { return r.node.Ops().Has(param.OpRxRadio(r.ID)) }

// TxBufEnabled reports whether the TX buffer of the radio is enabled.
func (r *Radio) TxBufEnabled() bool { return r.node.Ops().Has(param.OpTxBuf(r.ID)) }

// RxBufEnabled reports whether the RX buffer of the radio is enabled.
func (r *Radio) RxBufEnabled() bool { return r.node.Ops().Has(param.OpRxBuf(r.ID)) }
