// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-lpc/warpnet/internal/wire"
	"github.com/go-lpc/warpnet/param"
)

// RegWrite is a single register write.
type RegWrite = wire.RegWrite

// Command is a request dispatched to a single node.
// All the state changes of a command are applied atomically by the node.
type Command struct {
	Kind    wire.Kind
	Ops     param.OpSet // enable and disable commands
	Payload []byte
}

// EnableCmd returns the command enabling all the opcodes of ops.
func EnableCmd(ops param.OpSet) Command {
	return Command{Kind: wire.Enable, Ops: ops, Payload: wire.EncodeOps(uint32(ops))}
}

// DisableCmd returns the command disabling all the opcodes of ops.
func DisableCmd(ops param.OpSet) Command {
	return Command{Kind: wire.Disable, Ops: ops, Payload: wire.EncodeOps(uint32(ops))}
}

// WriteRegsCmd returns the command writing all the given registers.
func WriteRegsCmd(ws ...RegWrite) Command {
	return Command{Kind: wire.WriteReg, Payload: wire.EncodeRegWrites(ws)}
}

// ReadRegsCmd returns the command reading the given registers.
func ReadRegsCmd(addrs ...uint16) Command {
	return Command{Kind: wire.ReadReg, Payload: wire.EncodeRegs(addrs)}
}

// dispatcher sends commands to one node and waits for their
// acknowledgment. Commands to a node are serialized.
type dispatcher struct {
	mu      sync.Mutex
	node    uint16
	ep      Endpoint
	seq     uint32 // next sequence number
	unknown bool   // a command carrying seq went out without an acknowledgment
	nonce   uint32 // session nonce
	timeout time.Duration
	msg     Logger
	met     *metrics

	buf []byte
	ack wire.Packet
}

func newDispatcher(node uint16, ep Endpoint, cfg *config, met *metrics) *dispatcher {
	return &dispatcher{
		node:    node,
		ep:      ep,
		seq:     1,
		timeout: cfg.timeout,
		msg:     cfg.msg,
		met:     met,
		buf:     make([]byte, wire.HeaderSize+wire.MaxPayload+wire.TrailerSize),
	}
}

// Seq returns the sequence number of the next command.
func (d *dispatcher) Seq() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

// open resets the sequence tracking of the node for the session nonce.
func (d *dispatcher) open(ctx context.Context, nonce uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.exchange(ctx, Command{Kind: wire.Open, Payload: wire.EncodeOpen(nonce)}, 0)
	if err != nil {
		return err
	}
	d.seq = 1
	d.unknown = false
	d.nonce = nonce
	return nil
}

// send dispatches cmd with the next sequence number and returns the body
// of its acknowledgment.
// The sequence number is incremented only when the command is acknowledged.
//
// A command that timed out may still have been applied by the node, with
// only its acknowledgment lost. When the next command is then rejected as
// stale, the node has consumed the sequence number: it is counted as
// acknowledged and cmd is sent again with the next one.
func (d *dispatcher) send(ctx context.Context, cmd Command) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	body, err := d.exchange(ctx, cmd, d.seq)
	if d.unknown && errors.Is(err, ErrStale) {
		d.msg.Warnf("node=%d: seq=%d consumed by an unacknowledged command", d.node, d.seq)
		d.seq++
		d.unknown = false
		body, err = d.exchange(ctx, cmd, d.seq)
	}

	switch {
	case err == nil:
		d.seq++
		d.unknown = false
		return body, nil
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		d.unknown = true
	case errors.Is(err, ErrRejected):
		d.unknown = false
	}
	return nil, err
}

func (d *dispatcher) exchange(ctx context.Context, cmd Command, seq uint32) ([]byte, error) {
	req := wire.Packet{
		Kind:    cmd.Kind,
		Node:    d.node,
		Seq:     seq,
		Payload: cmd.Payload,
	}
	raw, err := req.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("node: could not encode %v: %w", req, err)
	}

	start := time.Now()
	deadline := start.Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	err = d.ep.SetReadDeadline(deadline)
	if err != nil {
		return nil, fmt.Errorf("node: could not set read deadline of node=%d: %w", d.node, err)
	}

	_, err = d.ep.Write(raw)
	if err != nil {
		d.met.command(d.node, cmd.Kind, outcomeError, 0)
		return nil, fmt.Errorf("node: could not send %v: %w", req, err)
	}

	for {
		n, err := d.ep.Read(d.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if err := ctxErr(ctx); err != nil {
					return nil, fmt.Errorf("node: %v interrupted: %w", req, err)
				}
				d.met.command(d.node, cmd.Kind, outcomeTimeout, 0)
				return nil, &TimeoutError{Node: d.node, Kind: cmd.Kind, Ops: cmd.Ops, Seq: seq}
			}
			d.met.command(d.node, cmd.Kind, outcomeError, 0)
			return nil, fmt.Errorf("node: could not receive acknowledgment of %v: %w", req, err)
		}

		err = d.ack.UnmarshalBinary(d.buf[:n])
		if err != nil {
			d.msg.Warnf("node=%d: dropping invalid packet: %+v", d.node, err)
			continue
		}
		if d.ack.Kind != cmd.Kind.Ack() || d.ack.Node != d.node || d.ack.Seq != seq {
			d.msg.Debugf("node=%d: dropping stray %v (waiting for %v)", d.node, d.ack, req)
			continue
		}

		st, body, err := wire.DecodeAck(d.ack.Payload)
		if err != nil {
			d.msg.Warnf("node=%d: dropping %v: %+v", d.node, d.ack, err)
			continue
		}
		if st != wire.StatusOK {
			d.met.command(d.node, cmd.Kind, outcomeRejected, 0)
			return nil, &RejectError{Node: d.node, Kind: cmd.Kind, Seq: seq, Status: st}
		}

		d.met.command(d.node, cmd.Kind, outcomeOK, time.Since(start))
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
}

// ctxErr returns the error of ctx, including a deadline that has passed
// but is not reported by ctx yet.
func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
		return context.DeadlineExceeded
	}
	return nil
}
