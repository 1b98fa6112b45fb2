// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fakenode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/go-lpc/warpnet/internal/wire"
	"github.com/go-lpc/warpnet/param"
)

// Serve answers the packets received on conn until ctx is done.
// Sync packets received on conn are handled too, so the same function
// serves the control and the sync endpoints of a node.
func (n *Node) Serve(ctx context.Context, conn net.PacketConn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, wire.HeaderSize+wire.MaxPayload+wire.TrailerSize)
	for {
		sz, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("fakenode: could not read request: %w", err)
		}

		ack, ok := n.reply(buf[:sz])
		if !ok {
			continue
		}
		raw, err := ack.MarshalBinary()
		if err != nil {
			return fmt.Errorf("fakenode: could not encode %v: %w", ack, err)
		}
		_, err = conn.WriteTo(raw, addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fakenode: could not send %v: %w", ack, err)
		}
	}
}

func (n *Node) reply(raw []byte) (wire.Packet, bool) {
	var req wire.Packet
	err := req.UnmarshalBinary(raw)
	switch {
	case err == nil:
		return n.Handle(req)
	case errors.Is(err, wire.ErrCRC) && len(raw) >= wire.HeaderSize:
		var (
			kind = wire.Kind(raw[0])
			id   = binary.BigEndian.Uint16(raw[1:])
			seq  = binary.BigEndian.Uint32(raw[3:])
		)
		if id != n.id || kind.IsAck() || kind == wire.Sync {
			return wire.Packet{}, false
		}
		n.msg.Printf("node=%d: %+v", n.id, err)
		return wire.Packet{
			Kind:    kind.Ack(),
			Node:    n.id,
			Seq:     seq,
			Payload: wire.EncodeAck(wire.StatusBadCRC, nil),
		}, true
	}
	n.msg.Printf("node=%d: dropping invalid packet: %+v", n.id, err)
	return wire.Packet{}, false
}

// Testbed runs emulated nodes on loopback UDP endpoints.
type Testbed struct {
	Regs   param.RegisterMap
	Medium *Medium

	nodes map[uint16]*Node
	addrs map[uint16]string
	syncs []string
	conns []net.PacketConn

	cancel context.CancelFunc
	nsrv   int
	errc   chan error
}

// NewTestbed starts one emulated node per id, all attached to the same
// medium. Each node listens for commands and for the sync broadcast on
// two distinct loopback UDP ports.
func NewTestbed(regs param.RegisterMap, ids []uint16, opts ...Option) (*Testbed, error) {
	ctx, cancel := context.WithCancel(context.Background())
	tb := &Testbed{
		Regs:   regs,
		Medium: NewMedium(),
		nodes:  make(map[uint16]*Node, len(ids)),
		addrs:  make(map[uint16]string, len(ids)),
		cancel: cancel,
		errc:   make(chan error, 2*len(ids)),
	}

	for _, id := range ids {
		n := New(id, regs, opts...)
		tb.Medium.Attach(n)
		tb.nodes[id] = n

		ctl, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			_ = tb.Close()
			return nil, fmt.Errorf("fakenode: could not listen for node=%d: %w", id, err)
		}
		tb.conns = append(tb.conns, ctl)
		tb.addrs[id] = ctl.LocalAddr().String()

		syn, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			_ = tb.Close()
			return nil, fmt.Errorf("fakenode: could not listen for sync of node=%d: %w", id, err)
		}
		tb.conns = append(tb.conns, syn)
		tb.syncs = append(tb.syncs, syn.LocalAddr().String())

		for _, conn := range []net.PacketConn{ctl, syn} {
			tb.nsrv++
			go func(conn net.PacketConn) {
				tb.errc <- n.Serve(ctx, conn)
			}(conn)
		}
	}
	return tb, nil
}

// Node returns the emulated node with the given id.
func (tb *Testbed) Node(id uint16) *Node { return tb.nodes[id] }

// Addr returns the control address of node id.
func (tb *Testbed) Addr(id uint16) string { return tb.addrs[id] }

// SyncAddrs returns the sync addresses of all nodes.
func (tb *Testbed) SyncAddrs() []string { return tb.syncs }

// Close stops all emulated nodes.
func (tb *Testbed) Close() error {
	tb.cancel()
	var errs []error
	for _, conn := range tb.conns {
		err := conn.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	for i := 0; i < tb.nsrv; i++ {
		errs = append(errs, <-tb.errc)
	}
	tb.nsrv = 0
	return errors.Join(errs...)
}
