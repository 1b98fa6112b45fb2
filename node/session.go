// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/go-lpc/warpnet/param"
)

// MaxChunkSize is the largest number of samples per transfer packet.
const MaxChunkSize = 8192

// Session holds the control endpoints of a set of nodes and the sync
// endpoint shared by all of them.
type Session struct {
	msg  Logger
	regs param.RegisterMap
	trig *Trigger

	nodes map[uint16]*Node
	ids   []uint16

	mu     sync.Mutex
	closed bool
}

// nonces holds the last session nonce handed out by this process.
var nonces = rand.Uint32()

// nextNonce returns a non-zero nonce, distinct from the ones of the
// other sessions of this process.
func nextNonce() uint32 {
	for {
		if v := atomic.AddUint32(&nonces, 1); v != 0 {
			return v
		}
	}
}

// Open connects to every node of reg and to the sync endpoint.
// The sequence tracking of each node is reset so that the first command
// of the session carries sequence number 1. Nodes ignore a repeated open
// carrying the nonce of their current session.
func Open(ctx context.Context, reg Registry, opts ...Option) (*Session, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	err := reg.Validate()
	if err != nil {
		return nil, err
	}
	if cfg.chunk <= 0 || cfg.chunk > MaxChunkSize {
		return nil, fmt.Errorf("node: invalid chunk size %d (max=%d)", cfg.chunk, MaxChunkSize)
	}
	if cfg.timeout <= 0 {
		return nil, fmt.Errorf("node: invalid timeout %v", cfg.timeout)
	}

	met, err := newMetrics(cfg.reg)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		msg:   cfg.msg,
		regs:  reg.Regs,
		nodes: make(map[uint16]*Node, len(reg.Nodes)),
		ids:   reg.IDs(),
	}
	defer func() {
		if err != nil {
			_ = sess.Close()
		}
	}()

	nonce := nextNonce()
	for _, e := range reg.Nodes {
		var ep Endpoint
		ep, err = cfg.dial(ctx, e.Addr)
		if err != nil {
			return nil, fmt.Errorf("node: could not connect to node=%d: %w", e.ID, err)
		}
		n := newNode(e, ep, reg.Regs, &cfg, met)
		sess.nodes[e.ID] = n

		err = n.disp.open(ctx, nonce)
		if err != nil {
			return nil, fmt.Errorf("node: could not open session with node=%d: %w", e.ID, err)
		}
		sess.msg.Debugf("opened session with %v", n)
	}

	w := cfg.sync
	if w == nil {
		w, err = DialSync(ctx, cfg.bcast...)
		if err != nil {
			return nil, err
		}
	}
	sess.trig = newTrigger(w, cfg.jitter, met)

	return sess, nil
}

// Close closes every endpoint of the session.
// Nodes are not disarmed. Close is idempotent.
func (sess *Session) Close() error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil
	}
	sess.closed = true

	var errs []error
	for _, id := range sess.ids {
		n, ok := sess.nodes[id]
		if !ok {
			continue
		}
		if err := n.ep.Close(); err != nil {
			errs = append(errs, fmt.Errorf("node: could not close endpoint of node=%d: %w", id, err))
		}
	}
	if sess.trig != nil {
		if err := sess.trig.close(); err != nil {
			errs = append(errs, fmt.Errorf("node: could not close sync endpoint: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Logger returns the logger of the session.
func (sess *Session) Logger() Logger { return sess.msg }

// Registers returns the register map of the session.
func (sess *Session) Registers() param.RegisterMap { return sess.regs }

// Node returns the node with the given id.
func (sess *Session) Node(id uint16) (*Node, error) {
	n, ok := sess.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%d", ErrUnknownNode, id)
	}
	return n, nil
}

// Nodes returns all nodes of the session, sorted by id.
func (sess *Session) Nodes() []*Node {
	ns := make([]*Node, len(sess.ids))
	for i, id := range sess.ids {
		ns[i] = sess.nodes[id]
	}
	return ns
}

// Jitter returns the sync jitter bound, in samples.
func (sess *Session) Jitter() int { return sess.trig.Jitter() }

// Trigger broadcasts the sync signal.
//
// Every node armed since the last trigger must have acknowledged its
// arming: otherwise Trigger fails with ErrNotArmed and nothing is sent.
// Trigger also fails with ErrNotArmed when no node was armed.
func (sess *Session) Trigger(ctx context.Context) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var run []*Node
	for _, id := range sess.ids {
		n := sess.nodes[id]
		n.mu.Lock()
		arming, armed := n.arming, n.armed
		n.mu.Unlock()
		if !arming {
			continue
		}
		if !armed {
			return fmt.Errorf("%w: node=%d did not acknowledge its arming", ErrNotArmed, id)
		}
		run = append(run, n)
	}
	if len(run) == 0 {
		return fmt.Errorf("%w: no node armed", ErrNotArmed)
	}

	err := sess.trig.fire()
	if err != nil {
		return err
	}
	for _, n := range run {
		n.triggered()
	}
	sess.msg.Debugf("sync #%d sent to %d node(s)", sess.trig.Count(), len(run))
	return nil
}

// Disarm disarms every node of the session.
// Every node is attempted even after a failure.
func (sess *Session) Disarm(ctx context.Context) error {
	var errs []error
	for _, n := range sess.Nodes() {
		errs = append(errs, n.Disarm(ctx))
	}
	return errors.Join(errs...)
}

// Teardown disarms every node of the session and resets their AGC.
// Every node is attempted even after a failure.
func (sess *Session) Teardown(ctx context.Context) error {
	var errs []error
	for _, n := range sess.Nodes() {
		errs = append(errs, n.Teardown(ctx))
	}
	return errors.Join(errs...)
}

// StopContinuous stops the continuous transmission of every node by
// disabling their TX start and TX paths.
func (sess *Session) StopContinuous(ctx context.Context) error {
	var errs []error
	for _, n := range sess.Nodes() {
		ops := param.OpTxStart
		for _, r := range n.Radios() {
			ops |= param.OpTx(r.ID)
		}
		err := n.Disable(ctx, ops)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sess.msg.Infof("stopped continuous transmission of node=%d", n.ID)
	}
	return errors.Join(errs...)
}
