// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"context"
	"fmt"

	"github.com/go-lpc/warpnet/agc"
	"github.com/go-lpc/warpnet/param"
)

// ConfigureAGC arms the AGC of the node with cfg, in a single
// configuration burst.
// It fails with agc.ErrNotReset if the AGC was not reset since the last
// capture.
func (n *Node) ConfigureAGC(ctx context.Context, cfg agc.Config) error {
	err := n.agc.Configure(cfg)
	if err != nil {
		return err
	}

	ws, err := agcWrites(n.regs, cfg)
	if err != nil {
		n.agc.Reset()
		return err
	}
	err = n.WriteRegs(ctx, ws...)
	if err != nil {
		n.agc.Reset()
		return fmt.Errorf("node: could not configure AGC of node=%d: %w", n.ID, err)
	}
	return nil
}

func agcWrites(regs param.RegisterMap, cfg agc.Config) ([]RegWrite, error) {
	dco := 0
	if cfg.DCOffset {
		dco = 1
	}
	ws := make([]RegWrite, 0, 6)
	for _, v := range []struct {
		addr uint16
		p    param.Param
		vs   []int
	}{
		{regs.AGCMode, param.AGCMode, []int{1}},
		{regs.AGCTarget, param.AGCTarget, []int{cfg.Target}},
		{regs.AGCNoiseFloor, param.AGCNoiseFloor, []int{cfg.NoiseFloor}},
		{regs.AGCThresholds, param.AGCThresholds, []int{cfg.Thresholds.Low, cfg.Thresholds.Mid, cfg.Thresholds.High}},
		{regs.AGCTrigDelay, param.AGCTrigDelay, []int{cfg.TrigDelay}},
		{regs.AGCDCOffset, param.AGCDCOffset, []int{dco}},
	} {
		w, err := param.Encode(v.p, v.vs...)
		if err != nil {
			return nil, err
		}
		ws = append(ws, RegWrite{Addr: v.addr, Value: w})
	}
	return ws, nil
}

// ReadAGC reads back the settled AGC state of the given radios.
// It is only meaningful after a capture.
func (n *Node) ReadAGC(ctx context.Context, radios ...int) (agc.Result, error) {
	addrs := []uint16{n.regs.AGCDoneAddr}
	for _, r := range radios {
		if _, err := n.Radio(r); err != nil {
			return agc.Result{}, err
		}
		addrs = append(addrs, n.regs.AGCRSSI[r-1], n.regs.AGCGains[r-1])
	}

	vs, err := n.ReadRegs(ctx, addrs...)
	if err != nil {
		return agc.Result{}, fmt.Errorf("node: could not read AGC state of node=%d: %w", n.ID, err)
	}

	rb := agc.Readback{SettleIndex: int(vs[0])}
	for i, r := range radios {
		rb.RSSI[r-1] = param.DecodeDBm(vs[1+2*i])
		rf, bb := param.DecodeGains(vs[2+2*i])
		rb.Gains[r-1] = param.Gains{RF: rf, BB: bb}
	}

	res, err := n.agc.Finish(rb, radios)
	if err != nil {
		return res, fmt.Errorf("node: could not interpret AGC state of node=%d: %w", n.ID, err)
	}
	for _, v := range res.Radios {
		if !v.Settled {
			n.msg.Warnf("node=%d: AGC %v", n.ID, v)
		}
	}
	return res, nil
}

// ResetAGC returns the AGC gains to their default values.
// It must be called after a capture before the AGC is configured again.
// ResetAGC is idempotent.
func (n *Node) ResetAGC(ctx context.Context) error {
	err := n.WriteRegs(ctx,
		RegWrite{Addr: n.regs.AGCReset, Value: 1},
		RegWrite{Addr: n.regs.AGCMode, Value: 0},
	)
	if err != nil {
		return fmt.Errorf("node: could not reset AGC of node=%d: %w", n.ID, err)
	}
	n.agc.Reset()

	n.mu.Lock()
	for _, r := range n.radios {
		r.rxGains = agc.ResetGains
	}
	n.mu.Unlock()
	return nil
}
