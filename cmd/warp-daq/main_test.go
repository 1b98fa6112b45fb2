// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-lpc/warpnet/capfile"
	"github.com/go-lpc/warpnet/exp"
	"github.com/go-lpc/warpnet/internal/fakenode"
	"github.com/go-lpc/warpnet/internal/wire"
	"github.com/go-lpc/warpnet/node"
	"github.com/go-lpc/warpnet/param"
)

func writeJSON(t *testing.T, fname string, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("could not marshal %T: %+v", v, err)
	}
	err = os.WriteFile(fname, raw, 0644)
	if err != nil {
		t.Fatalf("could not write %q: %+v", fname, err)
	}
}

func newTestbed(t *testing.T, tmp string, opts ...fakenode.Option) (*fakenode.Testbed, string) {
	t.Helper()
	ids := []uint16{1, 2}
	tb, err := fakenode.NewTestbed(param.DefaultRegisterMap(), ids, opts...)
	if err != nil {
		t.Fatalf("could not start testbed: %+v", err)
	}
	t.Cleanup(func() { _ = tb.Close() })

	var entries []node.Entry
	for _, id := range ids {
		entries = append(entries, node.Entry{ID: id, Addr: tb.Addr(id)})
	}
	fname := filepath.Join(tmp, "testbed.json")
	writeJSON(t, fname, node.NewRegistry(entries...))
	return tb, fname
}

func newPlan(mode param.Mode) exp.Plan {
	const n = 1000
	wf := make(exp.Waveform, n)
	for i := range wf {
		phi := 2 * math.Pi * float64(i) / 32
		wf[i] = complex(0.5*math.Cos(phi), 0.5*math.Sin(phi))
	}
	return exp.Plan{
		Name:    "loopback",
		Capture: param.Capture{Delay: 100, Length: n, Mode: mode},
		Channel: 11,
		Nodes: []exp.NodePlan{
			{ID: 1, TX: []exp.RadioPlan{{Radio: 1}}},
			{ID: 2, RX: []exp.RadioPlan{{Radio: 2}}},
		},
		Waveform: wf,
	}
}

func TestRun(t *testing.T) {
	tmp := t.TempDir()
	tb, reg := newTestbed(t, tmp)

	plan := filepath.Join(tmp, "plan.json")
	writeJSON(t, plan, newPlan(param.Single))

	oname := filepath.Join(tmp, "out", "run-042.wcap")
	err := xmain([]string{
		"-registry", reg, "-plan", plan,
		"-o", oname, "-run", "42",
		"-timeout", "200ms", "-chunk", "256",
		"-metrics", "127.0.0.1:0",
	}, node.WithSyncEndpoint(tb.Medium))
	if err != nil {
		t.Fatalf("could not run warp-daq: %+v", err)
	}

	f, err := os.Open(oname)
	if err != nil {
		t.Fatalf("could not open capture file: %+v", err)
	}
	defer f.Close()

	hdr, recs, err := capfile.ReadAll(f)
	if err != nil {
		t.Fatalf("could not read capture file: %+v", err)
	}
	if got, want := hdr.Run, uint32(42); got != want {
		t.Fatalf("invalid run number: got=%d, want=%d", got, want)
	}
	if got, want := hdr.Plan, "loopback"; got != want {
		t.Fatalf("invalid plan: got=%q, want=%q", got, want)
	}
	if time.Since(hdr.Start) > time.Hour {
		t.Fatalf("invalid start time: %v", hdr.Start)
	}
	if got, want := len(recs), 1; got != want {
		t.Fatalf("invalid number of records: got=%d, want=%d", got, want)
	}
	rec := recs[0]
	if rec.Node != 2 || rec.Radio != 2 {
		t.Fatalf("invalid record: node=%d radio=%d", rec.Node, rec.Radio)
	}
	if got, want := rec.Samples.Len(), 1100; got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
	if !rec.Valid {
		t.Fatalf("invalid capture")
	}
	for _, id := range []uint16{1, 2} {
		if ops := tb.Node(id).Ops(); ops != 0 {
			t.Fatalf("node=%d left armed: %v", id, ops)
		}
	}
}

func TestRetry(t *testing.T) {
	tmp := t.TempDir()

	var lost int32
	tb, reg := newTestbed(t, tmp, fakenode.WithAckLoss(func(p wire.Packet) bool {
		if p.Kind != wire.Enable || p.Node != 2 {
			return false
		}
		ops, _ := wire.DecodeOps(p.Payload)
		if !param.OpSet(ops).Has(param.OpRxStart) {
			return false
		}
		return atomic.CompareAndSwapInt32(&lost, 0, 1)
	}))

	plan := filepath.Join(tmp, "plan.json")
	writeJSON(t, plan, newPlan(param.Single))

	oname := filepath.Join(tmp, "run-007.wcap")
	err := xmain([]string{
		"-registry", reg, "-plan", plan,
		"-o", oname, "-run", "7",
		"-timeout", "100ms", "-retries", "1",
	}, node.WithSyncEndpoint(tb.Medium))
	if err != nil {
		t.Fatalf("could not run warp-daq: %+v", err)
	}
	if atomic.LoadInt32(&lost) != 1 {
		t.Fatalf("arming acknowledgment was not lost")
	}

	f, err := os.Open(oname)
	if err != nil {
		t.Fatalf("could not open capture file: %+v", err)
	}
	defer f.Close()

	_, recs, err := capfile.ReadAll(f)
	if err != nil {
		t.Fatalf("could not read capture file: %+v", err)
	}
	if got, want := len(recs), 1; got != want {
		t.Fatalf("invalid number of records: got=%d, want=%d", got, want)
	}
	for _, id := range []uint16{1, 2} {
		if ops := tb.Node(id).Ops(); ops != 0 {
			t.Fatalf("node=%d left armed: %v", id, ops)
		}
	}
}

func TestStop(t *testing.T) {
	tmp := t.TempDir()
	tb, reg := newTestbed(t, tmp)

	plan := filepath.Join(tmp, "plan.json")
	writeJSON(t, plan, newPlan(param.Continuous))

	oname := filepath.Join(tmp, "run-001.wcap")
	err := xmain([]string{"-registry", reg, "-plan", plan, "-o", oname, "-run", "1"}, node.WithSyncEndpoint(tb.Medium))
	if err != nil {
		t.Fatalf("could not run warp-daq: %+v", err)
	}
	if !tb.Node(1).Transmitting() {
		t.Fatalf("continuous transmission not running")
	}

	err = xmain([]string{"-registry", reg, "-plan", plan, "-stop"}, node.WithSyncEndpoint(tb.Medium))
	if err != nil {
		t.Fatalf("could not stop transmission: %+v", err)
	}
	if tb.Node(1).Transmitting() {
		t.Fatalf("continuous transmission not stopped")
	}
}

func TestErrors(t *testing.T) {
	tmp := t.TempDir()
	tb, reg := newTestbed(t, tmp)

	bad := newPlan(param.Single)
	bad.Waveform[3] = complex(1.5, 0)
	invalid := filepath.Join(tmp, "invalid.json")
	writeJSON(t, invalid, bad)

	valid := filepath.Join(tmp, "valid.json")
	writeJSON(t, valid, newPlan(param.Single))

	for _, tc := range []struct {
		name string
		args []string
	}{
		{"no-plan", []string{"-registry", reg}},
		{"no-registry", []string{"-plan", valid}},
		{"missing-plan", []string{"-registry", reg, "-plan", filepath.Join(tmp, "missing.json")}},
		{"missing-registry", []string{"-registry", filepath.Join(tmp, "missing.json"), "-plan", valid}},
		{"invalid-plan", []string{"-registry", reg, "-plan", invalid, "-o", filepath.Join(tmp, "x.wcap")}},
		{"run", []string{"-registry", reg, "-plan", valid, "-run", "-1"}},
		{"flag", []string{"-not-a-flag"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := xmain(tc.args, node.WithSyncEndpoint(tb.Medium))
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	// only the session opening of the invalid plan reached the nodes.
	for _, id := range []uint16{1, 2} {
		if got, want := tb.Node(id).Requests(), 1; got != want {
			t.Fatalf("node=%d: invalid number of commands: got=%d, want=%d", id, got, want)
		}
	}
	if _, err := os.Stat(filepath.Join(tmp, "x.wcap")); err == nil {
		t.Fatalf("capture file written for an invalid plan")
	}
}
