// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/warpnet/capfile"
	"github.com/go-lpc/warpnet/exp"
	"github.com/go-lpc/warpnet/internal/fakenode"
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

func newPlan(mode param.Mode) exp.Plan {
	const n = 512
	wf := make(exp.Waveform, n)
	for i := range wf {
		phi := 2 * math.Pi * float64(i) / 16
		wf[i] = complex(0.25*math.Cos(phi), 0.25*math.Sin(phi))
	}
	return exp.Plan{
		Name:    "rc",
		Capture: param.Capture{Delay: 64, Length: n, Mode: mode},
		Channel: 1,
		Nodes: []exp.NodePlan{
			{ID: 1, TX: []exp.RadioPlan{{Radio: 3}}},
			{ID: 2, RX: []exp.RadioPlan{{Radio: 1}}},
		},
		Waveform: wf,
	}
}

type testbed struct {
	*fakenode.Testbed
	plan string
	reg  string
}

func newTestbed(t *testing.T, mode param.Mode) testbed {
	t.Helper()
	ids := []uint16{1, 2}
	tb, err := fakenode.NewTestbed(param.DefaultRegisterMap(), ids)
	if err != nil {
		t.Fatalf("could not start testbed: %+v", err)
	}
	t.Cleanup(func() { _ = tb.Close() })

	var entries []node.Entry
	for _, id := range ids {
		entries = append(entries, node.Entry{ID: id, Addr: tb.Addr(id)})
	}

	tmp := t.TempDir()
	v := testbed{
		Testbed: tb,
		plan:    filepath.Join(tmp, "plan.json"),
		reg:     filepath.Join(tmp, "testbed.json"),
	}
	writeJSON(t, v.reg, node.NewRegistry(entries...))
	writeJSON(t, v.plan, newPlan(mode))
	return v
}

func newContext(ctx context.Context) tdaq.Context {
	return tdaq.Context{
		Ctx: ctx,
		Msg: log.NewMsgStream("warp-rc", log.LvlError, io.Discard),
	}
}

func TestRunControl(t *testing.T) {
	tb := newTestbed(t, param.Single)
	dev := newRC(tb.plan, tb.reg, 10*time.Millisecond,
		node.WithSyncEndpoint(tb.Medium),
		node.WithTimeout(200*time.Millisecond),
	)

	var (
		ctx  = newContext(context.Background())
		resp tdaq.Frame
	)

	for _, tc := range []struct {
		name string
		f    func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error
	}{
		{"/config", dev.OnConfig},
		{"/init", dev.OnInit},
	} {
		err := tc.f(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run %s: %+v", tc.name, err)
		}
	}

	err := dev.OnInit(ctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error re-opening the session")
	}

	body := new(bytes.Buffer)
	enc := tdaq.NewEncoder(body)
	enc.WriteU32(7)
	err = dev.OnStart(ctx, &resp, tdaq.Frame{Body: body.Bytes()})
	if err != nil {
		t.Fatalf("could not run /start: %+v", err)
	}

	rctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- dev.run(newContext(rctx))
	}()

	for i := 0; i < 2; i++ {
		var frame tdaq.Frame
		err = dev.captures(newContext(rctx), &frame)
		if err != nil {
			t.Fatalf("could not retrieve captures: %+v", err)
		}
		hdr, recs, err := capfile.ReadAll(bytes.NewReader(frame.Body))
		if err != nil {
			t.Fatalf("could not decode captures: %+v", err)
		}
		if got, want := hdr.Run, uint32(7); got != want {
			t.Fatalf("invalid run number: got=%d, want=%d", got, want)
		}
		if got, want := len(recs), 1; got != want {
			t.Fatalf("invalid number of records: got=%d, want=%d", got, want)
		}
		if rec := recs[0]; rec.Node != 2 || rec.Radio != 1 || !rec.Valid {
			t.Fatalf("invalid record: node=%d radio=%d valid=%v", rec.Node, rec.Radio, rec.Valid)
		}
	}

	cancel()
	err = <-errc
	if err != nil {
		t.Fatalf("could not run: %+v", err)
	}

	for _, tc := range []struct {
		name string
		f    func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error
	}{
		{"/stop", dev.OnStop},
		{"/reset", dev.OnReset},
		{"/quit", dev.OnQuit},
	} {
		err := tc.f(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run %s: %+v", tc.name, err)
		}
	}

	for _, id := range []uint16{1, 2} {
		if ops := tb.Node(id).Ops(); ops != 0 {
			t.Fatalf("node=%d left armed: %v", id, ops)
		}
	}
}

func TestContinuous(t *testing.T) {
	tb := newTestbed(t, param.Continuous)
	dev := newRC(tb.plan, tb.reg, time.Millisecond, node.WithSyncEndpoint(tb.Medium))

	var (
		ctx  = newContext(context.Background())
		resp tdaq.Frame
	)
	for _, f := range []func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error{
		dev.OnConfig, dev.OnInit, dev.OnStart,
	} {
		err := f(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not prepare run: %+v", err)
		}
	}

	rctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- dev.run(newContext(rctx))
	}()

	var frame tdaq.Frame
	err := dev.captures(newContext(context.Background()), &frame)
	if err != nil {
		t.Fatalf("could not retrieve captures: %+v", err)
	}
	if !tb.Node(1).Transmitting() {
		t.Fatalf("continuous transmission not running")
	}

	cancel()
	err = <-errc
	if err != nil {
		t.Fatalf("could not run: %+v", err)
	}

	err = dev.OnStop(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /stop: %+v", err)
	}
	if tb.Node(1).Transmitting() {
		t.Fatalf("continuous transmission not stopped")
	}

	err = dev.OnQuit(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /quit: %+v", err)
	}
}

func TestRunControlErrors(t *testing.T) {
	tb := newTestbed(t, param.Single)

	var (
		ctx  = newContext(context.Background())
		resp tdaq.Frame
	)

	dev := newRC(tb.plan, tb.reg, time.Millisecond)
	for _, tc := range []struct {
		name string
		f    func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error
	}{
		{"/init", dev.OnInit},
		{"/start", dev.OnStart},
	} {
		err := tc.f(ctx, &resp, tdaq.Frame{})
		if err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
	}
	if err := dev.run(ctx); err == nil {
		t.Fatalf("expected an error running without a session")
	}

	body := new(bytes.Buffer)
	tdaq.NewEncoder(body).WriteStr(filepath.Join(t.TempDir(), "missing.json"))
	err := dev.OnConfig(ctx, &resp, tdaq.Frame{Body: body.Bytes()})
	if err == nil {
		t.Fatalf("expected an error loading a missing plan")
	}

	dev = newRC(tb.plan, filepath.Join(t.TempDir(), "missing.json"), time.Millisecond)
	err = dev.OnConfig(ctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error loading a missing registry")
	}

	// commands without a session are no-ops.
	for _, f := range []func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error{
		dev.OnStop, dev.OnReset, dev.OnQuit,
	} {
		err := f(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run command: %+v", err)
		}
	}
}
