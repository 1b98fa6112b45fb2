// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command warp-rc starts a TDAQ process driving a testbed of nodes.
//
// The process runs the configured plan once per period while started and
// publishes each run as an encoded capture file on its /captures output.
//
// Usage: warp-rc [OPTIONS] -plan plan.json -registry testbed.json
package main // import "github.com/go-lpc/warpnet/cmd/warp-rc"

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/warpnet/capfile"
	"github.com/go-lpc/warpnet/exp"
	"github.com/go-lpc/warpnet/node"
	"github.com/go-lpc/warpnet/param"
)

func main() {
	var (
		plan    = flag.String("plan", "plan.json", "path to the experiment plan")
		reg     = flag.String("registry", "testbed.json", "path to the node registry")
		period  = flag.Duration("period", time.Second, "period between two runs")
		timeout = flag.Duration("timeout", node.DefaultTimeout, "per-command timeout")
	)

	cmd := flags.New()

	dev := newRC(*plan, *reg, *period, node.WithTimeout(*timeout))

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/captures", dev.captures)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type rc struct {
	plan   string
	reg    string
	period time.Duration
	opts   []node.Option

	mu   sync.Mutex
	p    exp.Plan
	r    node.Registry
	sess *node.Session
	num  uint32 // run number
	n    int    // number of completed runs

	data chan []byte
}

func newRC(plan, reg string, period time.Duration, opts ...node.Option) *rc {
	return &rc{
		plan:   plan,
		reg:    reg,
		period: period,
		opts:   opts,
		data:   make(chan []byte, 16),
	}
}

// OnConfig loads the plan and the registry.
// A non-empty request body holds the path of a plan replacing the
// configured one.
func (dev *rc) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	if len(req.Body) > 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		dev.plan = dec.ReadStr()
	}

	p, err := loadPlan(dev.plan)
	if err != nil {
		ctx.Msg.Errorf("could not load plan: %+v", err)
		return err
	}

	r, err := loadRegistry(dev.reg)
	if err != nil {
		ctx.Msg.Errorf("could not load registry: %+v", err)
		return err
	}

	dev.mu.Lock()
	dev.p = p
	dev.r = r
	dev.mu.Unlock()

	ctx.Msg.Infof("plan %q over %d node(s)", p.Name, len(p.Nodes))
	return nil
}

// OnInit opens a session with the nodes of the registry.
func (dev *rc) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.sess != nil {
		return fmt.Errorf("session already opened")
	}
	if len(dev.r.Nodes) == 0 {
		return fmt.Errorf("no node configured")
	}

	opts := append([]node.Option{node.WithLogger(ctx.Msg)}, dev.opts...)
	sess, err := node.Open(ctx.Ctx, dev.r, opts...)
	if err != nil {
		ctx.Msg.Errorf("could not open session: %+v", err)
		return fmt.Errorf("could not open session: %w", err)
	}
	dev.sess = sess
	dev.n = 0
	return nil
}

// OnReset tears the nodes down and closes the session.
func (dev *rc) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	dev.mu.Lock()
	defer dev.mu.Unlock()

	dev.n = 0
loop:
	for {
		select {
		case <-dev.data:
		default:
			break loop
		}
	}
	return dev.close(ctx)
}

// OnStart selects the run number carried by the request body.
func (dev *rc) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.sess == nil {
		return fmt.Errorf("session not initialized")
	}
	if len(req.Body) > 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		dev.num = dec.ReadU32()
	}
	ctx.Msg.Debugf("received /start command... -> run=%d", dev.num)
	return nil
}

// OnStop ends a continuous transmission left by the runs.
func (dev *rc) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	ctx.Msg.Debugf("received /stop command... -> n=%d", dev.n)
	if dev.sess == nil || dev.p.Capture.Mode != param.Continuous {
		return nil
	}
	err := exp.StopContinuous(ctx.Ctx, dev.sess, dev.p)
	if err != nil {
		ctx.Msg.Errorf("could not stop continuous transmission: %+v", err)
		return fmt.Errorf("could not stop continuous transmission: %w", err)
	}
	return nil
}

// OnQuit closes the session.
func (dev *rc) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.close(ctx)
}

func (dev *rc) close(ctx tdaq.Context) error {
	if dev.sess == nil {
		return nil
	}
	sess := dev.sess
	dev.sess = nil

	err := sess.Teardown(ctx.Ctx)
	if err != nil {
		ctx.Msg.Warnf("could not tear nodes down: %+v", err)
	}
	err = sess.Close()
	if err != nil {
		return fmt.Errorf("could not close session: %w", err)
	}
	return nil
}

func (dev *rc) captures(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-dev.data:
		dst.Body = data
	}
	return nil
}

func (dev *rc) run(ctx tdaq.Context) error {
	tck := time.NewTicker(dev.period)
	defer tck.Stop()

	for {
		err := dev.once(ctx)
		if err != nil {
			return err
		}

		dev.mu.Lock()
		cont := dev.p.Capture.Mode == param.Continuous
		dev.mu.Unlock()
		if cont {
			// the transmission keeps running until /stop.
			<-ctx.Ctx.Done()
			return nil
		}

		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-tck.C:
		}
	}
}

// once runs the plan and queues the encoded capture file.
// Full queues drop the run.
func (dev *rc) once(ctx tdaq.Context) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.sess == nil {
		return fmt.Errorf("session not initialized")
	}

	res, err := exp.Run(ctx.Ctx, dev.sess, dev.p)
	if err != nil {
		if ctx.Ctx.Err() != nil {
			return nil
		}
		ctx.Msg.Errorf("run %d: could not run plan %q: %+v", dev.num, dev.p.Name, err)
		return fmt.Errorf("could not run plan %q: %w", dev.p.Name, err)
	}

	buf := new(bytes.Buffer)
	err = capfile.Write(buf, capfile.NewHeader(dev.num, dev.p, res), res.Captures)
	if err != nil {
		return fmt.Errorf("could not encode run %d: %w", dev.num, err)
	}

	select {
	case dev.data <- buf.Bytes():
		dev.n++
	default:
		ctx.Msg.Warnf("run %d: dropping captures", dev.num)
	}
	return nil
}

func loadPlan(fname string) (exp.Plan, error) {
	f, err := os.Open(fname)
	if err != nil {
		return exp.Plan{}, fmt.Errorf("could not open plan: %w", err)
	}
	defer f.Close()

	p, err := exp.LoadPlan(f)
	if err != nil {
		return p, fmt.Errorf("could not load plan %q: %w", fname, err)
	}
	err = p.Validate()
	if err != nil {
		return p, fmt.Errorf("invalid plan %q: %w", fname, err)
	}
	return p, nil
}

func loadRegistry(fname string) (node.Registry, error) {
	f, err := os.Open(fname)
	if err != nil {
		return node.Registry{}, fmt.Errorf("could not open registry: %w", err)
	}
	defer f.Close()

	reg, err := node.LoadRegistry(f)
	if err != nil {
		return reg, fmt.Errorf("could not load registry %q: %w", fname, err)
	}
	return reg, nil
}
