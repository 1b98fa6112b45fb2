// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-lpc/warpnet/agc"
	"github.com/go-lpc/warpnet/iq"
	"github.com/go-lpc/warpnet/node"
	"github.com/go-lpc/warpnet/param"
	"golang.org/x/sync/errgroup"
)

// Result holds the outcome of a run.
type Result struct {
	Plan  string    `json:"plan"`
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
	Count int       `json:"count"` // number of samples retrieved per radio

	Captures []Capture            `json:"captures"`
	AGC      map[uint16]agc.Result `json:"agc,omitempty"`
}

// Capture holds the samples captured by one radio.
type Capture struct {
	Node    uint16    `json:"node"`
	Radio   int       `json:"radio"`
	Samples iq.Buffer `json:"-"`
	RSSI    []uint16  `json:"-"`

	// Settle is the index of the first sample captured with settled AGC
	// gains. Samples before it are not representative.
	Settle int `json:"settle"`
	// Valid reports whether the capture carries a signal. A radio that
	// missed the sync trigger captures a constant buffer.
	Valid bool `json:"valid"`
}

// Capture returns the capture of radio r of node id.
func (res *Result) Capture(id uint16, r int) (Capture, bool) {
	for _, c := range res.Captures {
		if c.Node == id && c.Radio == r {
			return c, true
		}
	}
	return Capture{}, false
}

type step struct {
	plan NodePlan
	node *node.Node
}

// Run runs the experiment described by p.
//
// The plan is validated before any command is sent. Once the nodes are
// touched, they are disarmed and their AGC reset on every return path,
// except for the transmit paths of a successful continuous run which keep
// transmitting until StopContinuous.
func Run(ctx context.Context, sess *node.Session, p Plan) (res Result, err error) {
	err = p.Validate()
	if err != nil {
		return res, err
	}

	steps, err := resolve(sess, p)
	if err != nil {
		return res, err
	}

	msg := sess.Logger()
	res = Result{
		Plan:  p.Name,
		Start: time.Now().UTC(),
		Count: p.Capture.Count(),
	}

	defer func() {
		res.Stop = time.Now().UTC()
		// teardown must run even if ctx was canceled.
		tctx := context.WithoutCancel(ctx)
		if err == nil && p.Capture.Mode == param.Continuous {
			err = release(tctx, steps)
			return
		}
		if e := teardown(tctx, steps); e != nil {
			msg.Errorf("could not tear down run %q: %+v", p.Name, e)
			err = errors.Join(err, e)
		}
	}()

	err = configure(ctx, steps, p)
	if err != nil {
		return res, fmt.Errorf("exp: could not configure run %q: %w", p.Name, err)
	}

	err = stage(ctx, steps, p)
	if err != nil {
		return res, fmt.Errorf("exp: could not stage waveform of run %q: %w", p.Name, err)
	}

	for _, s := range steps {
		err = s.node.Arm(ctx, s.plan.ops())
		if err != nil {
			if errors.Is(err, node.ErrTimeout) {
				msg.Warnf("arming of node=%d timed out, disarming all nodes", s.node.ID)
			}
			return res, fmt.Errorf("exp: could not arm run %q: %w", p.Name, err)
		}
	}

	err = sess.Trigger(ctx)
	if err != nil {
		return res, fmt.Errorf("exp: could not trigger run %q: %w", p.Name, err)
	}

	res.Captures, err = retrieve(ctx, steps, res.Count)
	if err != nil {
		return res, fmt.Errorf("exp: could not retrieve run %q: %w", p.Name, err)
	}
	for _, c := range res.Captures {
		if !c.Valid {
			msg.Warnf("node=%d radio %d: no signal captured", c.Node, c.Radio)
		}
		if n := c.Samples.NumOverrange(); n > 0 {
			msg.Warnf("node=%d radio %d: %d overrange samples", c.Node, c.Radio, n)
		}
	}

	if p.AGC != nil {
		res.AGC = make(map[uint16]agc.Result)
		for _, s := range steps {
			if len(s.plan.RX) == 0 {
				continue
			}
			v, err := s.node.ReadAGC(ctx, s.plan.rxRadios()...)
			if err != nil {
				return res, fmt.Errorf("exp: could not read AGC of run %q: %w", p.Name, err)
			}
			res.AGC[s.node.ID] = v
		}
	}

	msg.Infof("run %q: retrieved %d capture(s) of %d samples", p.Name, len(res.Captures), res.Count)
	return res, nil
}

// resolve looks up the nodes and radios of the plan.
func resolve(sess *node.Session, p Plan) ([]step, error) {
	steps := make([]step, 0, len(p.Nodes))
	for _, np := range p.Nodes {
		n, err := sess.Node(np.ID)
		if err != nil {
			return nil, fmt.Errorf("exp: %w", err)
		}
		for _, rs := range [][]int{np.txRadios(), np.rxRadios()} {
			for _, r := range rs {
				if _, err := n.Radio(r); err != nil {
					return nil, fmt.Errorf("exp: %w", err)
				}
			}
		}
		steps = append(steps, step{plan: np, node: n})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].node.ID < steps[j].node.ID })
	return steps, nil
}

func configure(ctx context.Context, steps []step, p Plan) error {
	for _, s := range steps {
		n := s.node
		err := n.SetChannel(ctx, p.Channel)
		if err != nil {
			return err
		}
		err = n.SetCapture(ctx, p.Capture)
		if err != nil {
			return err
		}
		if p.LPF != nil {
			err = n.SetLPF(ctx, p.LPF.TX, p.LPF.RX)
			if err != nil {
				return err
			}
		}
		for _, rp := range s.plan.TX {
			if rp.Gains == nil {
				continue
			}
			r, _ := n.Radio(rp.Radio)
			err = r.SetTxGains(ctx, *rp.Gains)
			if err != nil {
				return err
			}
		}
		for _, rp := range s.plan.RX {
			if rp.Gains == nil {
				continue
			}
			r, _ := n.Radio(rp.Radio)
			err = r.SetRxGains(ctx, *rp.Gains)
			if err != nil {
				return err
			}
		}
		if p.AGC != nil && len(s.plan.RX) > 0 {
			err = n.ConfigureAGC(ctx, *p.AGC)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func stage(ctx context.Context, steps []step, p Plan) error {
	for _, s := range steps {
		for _, r := range s.plan.txRadios() {
			err := s.node.WriteSamples(ctx, r, p.Waveform)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// retrieve reads the captures of all receiving radios.
// Nodes are read in parallel.
func retrieve(ctx context.Context, steps []step, count int) ([]Capture, error) {
	var (
		grp, gctx = errgroup.WithContext(ctx)
		caps      = make([][]Capture, len(steps))
	)
	for i := range steps {
		i, s := i, steps[i]
		if len(s.plan.RX) == 0 {
			continue
		}
		settle := 0
		if s.node.AGC().State() != agc.Idle {
			settle = s.node.AGC().SettleIndex()
		}
		grp.Go(func() error {
			for _, r := range s.plan.rxRadios() {
				buf, err := s.node.Retrieve(gctx, r, count)
				if err != nil {
					return err
				}
				rssi, err := s.node.ReadRSSI(gctx, r, count)
				if err != nil {
					return err
				}
				caps[i] = append(caps[i], Capture{
					Node:    s.node.ID,
					Radio:   r,
					Samples: buf,
					RSSI:    rssi,
					Settle:  settle,
					Valid:   iq.Valid(buf.Samples),
				})
			}
			return nil
		})
	}
	err := grp.Wait()
	if err != nil {
		return nil, err
	}

	var out []Capture
	for _, cs := range caps {
		out = append(out, cs...)
	}
	return out, nil
}

// teardown disarms the nodes and resets their AGC.
// Every node is attempted even after a failure.
func teardown(ctx context.Context, steps []step) error {
	var errs []error
	for _, s := range steps {
		errs = append(errs, s.node.Teardown(ctx))
	}
	return errors.Join(errs...)
}

// release disarms the nodes of a continuous run, leaving their transmit
// paths running, and resets their AGC.
func release(ctx context.Context, steps []step) error {
	var errs []error
	for _, s := range steps {
		ops := param.OpAll &^ txOps(s.plan)
		errs = append(errs,
			s.node.Disable(ctx, ops),
			s.node.ResetAGC(ctx),
		)
	}
	return errors.Join(errs...)
}

func txOps(np NodePlan) param.OpSet {
	if len(np.TX) == 0 {
		return 0
	}
	ops := param.OpTxStart
	for _, r := range np.txRadios() {
		ops |= param.OpTx(r)
	}
	return ops
}

// StopContinuous stops the transmission of the nodes of a continuous run.
func StopContinuous(ctx context.Context, sess *node.Session, p Plan) error {
	var errs []error
	for _, np := range p.Nodes {
		ops := txOps(np)
		if ops == 0 {
			continue
		}
		n, err := sess.Node(np.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, n.Disable(ctx, ops))
	}
	return errors.Join(errs...)
}
