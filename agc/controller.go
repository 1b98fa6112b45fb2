// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agc

import (
	"fmt"
	"sync"

	"github.com/go-lpc/warpnet/param"
)

// State is the state of an AGC controller.
type State int

const (
	Idle       State = iota // not configured, or reset
	Armed                   // configured, waiting for the sync trigger and trigger delay
	Estimating              // measuring RSSI, gains not fixed yet
	Settled                 // gains fixed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Estimating:
		return "estimating"
	case Settled:
		return "settled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Option configures a Controller.
type Option func(*Controller)

// WithLatency sets the settling latency, in samples.
func WithLatency(n int) Option {
	return func(c *Controller) {
		c.latency = n
	}
}

// WithDCOffsetLatency sets the additional settling latency when DC-offset
// correction is enabled.
func WithDCOffsetLatency(n int) Option {
	return func(c *Controller) {
		c.dcLatency = n
	}
}

// Controller tracks the AGC of one node through a capture:
//
//	Idle -> Armed -> Estimating -> Settled
//
// Idle to Armed happens on Configure. The sample-domain transitions,
// relative to the sync trigger, are given by StateAt once Trigger has
// been called. Finish moves the controller to Settled and Reset back to
// Idle. Configure after Trigger without a Reset fails with ErrNotReset.
type Controller struct {
	mu        sync.Mutex
	latency   int
	dcLatency int

	cfg       Config
	state     State
	triggered bool
}

// NewController returns an idle AGC controller.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		latency:   DefaultLatency,
		dcLatency: DefaultDCOffsetLatency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure validates cfg and arms the controller.
// Reconfiguring an armed controller replaces its configuration.
func (c *Controller) Configure(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.triggered {
		return ErrNotReset
	}
	err := cfg.Validate()
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.state = Armed
	return nil
}

// Config returns the current configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Trigger records the sync trigger.
// It is a no-op when the controller is not armed.
func (c *Controller) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Armed {
		return
	}
	c.triggered = true
	c.state = Estimating
}

// SettleIndex returns the sample index, relative to the sync trigger, at
// which the gains are fixed.
func (c *Controller) SettleIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settleIndex()
}

func (c *Controller) settleIndex() int {
	n := c.cfg.TrigDelay + c.latency
	if c.cfg.DCOffset {
		n += c.dcLatency
	}
	return n
}

// StateAt returns the state of the AGC at sample n after the sync trigger.
// Before the trigger, it returns the current state.
func (c *Controller) StateAt(n int) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.triggered {
		return c.state
	}
	switch {
	case n < c.cfg.TrigDelay:
		return Armed
	case n < c.settleIndex():
		return Estimating
	default:
		return Settled
	}
}

// Reliable reports whether sample n after the sync trigger was captured
// with settled gains.
func (c *Controller) Reliable(n int) bool {
	return c.StateAt(n) == Settled
}

// Finish interprets the AGC state read back from the node for the given
// radios and moves the controller to Settled.
func (c *Controller) Finish(rb Readback, radios []int) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.triggered {
		return Result{}, ErrNotTriggered
	}

	res := Result{
		SettleIndex: rb.SettleIndex,
		Triggered:   rb.SettleIndex != 0,
		Radios:      make([]RadioResult, 0, len(radios)),
	}
	for _, r := range radios {
		if err := param.ValidateRadio(r); err != nil {
			return Result{}, err
		}
		rssi := rb.RSSI[r-1]
		_, ok := Decide(rssi, c.cfg.Thresholds)
		res.Radios = append(res.Radios, RadioResult{
			Radio:   r,
			RSSI:    rssi,
			Gains:   rb.Gains[r-1],
			Settled: ok && res.Triggered,
		})
	}
	c.state = Settled
	return res, nil
}

// Reset returns the controller to Idle.
// Reset is idempotent.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	c.triggered = false
}
