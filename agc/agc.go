// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package agc models the threshold-driven automatic gain control of a
// radio node receiver.
//
// After a sync trigger, the hardware waits for the configured trigger
// delay, measures the RSSI during a fixed settling latency and then fixes
// the RF gain from a comparison of the RSSI against three thresholds.
// The baseband gain is then chosen to bring the signal to the target
// power.
package agc // import "github.com/go-lpc/warpnet/agc"

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-lpc/warpnet/param"
)

const (
	// DefaultLatency is the settling latency, in samples, after the
	// trigger delay.
	DefaultLatency = 250
	// DefaultDCOffsetLatency is the additional settling latency when
	// DC-offset correction is enabled.
	DefaultDCOffsetLatency = 32

	// RFStepDB is the gain difference between two RF gain levels, in dB.
	RFStepDB = 15
	// BBStepDB is the gain of a baseband gain step, in dB.
	BBStepDB = 2
)

// ResetGains are the RX gains a radio returns to after an AGC reset.
var ResetGains = param.Gains{RF: 2, BB: 16}

var (
	// ErrNotReset is returned when an AGC is rearmed after a capture
	// without an intervening reset.
	ErrNotReset = errors.New("agc: rearmed without reset")
	// ErrNotTriggered is returned when results are requested before the
	// sync trigger.
	ErrNotTriggered = errors.New("agc: no capture since configuration")
)

// Config is the AGC configuration, written to a node as a single burst.
type Config struct {
	Target     int              `json:"target"`      // target power, in dBm
	NoiseFloor int              `json:"noise_floor"` // noise floor estimate, in dBm
	Thresholds param.Thresholds `json:"thresholds"`  // RF gain thresholds, in dBm
	TrigDelay  int              `json:"trig_delay"`  // samples between sync and RSSI estimation
	DCOffset   bool             `json:"dc_offset"`   // enable DC-offset correction
}

// Validate checks every field of the configuration.
func (cfg Config) Validate() error {
	if _, err := param.Encode(param.AGCTarget, cfg.Target); err != nil {
		return err
	}
	if _, err := param.Encode(param.AGCNoiseFloor, cfg.NoiseFloor); err != nil {
		return err
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return err
	}
	if _, err := param.Encode(param.AGCTrigDelay, cfg.TrigDelay); err != nil {
		return err
	}
	return nil
}

// Decide returns the RF gain level selected for the given RSSI, in dBm.
//
// An RSSI below the low threshold does not settle. Otherwise [low,mid)
// selects level 3, [mid,high) level 2 and [high,...) level 1.
func Decide(rssi int, th param.Thresholds) (rf int, settled bool) {
	switch {
	case rssi < th.Low:
		return ResetGains.RF, false
	case rssi < th.Mid:
		return 3, true
	case rssi < th.High:
		return 2, true
	default:
		return 1, true
	}
}

// RFGainDB returns the gain of RF level rf, relative to level 1, in dB.
func RFGainDB(rf int) int {
	return (rf - 1) * RFStepDB
}

// BasebandGain returns the baseband gain bringing a signal received at
// rssi dBm with RF level rf to the target power, in 2 dB steps.
func BasebandGain(target, rssi, rf int) int {
	db := float64(target - rssi - RFGainDB(rf))
	bb := int(math.Round(db / BBStepDB))
	switch {
	case bb < 0:
		return 0
	case bb > param.MaxRxBBGain:
		return param.MaxRxBBGain
	}
	return bb
}

// Settle returns the gains the hardware settles on for the given RSSI.
func Settle(cfg Config, rssi int) (param.Gains, bool) {
	rf, ok := Decide(rssi, cfg.Thresholds)
	if !ok {
		return ResetGains, false
	}
	return param.Gains{RF: rf, BB: BasebandGain(cfg.Target, rssi, rf)}, true
}

// Readback is the AGC state read back from a node after a capture.
type Readback struct {
	SettleIndex int                          // sample index at which gains were fixed, 0 if never triggered
	RSSI        [param.NumRadios]int         // RSSI at settle time, in dBm
	Gains       [param.NumRadios]param.Gains // settled gains
}

// RadioResult is the outcome of the AGC of one radio.
type RadioResult struct {
	Radio   int         `json:"radio"`
	RSSI    int         `json:"rssi"`
	Gains   param.Gains `json:"gains"`
	Settled bool        `json:"settled"`
}

func (r RadioResult) String() string {
	if !r.Settled {
		return fmt.Sprintf("radio%d: unsettled (rssi=%d dBm)", r.Radio, r.RSSI)
	}
	return fmt.Sprintf("radio%d: rf=%d bb=%d (rssi=%d dBm)", r.Radio, r.Gains.RF, r.Gains.BB, r.RSSI)
}

// Result is the outcome of the AGC of one node after a capture.
type Result struct {
	SettleIndex int           `json:"settle_index"`
	Triggered   bool          `json:"triggered"`
	Radios      []RadioResult `json:"radios"`
}

// Radio returns the result of radio r.
func (res Result) Radio(r int) (RadioResult, bool) {
	for _, v := range res.Radios {
		if v.Radio == r {
			return v, true
		}
	}
	return RadioResult{}, false
}

// Settled reports whether every radio settled.
func (res Result) Settled() bool {
	if !res.Triggered {
		return false
	}
	for _, v := range res.Radios {
		if !v.Settled {
			return false
		}
	}
	return true
}
